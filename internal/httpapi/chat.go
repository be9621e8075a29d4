// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
//
// ChatHandler covers session/message/pinned-file CRUD and the SSE
// streaming chat endpoint, grounded on chat_sessions_handler.go's
// per-route handler functions (generalized here into methods on one
// handler struct) and chat_handler.go's HandleChat retrieval flow
// (generalized from a single synchronous JSON response into a
// streamed one built on Retriever + ModelGateway.StreamChat).
package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/huozhong-in/knowledge-focus/internal/chunking"
	"github.com/huozhong-in/knowledge-focus/internal/metastore"
	"github.com/huozhong-in/knowledge-focus/internal/modelgateway"
	"github.com/huozhong-in/knowledge-focus/internal/retrieval"
	"github.com/huozhong-in/knowledge-focus/internal/sessions"
)

const replyReserveTokens = 1024

// ChatHandler wires chat session storage, the retriever and the model
// gateway into the HTTP surface spec.md §6 describes.
type ChatHandler struct {
	Meta      *metastore.Store
	Sessions  *sessions.Store
	Retriever *retrieval.Retriever
	Gateway   *modelgateway.Gateway
	tokenizer chunking.Tokenizer
}

// NewChatHandler constructs a ChatHandler.
func NewChatHandler(meta *metastore.Store, sess *sessions.Store, retriever *retrieval.Retriever, gateway *modelgateway.Gateway) *ChatHandler {
	return &ChatHandler{Meta: meta, Sessions: sess, Retriever: retriever, Gateway: gateway}
}

// HandleSessions routes GET (list)/POST (create) on /chat/sessions.
func (h *ChatHandler) HandleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list, err := h.Meta.ChatSessions.ListActiveSessions()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, list)
	case http.MethodPost:
		session, err := h.Meta.ChatSessions.CreateSession("New Chat")
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, session)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// HandleSessionsSmart answers POST /chat/sessions/smart: create a
// session and title it from the request's first message.
func (h *ChatHandler) HandleSessionsSmart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		FirstMessage string `json:"first_message"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	session, err := h.Sessions.CreateSmart(r.Context(), req.FirstMessage)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

// HandleSessionByID routes GET (session)/PUT (rename)/DELETE (soft
// delete) on /chat/sessions/{id}.
func (h *ChatHandler) HandleSessionByID(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "/chat/sessions/")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		session, err := h.Meta.ChatSessions.SessionByID(id)
		if err != nil {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeJSON(w, http.StatusOK, session)
	case http.MethodPut:
		var req struct {
			Name string `json:"name"`
		}
		if err := decodeJSON(r, &req); err != nil || req.Name == "" {
			writeError(w, http.StatusBadRequest, "name is required")
			return
		}
		if err := h.Meta.ChatSessions.RenameSession(id, req.Name); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	case http.MethodDelete:
		if err := h.Meta.ChatSessions.DeleteSession(id); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// HandleSessionMessages routes GET (list)/POST (append) on
// /chat/sessions/{id}/messages.
func (h *ChatHandler) HandleSessionMessages(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/chat/sessions/")
	path = strings.TrimSuffix(path, "/messages")
	id, err := strconv.ParseInt(strings.Trim(path, "/"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		msgs, err := h.Meta.ChatSessions.MessagesBySession(id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, msgs)
	case http.MethodPost:
		var req struct {
			MessageID string                 `json:"message_id"`
			Role      metastore.MessageRole  `json:"role"`
			Content   string                 `json:"content"`
		}
		if err := decodeJSON(r, &req); err != nil || req.Content == "" {
			writeError(w, http.StatusBadRequest, "content is required")
			return
		}
		msgID, err := h.Meta.ChatSessions.SaveMessage(&metastore.ChatMessage{
			SessionID: id, MessageID: req.MessageID, Role: req.Role, Content: req.Content,
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, map[string]int64{"id": msgID})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// HandlePinnedFiles routes GET (list)/POST (pin) on
// /chat/sessions/{id}/pinned-files.
func (h *ChatHandler) HandlePinnedFiles(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/chat/sessions/")
	path = strings.TrimSuffix(path, "/pinned-files")
	sessionID, err := strconv.ParseInt(strings.Trim(path, "/"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		pins, err := h.Meta.Pinned.BySession(sessionID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, pins)
	case http.MethodPost:
		var req struct {
			FilePath string `json:"file_path"`
			FileName string `json:"file_name"`
		}
		if err := decodeJSON(r, &req); err != nil || req.FilePath == "" {
			writeError(w, http.StatusBadRequest, "file_path is required")
			return
		}
		pin, err := h.Sessions.Pin(sessionID, req.FilePath, req.FileName)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, pin)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// HandlePinnedFileByPath answers DELETE
// /chat/sessions/{id}/pinned-files?file_path=....
func (h *ChatHandler) HandlePinnedFileByPath(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/chat/sessions/")
	path = strings.TrimSuffix(path, "/pinned-files")
	sessionID, err := strconv.ParseInt(strings.Trim(path, "/"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	filePath := r.URL.Query().Get("file_path")
	if filePath == "" {
		writeError(w, http.StatusBadRequest, "file_path is required")
		return
	}
	if err := h.Sessions.Unpin(sessionID, filePath); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type uiStreamRequest struct {
	SessionID int64  `json:"session_id"`
	MessageID string `json:"message_id"`
	Query     string `json:"query"`
}

// sseFrame is the payload of one "data:" line. Events carry an id and,
// for text frames, the incremental delta — the shape spec.md §6
// requires for every ui-stream event.
type sseFrame struct {
	ID      string              `json:"id"`
	Delta   string              `json:"delta,omitempty"`
	Sources []retrieval.Result  `json:"sources,omitempty"`
	Error   string              `json:"error,omitempty"`
}

// HandleUIStream answers POST /chat/ui-stream: retrieves context for
// the query, saves the user message, streams the model's reply over
// SSE, then saves the assistant message with its sources attached.
// Grounded on HandleChat's embed-search-build-context-answer flow,
// generalized from one synchronous JSON reply to an incrementally
// streamed one the UI renders token by token.
func (h *ChatHandler) HandleUIStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req uiStreamRequest
	if err := decodeJSON(r, &req); err != nil || req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx := r.Context()
	pinnedIDs, _ := h.Sessions.ActivePinnedDocumentIDs(req.SessionID)
	var results []retrieval.Result
	if len(pinnedIDs) > 0 {
		var err error
		results, err = h.Retriever.Search(ctx, req.Query, 5, pinnedIDs)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	contextBlock := retrieval.BuildContextBlock(results)

	if _, err := h.Meta.ChatSessions.SaveMessage(&metastore.ChatMessage{
		SessionID: req.SessionID, MessageID: req.MessageID, Role: metastore.RoleUser, Content: req.Query,
	}); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	history, err := h.Meta.ChatSessions.MessagesBySession(req.SessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	messages := make([]modelgateway.Message, 0, len(history)+1)
	messages = append(messages, modelgateway.Message{Role: modelgateway.RoleSystem, Content: systemPrompt(contextBlock)})
	for _, m := range retrieval.TrimHistory(ctx, h.Gateway, h.tokenizer, toGatewayMessages(history), contextBlock, replyReserveTokens) {
		messages = append(messages, m)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	replyID := req.MessageID + "-assistant"
	sendEvent(w, flusher, "start", sseFrame{ID: replyID, Sources: results})

	deltas, err := h.Gateway.StreamChat(ctx, messages)
	if err != nil {
		sendEvent(w, flusher, "error", sseFrame{ID: replyID, Error: err.Error()})
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
		return
	}

	sendEvent(w, flusher, "text-start", sseFrame{ID: replyID})
	var full strings.Builder
	for delta := range deltas {
		if delta.Err != nil {
			sendEvent(w, flusher, "error", sseFrame{ID: replyID, Error: delta.Err.Error()})
			fmt.Fprint(w, "data: [DONE]\n\n")
			flusher.Flush()
			return
		}
		full.WriteString(delta.Text)
		sendEvent(w, flusher, "text-delta", sseFrame{ID: replyID, Delta: delta.Text})
		if delta.Done {
			break
		}
	}
	sendEvent(w, flusher, "text-end", sseFrame{ID: replyID})

	sourcesJSON, _ := json.Marshal(results)
	_, _ = h.Meta.ChatSessions.SaveMessage(&metastore.ChatMessage{
		SessionID: req.SessionID, MessageID: replyID,
		Role: metastore.RoleAssistant, Content: full.String(), SourcesJSON: string(sourcesJSON),
	})

	sendEvent(w, flusher, "finish", sseFrame{ID: replyID})
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func sendEvent(w http.ResponseWriter, flusher http.Flusher, event string, frame sseFrame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	flusher.Flush()
}

func systemPrompt(contextBlock string) string {
	if contextBlock == "" {
		return "You are a helpful assistant answering questions about the user's files."
	}
	return "You are a helpful assistant answering questions about the user's files. Ground your answer in the following retrieved context when relevant.\n\n" + contextBlock
}

func toGatewayMessages(history []*metastore.ChatMessage) []modelgateway.Message {
	out := make([]modelgateway.Message, 0, len(history))
	for _, m := range history {
		role := modelgateway.RoleUser
		switch m.Role {
		case metastore.RoleAssistant:
			role = modelgateway.RoleAssistant
		case metastore.RoleSystem:
			role = modelgateway.RoleSystem
		}
		out = append(out, modelgateway.Message{Role: role, Content: m.Content})
	}
	return out
}

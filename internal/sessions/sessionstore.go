// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
//
// Package sessions wraps metastore.ChatSessionStore/PinnedFileStore
// with the two pieces of behavior that sit above raw CRUD: smart-title
// generation for a new session's first message, and the 24h pin-to-
// MULTIVECTOR-chain eligibility check. Grounded on the teacher's
// chat_handler.go session-bootstrap pattern (create-session-on-first-
// message, touch on every save), generalized with an LLM title call
// the teacher never had.
package sessions

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/huozhong-in/knowledge-focus/internal/metastore"
	"github.com/huozhong-in/knowledge-focus/internal/modelgateway"
)

const (
	maxTitleChars = 20
	fallbackChars = 17
)

var titleSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"title": map[string]interface{}{"type": "string"},
	},
	"required": []interface{}{"title"},
}

// Store is the session-level facade httpapi depends on.
type Store struct {
	Meta    *metastore.Store
	Gateway *modelgateway.Gateway
	Tasks   *metastore.TaskStore
}

// New constructs a Store.
func New(meta *metastore.Store, gateway *modelgateway.Gateway, tasks *metastore.TaskStore) *Store {
	return &Store{Meta: meta, Gateway: gateway, Tasks: tasks}
}

// CreateSmart creates a session, then titles it from firstMessage: an
// LLM call asks for a <=20-char title, falling back to a truncated
// prefix of firstMessage (or "New Chat" if that's empty too) when the
// call fails or returns something unusable.
func (s *Store) CreateSmart(ctx context.Context, firstMessage string) (*metastore.ChatSession, error) {
	session, err := s.Meta.ChatSessions.CreateSession(fallbackTitle(firstMessage))
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	title := s.generateTitle(ctx, firstMessage)
	if title != "" && title != session.Name {
		if err := s.Meta.ChatSessions.RenameSession(session.ID, title); err != nil {
			return nil, fmt.Errorf("apply smart title: %w", err)
		}
		session.Name = title
	}
	return session, nil
}

func (s *Store) generateTitle(ctx context.Context, firstMessage string) string {
	if strings.TrimSpace(firstMessage) == "" {
		return ""
	}

	raw, err := s.Gateway.Chat(ctx, []modelgateway.Message{
		{Role: modelgateway.RoleSystem, Content: fmt.Sprintf(
			"Generate a short chat title of at most %d characters summarizing the user's first message. No quotes, no trailing punctuation.",
			maxTitleChars,
		)},
		{Role: modelgateway.RoleUser, Content: firstMessage},
	}, titleSchema)
	if err != nil {
		return ""
	}

	var parsed struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return ""
	}

	title := strings.TrimSpace(parsed.Title)
	if title == "" {
		return ""
	}
	if utf8RuneLen(title) > maxTitleChars {
		title = truncateRunes(title, maxTitleChars)
	}
	return title
}

func fallbackTitle(firstMessage string) string {
	trimmed := strings.TrimSpace(firstMessage)
	if trimmed == "" {
		return "New Chat"
	}
	if utf8RuneLen(trimmed) <= fallbackChars {
		return trimmed
	}
	return truncateRunes(trimmed, fallbackChars) + "..."
}

func utf8RuneLen(s string) int {
	return len([]rune(s))
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Pin pins filePath into sessionID's working set and, when the file
// has no Document row or one whose status is not done, enqueues a MULTIVECTOR task so the pinned file becomes searchable
// without the user having to wait for the next full rescan.
func (s *Store) Pin(sessionID int64, filePath, fileName string) (*metastore.PinnedFile, error) {
	id, err := s.Meta.Pinned.Pin(sessionID, filePath, fileName, "{}")
	if err != nil {
		return nil, fmt.Errorf("pin file: %w", err)
	}

	pinned, err := s.Meta.Pinned.ByID(id)
	if err != nil {
		return nil, err
	}

	needsChunking := true
	if doc, err := s.Meta.Documents.ByFilePath(filePath); err == nil && doc.Status == metastore.DocumentDone {
		needsChunking = false
	}
	if needsChunking {
		if _, err := s.Tasks.Enqueue("chunk pinned file", metastore.TaskMultivector, metastore.PriorityHigh, filePath, ""); err != nil {
			return nil, fmt.Errorf("enqueue chunking for pinned file: %w", err)
		}
	}
	return pinned, nil
}

// Unpin removes filePath from sessionID's working set.
func (s *Store) Unpin(sessionID int64, filePath string) error {
	return s.Meta.Pinned.Unpin(sessionID, filePath)
}

// ActivePinnedDocumentIDs resolves a session's currently pinned files
// to Document IDs still within the 24h auto-chain window, for scoping
// Retriever.Search to just the files the user explicitly pinned.
func (s *Store) ActivePinnedDocumentIDs(sessionID int64) ([]int64, error) {
	pins, err := s.Meta.Pinned.BySession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("list pinned files: %w", err)
	}

	var ids []int64
	cutoff := time.Now().UTC().Add(-metastore.PinChainWindow)
	for _, p := range pins {
		if p.PinnedAt.Before(cutoff) {
			continue
		}
		doc, err := s.Meta.Documents.ByFilePath(p.FilePath)
		if err != nil {
			continue
		}
		ids = append(ids, doc.ID)
	}
	return ids, nil
}

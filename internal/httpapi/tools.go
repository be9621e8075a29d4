// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package httpapi

import (
	"net/http"

	"github.com/huozhong-in/knowledge-focus/internal/events"
)

// ToolsHandler serves POST /tools/response, the ingress for
// client-side tool results the frontend executed on the model's
// behalf during a chat turn.
type ToolsHandler struct {
	Bus *events.Bus
}

// NewToolsHandler constructs a ToolsHandler.
func NewToolsHandler(bus *events.Bus) *ToolsHandler {
	return &ToolsHandler{Bus: bus}
}

type toolResponseRequest struct {
	CallID   string      `json:"call_id"`
	Success  bool        `json:"success"`
	Result   interface{} `json:"result,omitempty"`
	Error    string      `json:"error,omitempty"`
	Duration float64     `json:"duration,omitempty"`
}

// HandleResponse publishes the tool result onto the event bus so
// whatever is waiting on that call_id (the chat stream that issued the
// tool call) can resume.
func (h *ToolsHandler) HandleResponse(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req toolResponseRequest
	if err := decodeJSON(r, &req); err != nil || req.CallID == "" {
		writeError(w, http.StatusBadRequest, "call_id is required")
		return
	}

	h.Bus.Publish("tool-response", req.CallID, map[string]interface{}{
		"call_id":  req.CallID,
		"success":  req.Success,
		"result":   req.Result,
		"error":    req.Error,
		"duration": req.Duration,
	})

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

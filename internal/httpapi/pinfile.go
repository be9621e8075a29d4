// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package httpapi

import (
	"net/http"
	"os"

	"github.com/huozhong-in/knowledge-focus/internal/metastore"
	"github.com/huozhong-in/knowledge-focus/internal/parsing"
)

// PinFileHandler serves POST /pin-file: validates a standalone file
// path and enqueues it for vectorization directly, independent of any
// chat session's pinned-files list.
type PinFileHandler struct {
	Tasks *metastore.TaskStore
}

// NewPinFileHandler constructs a PinFileHandler.
func NewPinFileHandler(tasks *metastore.TaskStore) *PinFileHandler {
	return &PinFileHandler{Tasks: tasks}
}

type pinFileRequest struct {
	FilePath string `json:"file_path"`
}

type pinFileResponse struct {
	Success bool   `json:"success"`
	TaskID  int64  `json:"task_id,omitempty"`
	Message string `json:"message,omitempty"`
}

// HandlePinFile answers POST /pin-file. It validates the file exists,
// is readable, and carries a supported extension before enqueueing a
// HIGH-priority MULTIVECTOR task, matching spec.md §6's
// existence/permission/extension checks ahead of task creation.
func (h *PinFileHandler) HandlePinFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req pinFileRequest
	if err := decodeJSON(r, &req); err != nil || req.FilePath == "" {
		writeError(w, http.StatusBadRequest, "file_path is required")
		return
	}

	f, err := os.Open(req.FilePath)
	if err != nil {
		writeJSON(w, http.StatusOK, pinFileResponse{Success: false, Message: "file does not exist or is not readable"})
		return
	}
	f.Close()

	if !parsing.IsSupportedFile(req.FilePath) {
		writeJSON(w, http.StatusOK, pinFileResponse{Success: false, Message: "unsupported file extension"})
		return
	}

	taskID, err := h.Tasks.Enqueue("pin file", metastore.TaskMultivector, metastore.PriorityHigh, req.FilePath, "")
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, pinFileResponse{Success: true, TaskID: taskID, Message: "queued for processing"})
}

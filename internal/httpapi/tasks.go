// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package httpapi

import (
	"net/http"

	"github.com/huozhong-in/knowledge-focus/internal/metastore"
)

// TaskHandler serves GET /task/{id}.
type TaskHandler struct {
	Tasks *metastore.TaskStore
}

// NewTaskHandler constructs a TaskHandler.
func NewTaskHandler(tasks *metastore.TaskStore) *TaskHandler {
	return &TaskHandler{Tasks: tasks}
}

// HandleTaskByID reports a task's current status/result, for UI polling.
func (h *TaskHandler) HandleTaskByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id, err := pathID(r, "/task/")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	task, err := h.Tasks.ByID(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// SystemConfigHandler serves GET|PUT /system-config/{key}.
type SystemConfigHandler struct {
	System *metastore.SystemConfigStore
}

// NewSystemConfigHandler constructs a SystemConfigHandler.
func NewSystemConfigHandler(system *metastore.SystemConfigStore) *SystemConfigHandler {
	return &SystemConfigHandler{System: system}
}

// HandleSystemConfigKey routes GET/PUT on /system-config/{key}.
func (h *SystemConfigHandler) HandleSystemConfigKey(w http.ResponseWriter, r *http.Request) {
	key := pathTail(r, "/system-config/")
	if key == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		value, err := h.System.Get(key)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": value})
	case http.MethodPut:
		var req struct {
			Value string `json:"value"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid body")
			return
		}
		if err := h.System.Set(key, req.Value); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

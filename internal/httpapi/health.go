// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package httpapi

import (
	"net/http"
	"time"
)

// HandleHealth answers GET /health, grounded on the teacher's
// HandleHealth (GET /api/v1/health) — same method-check-then-fixed-JSON
// shape, minus the API-key last-seen bookkeeping this backend has no
// use for.
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "up",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

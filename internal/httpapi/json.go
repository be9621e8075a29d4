// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
//
// Package httpapi is the stdlib net/http surface spec.md §6 names,
// grounded on internal/server/*_handler.go's per-concern handler-
// struct-with-constructor idiom (NewXHandler(stores...) *XHandler,
// methods registered onto a shared mux), generalized from gRPC+chi-less
// REST-over-a-domain(org) model to a single-tenant local desktop
// backend wired straight to internal/metastore/internal/retrieval/etc.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/huozhong-in/knowledge-focus/internal/logger"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Printf("httpapi: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

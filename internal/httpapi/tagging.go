// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
//
// Grounded on search_handler.go's POST-request-decode/search/respond
// shape, generalized from a vector similarity search over a query
// string to a tag-name lookup over the metastore.
package httpapi

import (
	"net/http"
	"strconv"

	"github.com/huozhong-in/knowledge-focus/internal/metastore"
)

// TaggingHandler serves /tagging/search-files and /tagging/tag-cloud.
type TaggingHandler struct {
	Tags       *metastore.TagStore
	Screenings *metastore.ScreeningStore
}

// NewTaggingHandler constructs a TaggingHandler.
func NewTaggingHandler(tags *metastore.TagStore, screenings *metastore.ScreeningStore) *TaggingHandler {
	return &TaggingHandler{Tags: tags, Screenings: screenings}
}

type searchFilesRequest struct {
	TagNames []string `json:"tag_names"`
	Operator string   `json:"operator"` // "AND" | "OR", defaults to "AND"
	Limit    int      `json:"limit"`
	Offset   int      `json:"offset"`
}

// HandleSearchFiles answers POST /tagging/search-files: resolves a
// set of tag names to the file screenings carrying all (or any) of
// them.
func (h *TaggingHandler) HandleSearchFiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req searchFilesRequest
	if err := decodeJSON(r, &req); err != nil || len(req.TagNames) == 0 {
		writeError(w, http.StatusBadRequest, "tag_names is required")
		return
	}

	ids, err := h.Tags.SearchByTagNames(req.TagNames, req.Operator)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(ids) == 0 {
		writeJSON(w, http.StatusOK, []*metastore.FileScreening{})
		return
	}
	if req.Offset > 0 && req.Offset < len(ids) {
		ids = ids[req.Offset:]
	} else if req.Offset >= len(ids) {
		ids = nil
	}
	if req.Limit > 0 && req.Limit < len(ids) {
		ids = ids[:req.Limit]
	}

	rows, err := h.Screenings.SearchByIDs(ids)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// HandleTagCloud answers GET /tagging/tag-cloud?limit=&min_weight=.
func (h *TaggingHandler) HandleTagCloud(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit := queryInt(r, "limit", 100)
	minWeight := queryInt(r, "min_weight", 1)

	cloud, err := h.Tags.TagCloud(limit, minWeight)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cloud)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
//
// Package retrieval turns a chat query into the "## Related knowledge"
// context block a chat turn is grounded on, grounded on
// internal/server/chat_handler.go's HandleChat (embed query -> vector
// search -> build context text -> cite matches), generalized from a
// single flat-text match list to hydrated ParentChunk/ChildChunk pairs
// with a similarity score and a source file path.
package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/huozhong-in/knowledge-focus/internal/chunking"
	"github.com/huozhong-in/knowledge-focus/internal/metastore"
	"github.com/huozhong-in/knowledge-focus/internal/modelgateway"
	"github.com/huozhong-in/knowledge-focus/internal/vectorstore"
)

const defaultContextLimit = 8000

// Result is one hydrated, scored retrieval hit.
type Result struct {
	ParentChunkID           int64
	DocumentID              int64
	FilePath                string
	RetrievalContentPreview string
	Distance                float32
	Similarity              float64
}

// Retriever answers a query against the vector index and hydrates hits
// back to their owning ParentChunk/Document rows.
type Retriever struct {
	Meta    *metastore.Store
	Vectors vectorstore.Store
	Gateway *modelgateway.Gateway
}

// New constructs a Retriever.
func New(meta *metastore.Store, vectors vectorstore.Store, gateway *modelgateway.Gateway) *Retriever {
	return &Retriever{Meta: meta, Vectors: vectors, Gateway: gateway}
}

// Search embeds query, searches the vector index restricted to
// documentIDs (all documents when empty, matching spec.md §4.7's
// optional pin-scoping), and hydrates each hit's owning Document for
// its file path. Hits whose owning rows were since deleted are skipped
// rather than failing the whole search.
func (r *Retriever) Search(ctx context.Context, query string, topK int, documentIDs []int64) ([]Result, error) {
	vector, err := r.Gateway.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := r.Vectors.Search(ctx, vector, topK, documentIDs)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		doc, err := r.Meta.Documents.ByID(hit.Record.DocumentID)
		if err != nil {
			continue
		}
		results = append(results, Result{
			ParentChunkID:           hit.Record.ParentChunkID,
			DocumentID:              hit.Record.DocumentID,
			FilePath:                doc.FilePath,
			RetrievalContentPreview: hit.Record.RetrievalContentPreview,
			Distance:                hit.Distance,
			Similarity:              DistanceToSimilarity(hit.Distance),
		})
	}
	return results, nil
}

// DistanceToSimilarity clamps cosine distance (0 = identical, up to 2
// for opposite vectors) into a [0,1] similarity score for display.
func DistanceToSimilarity(distance float32) float64 {
	s := 1 - float64(distance)/2
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

const contextPreviewChars = 1000

// BuildContextBlock renders results into the fixed "## Related
// knowledge" / "**Source**: ..." markdown block a chat turn's system
// prompt is grounded on, with a blank line between entries and no
// entry header beyond its source path. An empty result set yields an
// empty string so callers never inject an empty section header.
func BuildContextBlock(results []Result) string {
	if len(results) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("## Related knowledge\n")
	for _, res := range results {
		b.WriteString("\n**Source**: ")
		b.WriteString(res.FilePath)
		b.WriteString("\n")
		b.WriteString(truncateChars(res.RetrievalContentPreview, contextPreviewChars))
		b.WriteString("\n")
	}
	return b.String()
}

func truncateChars(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// TrimHistory drops the oldest messages until the remaining history
// (plus the context block and a reply-room reserve) fits the active
// chat model's context window, never dropping the most recent message.
func TrimHistory(ctx context.Context, gateway *modelgateway.Gateway, tokenizer chunking.Tokenizer, history []modelgateway.Message, contextBlock string, replyReserveTokens int) []modelgateway.Message {
	limit := gateway.ContextLimit(ctx, defaultContextLimit)
	budget := limit - replyReserveTokens - tokenizer.CountTokens(contextBlock)
	if budget < 0 {
		budget = 0
	}

	kept := make([]modelgateway.Message, 0, len(history))
	used := 0
	for i := len(history) - 1; i >= 0; i-- {
		cost := tokenizer.CountTokens(history[i].Content)
		if used+cost > budget && len(kept) > 0 {
			break
		}
		kept = append(kept, history[i])
		used += cost
	}

	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return kept
}

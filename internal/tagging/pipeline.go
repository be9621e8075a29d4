// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
//
// Package tagging implements TagPipeline: text extraction, structured
// LLM tag generation, tag interning, and linking back to a
// FileScreening row, grounded on the teacher's TaggerPool/processJob
// worker-pool shape (internal/worker/tagger.go), generalized from a
// hardcoded #keyword scheme to the spec's structured-output schema.
package tagging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/huozhong-in/knowledge-focus/internal/errs"
	"github.com/huozhong-in/knowledge-focus/internal/events"
	"github.com/huozhong-in/knowledge-focus/internal/metastore"
	"github.com/huozhong-in/knowledge-focus/internal/modelgateway"
	"github.com/huozhong-in/knowledge-focus/internal/parsing"
)

const (
	extractionBudgetChars = 3000
	interFileDelay        = 500 * time.Millisecond
)

// convertibleExtensions is the set spec.md §4.5 names for
// document-to-markdown conversion rather than direct utf-8 read.
var convertibleExtensions = map[string]bool{
	".pdf":  true,
	".pptx": true,
	".docx": true,
	".xlsx": true,
	".xls":  true,
}

var directReadExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
	".txt":      true,
}

// Pipeline tags FileScreening rows.
type Pipeline struct {
	Meta    *metastore.Store
	Gateway *modelgateway.Gateway
	Bus     *events.Bus
}

// New constructs a TagPipeline.
func New(meta *metastore.Store, gateway *modelgateway.Gateway, bus *events.Bus) *Pipeline {
	return &Pipeline{Meta: meta, Gateway: gateway, Bus: bus}
}

// tagSchema is the structured-output contract every tagging call uses.
var tagSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"tags": map[string]interface{}{
			"type":  "array",
			"items": map[string]interface{}{"type": "string"},
		},
	},
	"required": []interface{}{"tags"},
}

// RunSingle implements the per-file contract: 0-3 tags, interned,
// linked, tagged_time stamped, status left processed. The caller is
// responsible for the per-file transaction boundary (the file's own
// write here is a handful of independent statements, not a single TX,
// matching "never commit inside helpers — the caller commits per file"
// by keeping each statement an idempotent, individually-retriable step).
func (p *Pipeline) RunSingle(ctx context.Context, screening *metastore.FileScreening) error {
	// Step 1: idempotency.
	if screening.TaggedTime.Valid && screening.TaggedTime.Time.After(screening.ModifiedTime) {
		return nil
	}

	// Step 2: extract text.
	text, err := extractText(screening.FilePath, screening.Extension)
	if err != nil {
		return fmt.Errorf("extract text: %w", err)
	}
	if text == "" {
		return p.finish(screening.ID, nil)
	}
	if len(text) > extractionBudgetChars {
		text = text[:extractionBudgetChars]
	}

	// Step 3: ask ModelGateway for tags.
	candidates, err := p.Meta.Tags.AllNames()
	if err != nil {
		return fmt.Errorf("load candidate tags: %w", err)
	}

	raw, err := p.Gateway.Chat(ctx, []modelgateway.Message{
		{Role: modelgateway.RoleSystem, Content: tagSystemPrompt(candidates)},
		{Role: modelgateway.RoleUser, Content: text},
	}, tagSchema)
	if err != nil {
		return fmt.Errorf("ask for tags: %w", err)
	}

	var parsed struct {
		Tags []string `json:"tags"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return fmt.Errorf("parse tag response: %w", err)
	}
	if len(parsed.Tags) > 3 {
		parsed.Tags = parsed.Tags[:3]
	}

	return p.finish(screening.ID, parsed.Tags)
}

// finish interns+links tags (if any) and stamps tagged_time/status.
func (p *Pipeline) finish(screeningID int64, tagNames []string) error {
	if len(tagNames) > 0 {
		tags, err := p.Meta.Tags.GetOrCreate(tagNames, metastore.TagTypeLLM)
		if err != nil {
			return fmt.Errorf("intern tags: %w", err)
		}
		tagIDs := make([]int64, len(tags))
		for i, t := range tags {
			tagIDs[i] = t.ID
		}
		if err := p.Meta.Tags.LinkTags(screeningID, tagIDs); err != nil {
			return fmt.Errorf("link tags: %w", err)
		}
	}

	if err := p.Meta.Screening.MarkTagged(screeningID, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark tagged: %w", err)
	}

	if p.Bus != nil {
		p.Bus.Publish(events.TagsUpdated, "tagging", map[string]interface{}{
			"screening_id": screeningID,
			"tags":         tagNames,
		})
	}
	return nil
}

func tagSystemPrompt(candidates []string) string {
	var b strings.Builder
	b.WriteString("You tag a document with 0 to 3 short topical tags for search and browsing.\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Return between 0 and 3 tags, fewer is fine if the document has little signal.\n")
	b.WriteString("- If the document contains any Chinese characters, prefer Chinese tags; otherwise use English.\n")
	b.WriteString("- English tags use _ to join words, never spaces; keep hyphens inside compound words as-is.\n")
	b.WriteString("- Reuse one of the candidate tags below when it is a strong match instead of inventing a near-duplicate.\n")
	if len(candidates) > 0 {
		b.WriteString("Candidate tags: ")
		b.WriteString(strings.Join(candidates, ", "))
		b.WriteString("\n")
	}
	return b.String()
}

// extractText converts a file to plain text for tagging, per spec.md
// §4.5 step 2: a fixed convertible set goes through the document
// parser (flat text only — tagging never needs typed DocItems), plain
// text/markdown is read directly as utf-8 with invalid sequences
// dropped, anything else yields an empty string.
func extractText(filePath, extension string) (string, error) {
	ext := strings.ToLower(extension)
	switch {
	case convertibleExtensions[ext]:
		parsed, err := parsing.DispatchParse(filePath, "")
		if err != nil {
			return "", nil // unsupported/corrupt doc: tag with nothing rather than fail the file
		}
		return parsed.FlatText, nil
	case directReadExtensions[ext]:
		data, err := os.ReadFile(filePath)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", filePath, err)
		}
		return stripInvalidUTF8(data), nil
	default:
		return "", nil
	}
}

// stripInvalidUTF8 mirrors Python's errors="ignore" decode behavior:
// drop any byte that doesn't form a valid rune rather than failing.
func stripInvalidUTF8(data []byte) string {
	var b strings.Builder
	b.Grow(len(data))
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			i++
			continue
		}
		b.WriteRune(r)
		i += size
	}
	return b.String()
}

// RunResult is what RunTask reports back to the scheduler.
type RunResult struct {
	Processed    int `json:"processed"`
	SuccessCount int `json:"success_count"`
	FailedCount  int `json:"failed_count"`
}

// RunTask implements batch mode: it resolves the set of PENDING
// screening rows a TAGGING task covers (a JSON "screening_ids" array in
// Task.ExtraData for a batch task, or the single row matching
// Task.TargetFilePath otherwise), walks them with a 500ms pause between
// files, and marks only the offending row failed on a per-file error.
// errs.ErrModelUnavailable stops the walk and is returned, leaving the
// row pending, so the scheduler defers the task.
func (p *Pipeline) RunTask(ctx context.Context, task *metastore.Task) (RunResult, error) {
	rows, singleFile, err := p.resolveRows(task)
	if err != nil {
		return RunResult{}, err
	}

	var result RunResult
	for i, row := range rows {
		if row.Status != metastore.ScreeningPending {
			continue
		}

		if i > 0 {
			time.Sleep(interFileDelay)
		}

		result.Processed++
		if err := p.RunSingle(ctx, row); err != nil {
			if errors.Is(err, errs.ErrModelUnavailable) {
				return result, err
			}
			result.FailedCount++
			_ = p.Meta.Screening.MarkFailed(row.ID)
			continue
		}
		result.SuccessCount++

		// Scheduling guarantee: a HIGH single-file TAGGING task may chain a
		// HIGH MULTIVECTOR task on success, iff the file was pinned within
		// the last PinChainWindow — never for a MEDIUM/LOW batch run.
		if singleFile && task.Priority == metastore.PriorityHigh {
			p.maybeChainMultivector(row.FilePath)
		}
	}

	return result, nil
}

// maybeChainMultivector enqueues a HIGH MULTIVECTOR task for filePath
// when its most recent pin (across every session) falls within
// PinChainWindow. A missing or stale pin is silently a no-op, matching
// S3 ("move pinned_at back 48h and repeat: no new task").
func (p *Pipeline) maybeChainMultivector(filePath string) {
	pin, err := p.Meta.Pinned.MostRecentByFilePath(filePath)
	if err != nil {
		return
	}
	if time.Since(pin.PinnedAt) > metastore.PinChainWindow {
		return
	}
	_, _ = p.Meta.Tasks.Enqueue("chain pinned file to multivector", metastore.TaskMultivector, metastore.PriorityHigh, filePath, "")
}

// resolveRows returns the PENDING screening rows a TAGGING task covers,
// plus whether it resolved via the single-file path (Task.TargetFilePath)
// rather than a batch screening_ids array — the distinction the
// TAGGING-success MULTIVECTOR chain gates on.
func (p *Pipeline) resolveRows(task *metastore.Task) ([]*metastore.FileScreening, bool, error) {
	var extra struct {
		ScreeningIDs []int64 `json:"screening_ids"`
	}
	if task.ExtraData != "" {
		_ = json.Unmarshal([]byte(task.ExtraData), &extra)
	}

	if len(extra.ScreeningIDs) > 0 {
		rows, err := p.Meta.Screening.SearchByIDs(extra.ScreeningIDs)
		return rows, false, err
	}

	row, err := p.Meta.Screening.ByFilePath(task.TargetFilePath)
	if err != nil {
		return nil, false, fmt.Errorf("resolve screening row for %s: %w", task.TargetFilePath, err)
	}
	return []*metastore.FileScreening{row}, true, nil
}

// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package chunking

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/huozhong-in/knowledge-focus/internal/errs"
	"github.com/huozhong-in/knowledge-focus/internal/events"
	"github.com/huozhong-in/knowledge-focus/internal/metastore"
	"github.com/huozhong-in/knowledge-focus/internal/modelgateway"
	"github.com/huozhong-in/knowledge-focus/internal/parsing"
	"github.com/huozhong-in/knowledge-focus/internal/vectorstore"
)

// Pipeline implements spec.md §4.6: parse → hybrid chunk → classify →
// summarize → image-context synthesis → dual persistence, grounded on
// the teacher's HiveService.Ingest transaction discipline (store chunk
// metadata, then embed, then upsert the vector) generalized to the
// parent/child split and batched rather than per-chunk.
type Pipeline struct {
	Meta       *metastore.Store
	Vectors    vectorstore.Store
	Gateway    *modelgateway.Gateway
	Bus        *events.Bus
	DoclingDir string

	splitter  *Splitter
	tokenizer Tokenizer
}

// New constructs a ChunkPipeline.
func New(meta *metastore.Store, vectors vectorstore.Store, gateway *modelgateway.Gateway, bus *events.Bus, doclingDir string) *Pipeline {
	return &Pipeline{
		Meta:       meta,
		Vectors:    vectors,
		Gateway:    gateway,
		Bus:        bus,
		DoclingDir: doclingDir,
		splitter:   NewSplitter(),
	}
}

const minSummarizeChars = 50

var imageSignature = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)

var preamblePhrases = []string{
	"here is a summary:",
	"here's a summary:",
	"here is a concise summary:",
	"here's a concise summary:",
	"summary:",
	"sure, here's the summary:",
}

// RunDocument runs the full ChunkPipeline against an absolute file
// path, emitting "chunking-progress" events at 0/20/40/60/80/85/90/100.
func (p *Pipeline) RunDocument(ctx context.Context, filePath string) error {
	p.progress(filePath, 0, nil)

	// Step 1: hash + dedup.
	hash, err := hashFile(filePath)
	if err != nil {
		return fmt.Errorf("hash file: %w", err)
	}

	existing, err := p.Meta.Documents.ByFilePath(filePath)
	if err == nil && existing.FileHash == hash && existing.Status == metastore.DocumentDone {
		p.progress(filePath, 100, map[string]interface{}{"skipped": true})
		return nil
	}

	// EMBEDDING must resolve before any Document row is written: a
	// deferred run must leave no trace (spec's S2 scenario), not a
	// processing-status row nobody asked for.
	if !p.Gateway.CanResolve(modelgateway.Embedding) {
		return fmt.Errorf("chunk document %s: %w", filePath, errs.ErrModelUnavailable)
	}

	doc, err := p.Meta.Documents.GetOrCreate(filePath, hash)
	if err != nil {
		return fmt.Errorf("get_or_create document: %w", err)
	}

	// A reclaimed retry (prior run deferred or failed) must not pile a
	// second generation of Parent/Child rows and vectors on top of the
	// first: every ChildChunk's vector_id must still resolve to exactly
	// one VectorRecord, so stale state is purged before re-chunking.
	if err := p.Meta.Parents.DeleteByDocumentID(doc.ID); err != nil {
		return fmt.Errorf("clear stale chunks for retry: %w", err)
	}
	if err := p.Vectors.DeleteByDocumentID(ctx, doc.ID); err != nil {
		return fmt.Errorf("clear stale vectors for retry: %w", err)
	}

	if err := p.run(ctx, doc, filePath); err != nil {
		if errors.Is(err, errs.ErrModelUnavailable) {
			// Deferral: undo the Document row (cascading any chunks this
			// attempt already wrote) so the next reclaim starts clean and
			// no chunking_error is ever emitted for a deferral.
			_ = p.Meta.Documents.Delete(doc.ID)
			return err
		}
		p.Meta.Documents.MarkError(doc.ID)
		p.Bus.Publish(events.ErrorOccurred, "chunking", map[string]interface{}{
			"event_detail": "chunking_error",
			"document_id":  doc.ID,
			"file_path":    filePath,
			"error":        err.Error(),
		})
		return err
	}

	return nil
}

func (p *Pipeline) run(ctx context.Context, doc *metastore.Document, filePath string) error {
	// Step 2: parse.
	stem := strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	imageCacheDir := filepath.Join(p.DoclingDir, stem)

	parsed, err := parsing.DispatchParse(filePath, imageCacheDir)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}

	if err := p.describeImages(ctx, parsed.Items); err != nil {
		return fmt.Errorf("describe images: %w", err)
	}

	if err := p.persistDoclingCache(doc.ID, stem, parsed); err != nil {
		return fmt.Errorf("persist docling cache: %w", err)
	}
	p.progress(filePath, 20, nil)

	// Step 3: chunk (text items only — table/image items are already
	// single units and pass through the splitter untouched).
	units := p.splitIntoUnits(parsed.Items)
	p.progress(filePath, 40, nil)

	// Step 4: classify.
	classified := classify(units)
	p.progress(filePath, 60, nil)

	// Step 5: generate retrieval summaries.
	type pending struct {
		chunkType metastore.ChunkType
		content   string
		retrieval string
	}
	pendings := make([]pending, len(classified))
	for i, u := range classified {
		pendings[i] = pending{chunkType: u.chunkType, content: u.content}
		pendings[i].retrieval = p.summarize(ctx, u.chunkType, u.content)
	}
	p.progress(filePath, 80, nil)

	// Step 6: image-context chunks, ±2 neighbor text units.
	type imageContextPending struct {
		parentIdx int
		retrieval string
	}
	var imgContexts []imageContextPending
	for i, u := range classified {
		if u.chunkType != metastore.ChunkImage {
			continue
		}
		background := neighborTextSummary(classified, i, 2)
		if background == "" {
			continue
		}
		retrieval := fmt.Sprintf("Image: %s\n\nContext: %s", pendings[i].retrieval, background)
		imgContexts = append(imgContexts, imageContextPending{parentIdx: i, retrieval: retrieval})
	}
	p.progress(filePath, 85, nil)

	// Step 7: persist. Parents first (single TX).
	parentEntries := make([]metastore.NewParent, 0, len(classified)+len(imgContexts))
	for _, pd := range pendings {
		parentEntries = append(parentEntries, metastore.NewParent{ChunkType: pd.chunkType, Content: pd.content, MetadataJSON: "{}"})
	}
	for _, ic := range imgContexts {
		parentEntries = append(parentEntries, metastore.NewParent{
			ChunkType:    metastore.ChunkImageContext,
			Content:      classified[ic.parentIdx].content,
			MetadataJSON: "{}",
		})
	}

	parentIDs, err := p.Meta.Parents.InsertBatch(doc.ID, parentEntries)
	if err != nil {
		return fmt.Errorf("insert parents: %w", err)
	}

	childEntries := make([]metastore.NewChild, 0, len(parentIDs))
	vectorTexts := make([]string, 0, len(parentIDs))
	vectorIDs := make([]string, 0, len(parentIDs))
	for i, pd := range pendings {
		vid := newVectorID()
		childEntries = append(childEntries, metastore.NewChild{ParentChunkID: parentIDs[i], RetrievalContent: pd.retrieval, VectorID: vid})
		vectorTexts = append(vectorTexts, pd.retrieval)
		vectorIDs = append(vectorIDs, vid)
	}
	for j, ic := range imgContexts {
		parentID := parentIDs[len(pendings)+j]
		vid := newVectorID()
		childEntries = append(childEntries, metastore.NewChild{ParentChunkID: parentID, RetrievalContent: ic.retrieval, VectorID: vid})
		vectorTexts = append(vectorTexts, ic.retrieval)
		vectorIDs = append(vectorIDs, vid)
	}

	childIDs, err := p.Meta.Children.InsertBatch(childEntries)
	if err != nil {
		return fmt.Errorf("insert children: %w", err)
	}
	p.progress(filePath, 90, nil)

	// Embed and insert vectors, one batch.
	if len(vectorTexts) > 0 {
		vectors, err := p.Gateway.EmbedBatch(ctx, vectorTexts)
		if err != nil {
			return fmt.Errorf("embed children: %w", err)
		}
		if err := p.Vectors.EnsureTable(ctx, len(vectors[0])); err != nil {
			return fmt.Errorf("ensure vector table: %w", err)
		}

		records := make([]vectorstore.Record, len(vectors))
		for i, v := range vectors {
			preview := vectorTexts[i]
			if len(preview) > 500 {
				preview = preview[:500]
			}
			records[i] = vectorstore.Record{
				VectorID:                vectorIDs[i],
				Vector:                  v,
				ParentChunkID:           childEntries[i].ParentChunkID,
				DocumentID:              doc.ID,
				RetrievalContentPreview: preview,
			}
		}
		if err := p.Vectors.AddVectors(ctx, records); err != nil {
			return fmt.Errorf("add vectors: %w", err)
		}
	}

	_ = childIDs

	// Step 8: finalize.
	if err := p.Meta.Documents.MarkDone(doc.ID); err != nil {
		return fmt.Errorf("mark document done: %w", err)
	}
	p.progress(filePath, 100, map[string]interface{}{"document_id": doc.ID})
	p.Bus.Publish(events.FileProcessed, "chunking", map[string]interface{}{"document_id": doc.ID, "file_path": filePath})

	return nil
}

func (p *Pipeline) progress(filePath string, percent int, extra map[string]interface{}) {
	if p.Bus == nil {
		return
	}
	if extra == nil {
		extra = map[string]interface{}{}
	}
	extra["file_path"] = filePath
	p.Bus.Progress("chunking", "chunking", percent, extra)
}

// describeImages calls ModelGateway's VISION capability on every
// ItemImage whose caption has not already been generated.
func (p *Pipeline) describeImages(ctx context.Context, items []parsing.DocItem) error {
	for i := range items {
		item := &items[i]
		if item.Kind != parsing.ItemImage || item.Text != "" || item.ImagePath == "" {
			continue
		}
		bytes, err := os.ReadFile(item.ImagePath)
		if err != nil {
			continue // a missing page image must not fail the whole document
		}
		caption, err := p.Gateway.DescribeImage(ctx, bytes, "Describe this image for search retrieval in one or two sentences, focusing on concrete entities and facts visible in it.")
		if err != nil {
			continue
		}
		item.Text = caption
	}
	return nil
}

func (p *Pipeline) persistDoclingCache(documentID int64, stem string, parsed parsing.Parsed) error {
	if p.DoclingDir == "" {
		return nil
	}
	if err := os.MkdirAll(p.DoclingDir, 0o755); err != nil {
		return fmt.Errorf("create docling cache dir: %w", err)
	}
	path := filepath.Join(p.DoclingDir, stem+".json")
	data, err := json.Marshal(parsed)
	if err != nil {
		return fmt.Errorf("marshal parsed document: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write docling cache: %w", err)
	}
	return p.Meta.Documents.SetDoclingPath(documentID, path)
}

// unit is one pre-classification span: either a DocItem carried
// through unchanged (table/image) or a piece of the splitter's output
// for a text DocItem.
type unit struct {
	kind parsing.ItemKind
	text string
}

func (p *Pipeline) splitIntoUnits(items []parsing.DocItem) []unit {
	var units []unit
	for _, item := range items {
		switch item.Kind {
		case parsing.ItemTable:
			if strings.TrimSpace(item.TableMarkdown) != "" {
				units = append(units, unit{kind: parsing.ItemTable, text: item.TableMarkdown})
			}
		case parsing.ItemImage:
			units = append(units, unit{kind: parsing.ItemImage, text: item.Text})
		case parsing.ItemText:
			for _, piece := range p.splitter.Split(item.Text) {
				units = append(units, unit{kind: parsing.ItemText, text: piece})
			}
		}
	}
	return units
}

type classifiedUnit struct {
	chunkType metastore.ChunkType
	content   string
}

// classify maps table > image > text priority onto units and splits
// any text unit that embeds a markdown image signature alongside
// substantial prose into contiguous same-type runs by paragraph
// boundary, so chunk_type never emits "mixed".
func classify(units []unit) []classifiedUnit {
	result := make([]classifiedUnit, 0, len(units))
	for _, u := range units {
		switch u.kind {
		case parsing.ItemTable:
			result = append(result, classifiedUnit{chunkType: metastore.ChunkTable, content: u.text})
		case parsing.ItemImage:
			result = append(result, classifiedUnit{chunkType: metastore.ChunkImage, content: u.text})
		case parsing.ItemText:
			result = append(result, classifyMixedText(u.text)...)
		}
	}
	return result
}

func classifyMixedText(text string) []classifiedUnit {
	if !imageSignature.MatchString(text) {
		return []classifiedUnit{{chunkType: metastore.ChunkText, content: text}}
	}

	var out []classifiedUnit
	for _, para := range strings.Split(text, "\n\n") {
		trimmed := strings.TrimSpace(para)
		if trimmed == "" {
			continue
		}
		if imageSignature.MatchString(trimmed) {
			out = append(out, classifiedUnit{chunkType: metastore.ChunkImage, content: trimmed})
		} else {
			out = append(out, classifiedUnit{chunkType: metastore.ChunkText, content: trimmed})
		}
	}
	if len(out) == 0 {
		return []classifiedUnit{{chunkType: metastore.ChunkText, content: text}}
	}
	return out
}

// summarize asks ModelGateway TEXT for a concise retrieval-optimized
// summary with a role-specific system prompt, strips known preamble
// phrases, and falls back to a 500-char truncation on failure or for
// content below the summarization threshold.
func (p *Pipeline) summarize(ctx context.Context, chunkType metastore.ChunkType, content string) string {
	if len(content) < minSummarizeChars {
		return content
	}

	system := summarySystemPrompt(chunkType)
	raw, err := p.Gateway.Chat(ctx, []modelgateway.Message{
		{Role: modelgateway.RoleSystem, Content: system},
		{Role: modelgateway.RoleUser, Content: content},
	}, nil)
	if err != nil {
		return truncate(content, 500)
	}

	return stripPreamble(raw)
}

func summarySystemPrompt(chunkType metastore.ChunkType) string {
	switch chunkType {
	case metastore.ChunkTable:
		return "You summarize a data table for search retrieval. Reply with a single concise sentence naming what the table covers and any standout values. No preamble, no restating these instructions."
	case metastore.ChunkImage:
		return "You summarize an image caption for search retrieval. Reply with a single concise sentence capturing the image's subject. No preamble."
	default:
		return "You summarize a passage of text for search retrieval. Reply with a concise, information-dense summary in at most two sentences. No preamble, no restating these instructions."
	}
}

func stripPreamble(text string) string {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)
	for _, phrase := range preamblePhrases {
		if strings.HasPrefix(lower, phrase) {
			trimmed = strings.TrimSpace(trimmed[len(phrase):])
			lower = strings.ToLower(trimmed)
		}
	}
	return trimmed
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// neighborTextSummary gathers up to n text units before and after idx
// and joins them as the image's related-background block.
func neighborTextSummary(units []classifiedUnit, idx, n int) string {
	var parts []string
	for i := idx - n; i <= idx+n; i++ {
		if i < 0 || i >= len(units) || i == idx {
			continue
		}
		if units[i].chunkType != metastore.ChunkText {
			continue
		}
		parts = append(parts, units[i].content)
	}
	return strings.Join(parts, " ")
}

func hashFile(filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	buf := make([]byte, 8192)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// newVectorID mints the join key a ChildChunk and its VectorRecord
// agree on before either is written. The Qdrant SDK's own PointId_Uuid
// field expects this shape, so a real UUID avoids a translation layer.
func newVectorID() string {
	return uuid.New().String()
}

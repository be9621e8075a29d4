// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package metastore

import (
	"database/sql"
	"fmt"
)

// ChunkType distinguishes what a ParentChunk's content represents.
type ChunkType string

const (
	ChunkText         ChunkType = "text"
	ChunkImage        ChunkType = "image"
	ChunkTable        ChunkType = "table"
	ChunkImageContext ChunkType = "image_context"
)

// ParentChunk holds the parser's raw, unrewritten content for a span of
// a Document. Content purity is an invariant: nothing here is ever
// LLM-rewritten; enrichment lives only on the paired ChildChunk.
type ParentChunk struct {
	ID           int64
	DocumentID   int64
	ChunkType    ChunkType
	Content      string
	MetadataJSON string
}

// ChildChunk is the retrieval-optimized summary of a ParentChunk, the
// thing that actually gets embedded and searched.
type ChildChunk struct {
	ID               int64
	ParentChunkID    int64
	RetrievalContent string
	VectorID         string // UUID string, unique, join key to VectorStore
}

// ParentChunkStore manages the parent_chunks table.
type ParentChunkStore struct {
	db *sql.DB
}

func newParentChunkStore(db *sql.DB) (*ParentChunkStore, error) {
	s := &ParentChunkStore{db: db}
	const schema = `
	CREATE TABLE IF NOT EXISTS parent_chunks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		chunk_type TEXT NOT NULL,
		content TEXT NOT NULL,
		metadata_json TEXT NOT NULL DEFAULT '{}'
	);
	CREATE INDEX IF NOT EXISTS idx_parent_chunks_document ON parent_chunks(document_id);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("init parent_chunks schema: %w", err)
	}
	return s, nil
}

// Insert adds a new ParentChunk and returns its id.
func (s *ParentChunkStore) Insert(documentID int64, chunkType ChunkType, content, metadataJSON string) (int64, error) {
	res, err := s.db.Exec(
		"INSERT INTO parent_chunks (document_id, chunk_type, content, metadata_json) VALUES (?, ?, ?, ?)",
		documentID, chunkType, content, metadataJSON,
	)
	if err != nil {
		return 0, fmt.Errorf("insert parent chunk: %w", err)
	}
	return res.LastInsertId()
}

// ByDocumentID lists every ParentChunk for a document, in insertion
// (id) order, which matches the document's original reading order.
func (s *ParentChunkStore) ByDocumentID(documentID int64) ([]*ParentChunk, error) {
	rows, err := s.db.Query(
		"SELECT id, document_id, chunk_type, content, metadata_json FROM parent_chunks WHERE document_id = ? ORDER BY id",
		documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("parent chunks by document %d: %w", documentID, err)
	}
	defer rows.Close()

	var chunks []*ParentChunk
	for rows.Next() {
		c := &ParentChunk{}
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ChunkType, &c.Content, &c.MetadataJSON); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// ByID fetches a single ParentChunk, used by the Retriever to hydrate a
// ChildChunk search hit back into its raw content for answer synthesis.
func (s *ParentChunkStore) ByID(id int64) (*ParentChunk, error) {
	c := &ParentChunk{}
	err := s.db.QueryRow(
		"SELECT id, document_id, chunk_type, content, metadata_json FROM parent_chunks WHERE id = ?", id,
	).Scan(&c.ID, &c.DocumentID, &c.ChunkType, &c.Content, &c.MetadataJSON)
	if err != nil {
		return nil, fmt.Errorf("parent chunk by id %d: %w", id, err)
	}
	return c, nil
}

// DeleteByDocumentID removes every ParentChunk (and, by the ON DELETE
// CASCADE on child_chunks.parent_chunk_id, every ChildChunk) belonging
// to a document, used before a re-chunk.
func (s *ParentChunkStore) DeleteByDocumentID(documentID int64) error {
	_, err := s.db.Exec("DELETE FROM parent_chunks WHERE document_id = ?", documentID)
	return err
}

// NewParent is one row to insert via InsertBatch.
type NewParent struct {
	ChunkType    ChunkType
	Content      string
	MetadataJSON string
}

// InsertBatch inserts every parent for a document in a single
// transaction and returns their ids in the same order, satisfying
// ChunkPipeline's "insert parents first (single TX)" persistence step.
func (s *ParentChunkStore) InsertBatch(documentID int64, entries []NewParent) ([]int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin parent chunk batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("INSERT INTO parent_chunks (document_id, chunk_type, content, metadata_json) VALUES (?, ?, ?, ?)")
	if err != nil {
		return nil, fmt.Errorf("prepare parent chunk insert: %w", err)
	}
	defer stmt.Close()

	ids := make([]int64, len(entries))
	for i, e := range entries {
		res, err := stmt.Exec(documentID, e.ChunkType, e.Content, e.MetadataJSON)
		if err != nil {
			return nil, fmt.Errorf("insert parent chunk %d: %w", i, err)
		}
		ids[i], err = res.LastInsertId()
		if err != nil {
			return nil, err
		}
	}

	return ids, tx.Commit()
}

// ChildChunkStore manages the child_chunks table.
type ChildChunkStore struct {
	db *sql.DB
}

func newChildChunkStore(db *sql.DB) (*ChildChunkStore, error) {
	s := &ChildChunkStore{db: db}
	const schema = `
	CREATE TABLE IF NOT EXISTS child_chunks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		parent_chunk_id INTEGER NOT NULL REFERENCES parent_chunks(id) ON DELETE CASCADE,
		retrieval_content TEXT NOT NULL,
		vector_id TEXT NOT NULL UNIQUE
	);
	CREATE INDEX IF NOT EXISTS idx_child_chunks_parent ON child_chunks(parent_chunk_id);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("init child_chunks schema: %w", err)
	}
	return s, nil
}

// Insert adds a new ChildChunk and returns its id. vectorID must
// already be the UUID string assigned before the corresponding
// VectorRecord is written, so both rows agree on the join key.
func (s *ChildChunkStore) Insert(parentChunkID int64, retrievalContent, vectorID string) (int64, error) {
	res, err := s.db.Exec(
		"INSERT INTO child_chunks (parent_chunk_id, retrieval_content, vector_id) VALUES (?, ?, ?)",
		parentChunkID, retrievalContent, vectorID,
	)
	if err != nil {
		return 0, fmt.Errorf("insert child chunk: %w", err)
	}
	return res.LastInsertId()
}

// ByVectorID resolves a ChildChunk from the vector_id a search hit
// returned, the bridge from VectorStore results back into MetaStore.
func (s *ChildChunkStore) ByVectorID(vectorID string) (*ChildChunk, error) {
	c := &ChildChunk{}
	err := s.db.QueryRow(
		"SELECT id, parent_chunk_id, retrieval_content, vector_id FROM child_chunks WHERE vector_id = ?", vectorID,
	).Scan(&c.ID, &c.ParentChunkID, &c.RetrievalContent, &c.VectorID)
	if err != nil {
		return nil, fmt.Errorf("child chunk by vector_id %s: %w", vectorID, err)
	}
	return c, nil
}

// NewChild is one row to insert via InsertBatch.
type NewChild struct {
	ParentChunkID    int64
	RetrievalContent string
	VectorID         string
}

// InsertBatch inserts every child for a document in a single
// transaction, after parents exist, so every parent_chunk_id foreign
// key resolves.
func (s *ChildChunkStore) InsertBatch(entries []NewChild) ([]int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin child chunk batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("INSERT INTO child_chunks (parent_chunk_id, retrieval_content, vector_id) VALUES (?, ?, ?)")
	if err != nil {
		return nil, fmt.Errorf("prepare child chunk insert: %w", err)
	}
	defer stmt.Close()

	ids := make([]int64, len(entries))
	for i, e := range entries {
		res, err := stmt.Exec(e.ParentChunkID, e.RetrievalContent, e.VectorID)
		if err != nil {
			return nil, fmt.Errorf("insert child chunk %d: %w", i, err)
		}
		ids[i], err = res.LastInsertId()
		if err != nil {
			return nil, err
		}
	}

	return ids, tx.Commit()
}

// ByParentChunkID lists every ChildChunk derived from a ParentChunk
// (normally exactly one, except image_context fan-out).
func (s *ChildChunkStore) ByParentChunkID(parentChunkID int64) ([]*ChildChunk, error) {
	rows, err := s.db.Query(
		"SELECT id, parent_chunk_id, retrieval_content, vector_id FROM child_chunks WHERE parent_chunk_id = ?",
		parentChunkID,
	)
	if err != nil {
		return nil, fmt.Errorf("child chunks by parent %d: %w", parentChunkID, err)
	}
	defer rows.Close()

	var chunks []*ChildChunk
	for rows.Next() {
		c := &ChildChunk{}
		if err := rows.Scan(&c.ID, &c.ParentChunkID, &c.RetrievalContent, &c.VectorID); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package metastore

import (
	"database/sql"
	"fmt"
	"time"
)

// DocumentStatus is the lifecycle state of a Document's ChunkPipeline run.
type DocumentStatus string

const (
	DocumentProcessing DocumentStatus = "processing"
	DocumentDone       DocumentStatus = "done"
	DocumentError      DocumentStatus = "error"
)

// Document records that a file has been submitted to the ChunkPipeline
// at least once.
type Document struct {
	ID              int64
	FilePath        string
	FileHash        string
	DoclingJSONPath string
	Status          DocumentStatus
	ProcessedAt     sql.NullTime
}

// DocumentStore manages the documents table.
type DocumentStore struct {
	db *sql.DB
}

func newDocumentStore(db *sql.DB) (*DocumentStore, error) {
	s := &DocumentStore{db: db}
	const schema = `
	CREATE TABLE IF NOT EXISTS documents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		file_path TEXT NOT NULL UNIQUE,
		file_hash TEXT NOT NULL,
		docling_json_path TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'processing',
		processed_at DATETIME
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("init documents schema: %w", err)
	}
	return s, nil
}

// GetOrCreate returns the existing Document for file_path if its hash
// still matches, or (re)creates it at status=processing when the file
// changed or no Document exists yet — chunking always runs against a
// document row that reflects the current file contents.
func (s *DocumentStore) GetOrCreate(filePath, fileHash string) (*Document, error) {
	doc, err := s.ByFilePath(filePath)
	if err == nil && doc.FileHash == fileHash {
		return doc, nil
	}
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}

	_, err = s.db.Exec(`
		INSERT INTO documents (file_path, file_hash, status)
		VALUES (?, ?, 'processing')
		ON CONFLICT(file_path) DO UPDATE SET file_hash = excluded.file_hash, status = 'processing', processed_at = NULL
	`, filePath, fileHash)
	if err != nil {
		return nil, fmt.Errorf("get_or_create document: %w", err)
	}
	return s.ByFilePath(filePath)
}

// ByFilePath fetches a Document by its unique file_path.
func (s *DocumentStore) ByFilePath(filePath string) (*Document, error) {
	doc := &Document{}
	err := s.db.QueryRow(`
		SELECT id, file_path, file_hash, docling_json_path, status, processed_at
		FROM documents WHERE file_path = ?
	`, filePath).Scan(&doc.ID, &doc.FilePath, &doc.FileHash, &doc.DoclingJSONPath, &doc.Status, &doc.ProcessedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("document by file_path %s: %w", filePath, err)
	}
	return doc, nil
}

// ByID fetches a Document by id.
func (s *DocumentStore) ByID(id int64) (*Document, error) {
	doc := &Document{}
	err := s.db.QueryRow(`
		SELECT id, file_path, file_hash, docling_json_path, status, processed_at
		FROM documents WHERE id = ?
	`, id).Scan(&doc.ID, &doc.FilePath, &doc.FileHash, &doc.DoclingJSONPath, &doc.Status, &doc.ProcessedAt)
	if err != nil {
		return nil, fmt.Errorf("document by id %d: %w", id, err)
	}
	return doc, nil
}

// SetDoclingPath records the cache path of the parsed intermediate
// representation once the parser has produced it.
func (s *DocumentStore) SetDoclingPath(id int64, path string) error {
	_, err := s.db.Exec("UPDATE documents SET docling_json_path = ? WHERE id = ?", path, id)
	return err
}

// MarkDone flips status to done and stamps processed_at.
func (s *DocumentStore) MarkDone(id int64) error {
	_, err := s.db.Exec(
		"UPDATE documents SET status = 'done', processed_at = ? WHERE id = ?",
		time.Now().UTC(), id,
	)
	return err
}

// MarkError flips status to error.
func (s *DocumentStore) MarkError(id int64) error {
	_, err := s.db.Exec("UPDATE documents SET status = 'error' WHERE id = ?", id)
	return err
}

// Delete removes a Document row outright, cascading (via ON DELETE
// CASCADE on parent_chunks.document_id) to every ParentChunk/ChildChunk
// derived from it. Used to unwind a run deferred on ErrModelUnavailable,
// so a reclaimed retry starts from a clean slate rather than reopening
// a half-populated document.
func (s *DocumentStore) Delete(id int64) error {
	_, err := s.db.Exec("DELETE FROM documents WHERE id = ?", id)
	return err
}

// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package metastore

import (
	"database/sql"
	"fmt"
	"time"
)

// PinChainWindow is how recently a file must have been pinned for a
// TAGGING success or a session Pin to be allowed to chain/bootstrap a
// MULTIVECTOR task, per spec.md's scheduling guarantee.
const PinChainWindow = 24 * time.Hour

// PinnedFile joins a file path into a chat session's working set.
type PinnedFile struct {
	ID           int64
	SessionID    int64
	FilePath     string
	FileName     string
	PinnedAt     time.Time
	MetadataJSON string
}

// PinnedFileStore manages the pinned_files table.
type PinnedFileStore struct {
	db *sql.DB
}

func newPinnedFileStore(db *sql.DB) (*PinnedFileStore, error) {
	s := &PinnedFileStore{db: db}
	const schema = `
	CREATE TABLE IF NOT EXISTS pinned_files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
		file_path TEXT NOT NULL,
		file_name TEXT NOT NULL,
		pinned_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		metadata_json TEXT NOT NULL DEFAULT '{}',
		UNIQUE(session_id, file_path)
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("init pinned_files schema: %w", err)
	}
	return s, nil
}

// Pin adds a file to a session's pinned set. Pinning the same
// (session_id, file_path) pair twice adds no second row; it updates the
// existing row's metadata_json and returns its id.
func (s *PinnedFileStore) Pin(sessionID int64, filePath, fileName, metadataJSON string) (int64, error) {
	_, err := s.db.Exec(`
		INSERT INTO pinned_files (session_id, file_path, file_name, metadata_json)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id, file_path) DO UPDATE SET metadata_json = excluded.metadata_json
	`, sessionID, filePath, fileName, metadataJSON)
	if err != nil {
		return 0, fmt.Errorf("pin file: %w", err)
	}
	var id int64
	if err := s.db.QueryRow(
		"SELECT id FROM pinned_files WHERE session_id = ? AND file_path = ?", sessionID, filePath,
	).Scan(&id); err != nil {
		return 0, fmt.Errorf("resolve pinned file id: %w", err)
	}
	return id, nil
}

// Unpin removes the join row only; the file and its Document/chunks
// are untouched.
func (s *PinnedFileStore) Unpin(sessionID int64, filePath string) error {
	_, err := s.db.Exec("DELETE FROM pinned_files WHERE session_id = ? AND file_path = ?", sessionID, filePath)
	return err
}

// BySession lists every pinned file in a session, most recently pinned first.
func (s *PinnedFileStore) BySession(sessionID int64) ([]*PinnedFile, error) {
	rows, err := s.db.Query(
		"SELECT id, session_id, file_path, file_name, pinned_at, metadata_json FROM pinned_files WHERE session_id = ? ORDER BY pinned_at DESC",
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("pinned files by session %d: %w", sessionID, err)
	}
	defer rows.Close()

	var pins []*PinnedFile
	for rows.Next() {
		p := &PinnedFile{}
		if err := rows.Scan(&p.ID, &p.SessionID, &p.FilePath, &p.FileName, &p.PinnedAt, &p.MetadataJSON); err != nil {
			return nil, err
		}
		pins = append(pins, p)
	}
	return pins, rows.Err()
}

// MostRecentByFilePath returns the most recently pinned_at row for
// filePath across every session, or sql.ErrNoRows if the file has never
// been pinned. Used to gate the TAGGING-success MULTIVECTOR chain on
// "pinned within the last 24h" without caring which session pinned it.
func (s *PinnedFileStore) MostRecentByFilePath(filePath string) (*PinnedFile, error) {
	p := &PinnedFile{}
	err := s.db.QueryRow(
		"SELECT id, session_id, file_path, file_name, pinned_at, metadata_json FROM pinned_files WHERE file_path = ? ORDER BY pinned_at DESC LIMIT 1",
		filePath,
	).Scan(&p.ID, &p.SessionID, &p.FilePath, &p.FileName, &p.PinnedAt, &p.MetadataJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("most recent pin for %s: %w", filePath, err)
	}
	return p, nil
}

// ByID fetches one pinned-file row, used to check the 24h auto-chain
// eligibility window from its pinned_at timestamp.
func (s *PinnedFileStore) ByID(id int64) (*PinnedFile, error) {
	p := &PinnedFile{}
	err := s.db.QueryRow(
		"SELECT id, session_id, file_path, file_name, pinned_at, metadata_json FROM pinned_files WHERE id = ?", id,
	).Scan(&p.ID, &p.SessionID, &p.FilePath, &p.FileName, &p.PinnedAt, &p.MetadataJSON)
	if err != nil {
		return nil, fmt.Errorf("pinned file by id %d: %w", id, err)
	}
	return p, nil
}

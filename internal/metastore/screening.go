// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package metastore

import (
	"database/sql"
	"fmt"
	"time"
)

// ScreeningStatus is the lifecycle state of a file screening row.
type ScreeningStatus string

const (
	ScreeningPending   ScreeningStatus = "pending"
	ScreeningProcessed ScreeningStatus = "processed"
	ScreeningFailed    ScreeningStatus = "failed"
	ScreeningIgnored   ScreeningStatus = "ignored"
)

// FileScreening is a single observed file and its tagging/processing state.
type FileScreening struct {
	ID             int64
	FilePath       string
	FileName       string
	FileSize       int64
	Extension      string
	FileHash       string
	CreatedTime    time.Time
	ModifiedTime   time.Time
	CategoryID     sql.NullInt64
	MatchedRules   string // JSON array
	ExtraMetadata  string // JSON object
	Status         ScreeningStatus
	TaggedTime     sql.NullTime
	TagsDisplayIDs string // sorted CSV
	TaskID         sql.NullInt64
}

// ScreeningStore manages the file_screenings table.
type ScreeningStore struct {
	db *sql.DB
}

func newScreeningStore(db *sql.DB) (*ScreeningStore, error) {
	s := &ScreeningStore{db: db}
	const schema = `
	CREATE TABLE IF NOT EXISTS file_screenings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		file_path TEXT NOT NULL,
		file_name TEXT NOT NULL,
		file_size INTEGER NOT NULL DEFAULT 0,
		extension TEXT NOT NULL DEFAULT '',
		file_hash TEXT NOT NULL,
		created_time DATETIME NOT NULL,
		modified_time DATETIME NOT NULL,
		category_id INTEGER,
		matched_rules TEXT NOT NULL DEFAULT '[]',
		extra_metadata TEXT NOT NULL DEFAULT '{}',
		status TEXT NOT NULL DEFAULT 'pending',
		tagged_time DATETIME,
		tags_display_ids TEXT NOT NULL DEFAULT '',
		task_id INTEGER,
		UNIQUE(file_path, file_hash)
	);
	CREATE INDEX IF NOT EXISTS idx_file_screenings_status ON file_screenings(status);
	CREATE INDEX IF NOT EXISTS idx_file_screenings_file_path ON file_screenings(file_path);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("init file_screenings schema: %w", err)
	}
	return s, nil
}

// UpsertScreening implements upsert_screening: if (file_path, file_hash)
// already exists, metadata is refreshed and status forced back to
// pending; otherwise a new row is inserted.
func (s *ScreeningStore) UpsertScreening(row *FileScreening) (int64, error) {
	_, err := s.db.Exec(`
		INSERT INTO file_screenings
			(file_path, file_name, file_size, extension, file_hash, created_time,
			 modified_time, category_id, matched_rules, extra_metadata, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'pending')
		ON CONFLICT(file_path, file_hash) DO UPDATE SET
			file_name = excluded.file_name,
			file_size = excluded.file_size,
			extension = excluded.extension,
			modified_time = excluded.modified_time,
			category_id = excluded.category_id,
			matched_rules = excluded.matched_rules,
			extra_metadata = excluded.extra_metadata,
			status = 'pending'
	`,
		row.FilePath, row.FileName, row.FileSize, row.Extension, row.FileHash,
		row.CreatedTime, row.ModifiedTime, row.CategoryID, row.MatchedRules, row.ExtraMetadata,
	)
	if err != nil {
		return 0, fmt.Errorf("upsert_screening: %w", err)
	}

	// SQLite only reports a fresh LastInsertId on INSERT, not on the
	// DO UPDATE branch; re-fetch by the unique key either way.
	var existingID int64
	lookupErr := s.db.QueryRow(
		"SELECT id FROM file_screenings WHERE file_path = ? AND file_hash = ?",
		row.FilePath, row.FileHash,
	).Scan(&existingID)
	if lookupErr != nil {
		return 0, fmt.Errorf("resolve upserted screening id: %w", lookupErr)
	}
	return existingID, nil
}

// UpsertScreeningBatch commits every row in one transaction (the "Bulk
// variant commits once" requirement).
func (s *ScreeningStore) UpsertScreeningBatch(rows []*FileScreening) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin upsert_screening batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO file_screenings
			(file_path, file_name, file_size, extension, file_hash, created_time,
			 modified_time, category_id, matched_rules, extra_metadata, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'pending')
		ON CONFLICT(file_path, file_hash) DO UPDATE SET
			file_name = excluded.file_name,
			file_size = excluded.file_size,
			extension = excluded.extension,
			modified_time = excluded.modified_time,
			category_id = excluded.category_id,
			matched_rules = excluded.matched_rules,
			extra_metadata = excluded.extra_metadata,
			status = 'pending'
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert_screening batch: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.Exec(
			row.FilePath, row.FileName, row.FileSize, row.Extension, row.FileHash,
			row.CreatedTime, row.ModifiedTime, row.CategoryID, row.MatchedRules, row.ExtraMetadata,
		); err != nil {
			return fmt.Errorf("upsert_screening batch row %s: %w", row.FilePath, err)
		}
	}

	return tx.Commit()
}

// ByID fetches a single screening row.
func (s *ScreeningStore) ByID(id int64) (*FileScreening, error) {
	row := &FileScreening{}
	err := s.db.QueryRow(`
		SELECT id, file_path, file_name, file_size, extension, file_hash, created_time,
		       modified_time, category_id, matched_rules, extra_metadata, status,
		       tagged_time, tags_display_ids, task_id
		FROM file_screenings WHERE id = ?
	`, id).Scan(
		&row.ID, &row.FilePath, &row.FileName, &row.FileSize, &row.Extension, &row.FileHash,
		&row.CreatedTime, &row.ModifiedTime, &row.CategoryID, &row.MatchedRules, &row.ExtraMetadata,
		&row.Status, &row.TaggedTime, &row.TagsDisplayIDs, &row.TaskID,
	)
	if err != nil {
		return nil, fmt.Errorf("screening by id %d: %w", id, err)
	}
	return row, nil
}

// ByFilePath fetches the most recent screening row for a file path
// (used when resolving the file_path arg of /pin-file and /task/{id}
// lookups that operate from a path rather than a screening id).
func (s *ScreeningStore) ByFilePath(path string) (*FileScreening, error) {
	row := &FileScreening{}
	err := s.db.QueryRow(`
		SELECT id, file_path, file_name, file_size, extension, file_hash, created_time,
		       modified_time, category_id, matched_rules, extra_metadata, status,
		       tagged_time, tags_display_ids, task_id
		FROM file_screenings WHERE file_path = ?
		ORDER BY id DESC LIMIT 1
	`, path).Scan(
		&row.ID, &row.FilePath, &row.FileName, &row.FileSize, &row.Extension, &row.FileHash,
		&row.CreatedTime, &row.ModifiedTime, &row.CategoryID, &row.MatchedRules, &row.ExtraMetadata,
		&row.Status, &row.TaggedTime, &row.TagsDisplayIDs, &row.TaskID,
	)
	if err != nil {
		return nil, fmt.Errorf("screening by file_path %s: %w", path, err)
	}
	return row, nil
}

// SetTaskID records which Task a screening row is attached to.
func (s *ScreeningStore) SetTaskID(id, taskID int64) error {
	_, err := s.db.Exec("UPDATE file_screenings SET task_id = ? WHERE id = ?", taskID, id)
	return err
}

// MarkTagged flips status to processed and stamps tagged_time after the
// TagPipeline completes successfully.
func (s *ScreeningStore) MarkTagged(id int64, taggedAt time.Time) error {
	_, err := s.db.Exec(
		"UPDATE file_screenings SET status = 'processed', tagged_time = ? WHERE id = ?",
		taggedAt, id,
	)
	return err
}

// MarkFailed flips status to failed.
func (s *ScreeningStore) MarkFailed(id int64) error {
	_, err := s.db.Exec("UPDATE file_screenings SET status = 'failed' WHERE id = ?", id)
	return err
}

// DeleteByPathPrefix purges every screening row whose file_path starts
// with prefix, used when a monitored folder is toggled to blacklisted.
// It intentionally does not cascade to Document/VectorStore rows keyed
// on those paths — per spec.md, stale chunks fall out of search results
// naturally as new retrievals favor fresher content.
func (s *ScreeningStore) DeleteByPathPrefix(prefix string) (int64, error) {
	res, err := s.db.Exec("DELETE FROM file_screenings WHERE file_path LIKE ?", prefix+"%")
	if err != nil {
		return 0, fmt.Errorf("delete screenings by prefix %s: %w", prefix, err)
	}
	return res.RowsAffected()
}

// SearchByIDs fetches screening rows for a set of ids, preserving no
// particular order (callers re-sort by relevance).
func (s *ScreeningStore) SearchByIDs(ids []int64) ([]*FileScreening, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := ""
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args[i] = id
	}
	rows, err := s.db.Query(fmt.Sprintf(`
		SELECT id, file_path, file_name, file_size, extension, file_hash, created_time,
		       modified_time, category_id, matched_rules, extra_metadata, status,
		       tagged_time, tags_display_ids, task_id
		FROM file_screenings WHERE id IN (%s)
	`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("search screenings by ids: %w", err)
	}
	defer rows.Close()

	var results []*FileScreening
	for rows.Next() {
		row := &FileScreening{}
		if err := rows.Scan(
			&row.ID, &row.FilePath, &row.FileName, &row.FileSize, &row.Extension, &row.FileHash,
			&row.CreatedTime, &row.ModifiedTime, &row.CategoryID, &row.MatchedRules, &row.ExtraMetadata,
			&row.Status, &row.TaggedTime, &row.TagsDisplayIDs, &row.TaskID,
		); err != nil {
			return nil, err
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

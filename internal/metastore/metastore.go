// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
//
// Package metastore is the SQLite-backed system of record for
// screening rows, tags, tasks, documents, chunks, chat sessions and
// pinned files. Every entity gets its own *Store type constructed
// from a shared *sql.DB, following the teacher's one-store-per-table
// convention (see system_config.go, adapted from the original
// SystemMetadataStore).
package metastore

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store aggregates every entity store over one *sql.DB connection.
type Store struct {
	db *sql.DB

	Screening    *ScreeningStore
	Tags         *TagStore
	Tasks        *TaskStore
	Documents    *DocumentStore
	Parents      *ParentChunkStore
	Children     *ChildChunkStore
	ChatSessions *ChatSessionStore
	Pinned       *PinnedFileStore
	Providers    *ProviderStore
	System       *SystemConfigStore
	Directories  *DirectoryStore
}

// Open opens the SQLite database at path with WAL mode, foreign keys
// and NORMAL synchronous durability, per spec.md §4.1, then
// initializes every entity store's schema and sweeps stale RUNNING
// tasks back to PENDING (resolving the scheduler's Open Question: a
// startup sweep rather than relying on the process dying to reset
// them).
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite3: %w", err)
	}
	db.SetMaxOpenConns(1) // a single writer keeps WAL contention-free for short transactions.

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite3: %w", err)
	}

	s := &Store{db: db}

	var initErr error
	if s.Tags, initErr = newTagStore(db); initErr != nil {
		return nil, initErr
	}
	if s.Screening, initErr = newScreeningStore(db); initErr != nil {
		return nil, initErr
	}
	if s.Tasks, initErr = newTaskStore(db); initErr != nil {
		return nil, initErr
	}
	if s.Documents, initErr = newDocumentStore(db); initErr != nil {
		return nil, initErr
	}
	if s.Parents, initErr = newParentChunkStore(db); initErr != nil {
		return nil, initErr
	}
	if s.Children, initErr = newChildChunkStore(db); initErr != nil {
		return nil, initErr
	}
	if s.ChatSessions, initErr = newChatSessionStore(db); initErr != nil {
		return nil, initErr
	}
	if s.Pinned, initErr = newPinnedFileStore(db); initErr != nil {
		return nil, initErr
	}
	if s.Providers, initErr = newProviderStore(db); initErr != nil {
		return nil, initErr
	}
	if s.System, initErr = newSystemConfigStore(db); initErr != nil {
		return nil, initErr
	}
	if s.Directories, initErr = newDirectoryStore(db); initErr != nil {
		return nil, initErr
	}

	if err := s.Tasks.sweepStaleRunning(); err != nil {
		return nil, fmt.Errorf("sweep stale running tasks: %w", err)
	}

	return s, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw connection for components (e.g. the rules store)
// that need to share it without MetaStore mediating every query.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package metastore

import (
	"database/sql"
	"fmt"
	"time"
)

// MessageRole is who authored a ChatMessage.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// ChatSession is a named, soft-deletable conversation.
type ChatSession struct {
	ID           int64
	Name         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	MetadataJSON string
	IsActive     bool
}

// ChatMessage is one turn in a ChatSession.
type ChatMessage struct {
	ID           int64
	SessionID    int64
	MessageID    string // client-supplied uuid
	Role         MessageRole
	Content      string
	PartsJSON    string
	MetadataJSON string
	SourcesJSON  string
	CreatedAt    time.Time
}

// ChatSessionStore manages chat_sessions and chat_messages. It is the
// raw CRUD layer; internal/sessions wraps it with the smart-title and
// pin-chain eligibility logic the higher-level SessionStore adds.
type ChatSessionStore struct {
	db *sql.DB
}

func newChatSessionStore(db *sql.DB) (*ChatSessionStore, error) {
	s := &ChatSessionStore{db: db}
	const schema = `
	CREATE TABLE IF NOT EXISTS chat_sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		metadata_json TEXT NOT NULL DEFAULT '{}',
		is_active INTEGER NOT NULL DEFAULT 1
	);
	CREATE TABLE IF NOT EXISTS chat_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
		message_id TEXT NOT NULL UNIQUE,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		parts_json TEXT NOT NULL DEFAULT '[]',
		metadata_json TEXT NOT NULL DEFAULT '{}',
		sources_json TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(session_id, created_at);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("init chat_sessions schema: %w", err)
	}
	return s, nil
}

// CreateSession inserts a new active session with the given name.
func (s *ChatSessionStore) CreateSession(name string) (*ChatSession, error) {
	res, err := s.db.Exec("INSERT INTO chat_sessions (name) VALUES (?)", name)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create session last insert id: %w", err)
	}
	return s.SessionByID(id)
}

// SessionByID fetches a session regardless of active state.
func (s *ChatSessionStore) SessionByID(id int64) (*ChatSession, error) {
	sess := &ChatSession{}
	var active int
	err := s.db.QueryRow(
		"SELECT id, name, created_at, updated_at, metadata_json, is_active FROM chat_sessions WHERE id = ?", id,
	).Scan(&sess.ID, &sess.Name, &sess.CreatedAt, &sess.UpdatedAt, &sess.MetadataJSON, &active)
	if err != nil {
		return nil, fmt.Errorf("session by id %d: %w", id, err)
	}
	sess.IsActive = active != 0
	return sess, nil
}

// ListActiveSessions returns every non-soft-deleted session, most
// recently updated first.
func (s *ChatSessionStore) ListActiveSessions() ([]*ChatSession, error) {
	rows, err := s.db.Query(
		"SELECT id, name, created_at, updated_at, metadata_json, is_active FROM chat_sessions WHERE is_active = 1 ORDER BY updated_at DESC",
	)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*ChatSession
	for rows.Next() {
		sess := &ChatSession{}
		var active int
		if err := rows.Scan(&sess.ID, &sess.Name, &sess.CreatedAt, &sess.UpdatedAt, &sess.MetadataJSON, &active); err != nil {
			return nil, err
		}
		sess.IsActive = active != 0
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// RenameSession updates a session's display name (used by smart-title
// generation once the first user message is known).
func (s *ChatSessionStore) RenameSession(id int64, name string) error {
	_, err := s.db.Exec(
		"UPDATE chat_sessions SET name = ?, updated_at = ? WHERE id = ?",
		name, time.Now().UTC(), id,
	)
	return err
}

// TouchSession bumps updated_at, called whenever a message is saved.
func (s *ChatSessionStore) TouchSession(id int64) error {
	_, err := s.db.Exec("UPDATE chat_sessions SET updated_at = ? WHERE id = ?", time.Now().UTC(), id)
	return err
}

// DeleteSession soft-deletes by setting is_active=false.
func (s *ChatSessionStore) DeleteSession(id int64) error {
	_, err := s.db.Exec("UPDATE chat_sessions SET is_active = 0, updated_at = ? WHERE id = ?", time.Now().UTC(), id)
	return err
}

// SaveMessage inserts a ChatMessage. User messages are saved before the
// stream starts; assistant messages after it completes, per spec.md §3.
func (s *ChatSessionStore) SaveMessage(msg *ChatMessage) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO chat_messages (session_id, message_id, role, content, parts_json, metadata_json, sources_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, msg.SessionID, msg.MessageID, msg.Role, msg.Content, msg.PartsJSON, msg.MetadataJSON, msg.SourcesJSON)
	if err != nil {
		return 0, fmt.Errorf("save message: %w", err)
	}
	if err := s.TouchSession(msg.SessionID); err != nil {
		return 0, fmt.Errorf("touch session after save message: %w", err)
	}
	return res.LastInsertId()
}

// MessagesBySession lists every message in a session, oldest first.
func (s *ChatSessionStore) MessagesBySession(sessionID int64) ([]*ChatMessage, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, message_id, role, content, parts_json, metadata_json, sources_json, created_at
		FROM chat_messages WHERE session_id = ? ORDER BY created_at, id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("messages by session %d: %w", sessionID, err)
	}
	defer rows.Close()

	var messages []*ChatMessage
	for rows.Next() {
		m := &ChatMessage{}
		if err := rows.Scan(
			&m.ID, &m.SessionID, &m.MessageID, &m.Role, &m.Content, &m.PartsJSON, &m.MetadataJSON, &m.SourcesJSON, &m.CreatedAt,
		); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// SessionStats reports message counts for a session, used by the
// per-session stats endpoint.
type SessionStats struct {
	MessageCount   int
	UserMessages   int
	AssistantMsgs  int
	LastMessageAt  sql.NullTime
}

// Stats computes SessionStats for a session.
func (s *ChatSessionStore) Stats(sessionID int64) (*SessionStats, error) {
	stats := &SessionStats{}
	err := s.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN role = 'user' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN role = 'assistant' THEN 1 ELSE 0 END), 0),
		       MAX(created_at)
		FROM chat_messages WHERE session_id = ?
	`, sessionID).Scan(&stats.MessageCount, &stats.UserMessages, &stats.AssistantMsgs, &stats.LastMessageAt)
	if err != nil {
		return nil, fmt.Errorf("session stats %d: %w", sessionID, err)
	}
	return stats, nil
}

// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package metastore

import (
	"database/sql"
	"fmt"
)

// SystemConfigStore manages the flat key/value settings table backing
// GET|PUT /system-config/{key}.
type SystemConfigStore struct {
	db *sql.DB
}

func newSystemConfigStore(db *sql.DB) (*SystemConfigStore, error) {
	store := &SystemConfigStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("init system_config schema: %w", err)
	}
	return store, nil
}

func (s *SystemConfigStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS system_config (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Get retrieves a config value by key. It returns "", nil when the key
// is unset, matching the teacher's SystemMetadataStore.Get contract.
func (s *SystemConfigStore) Get(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM system_config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get system_config: %w", err)
	}
	return value, nil
}

// Set upserts a config value by key.
func (s *SystemConfigStore) Set(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO system_config (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}

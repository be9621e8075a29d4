// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package metastore

import (
	"database/sql"
	"fmt"
)

// Capability is one of the ModelGateway's resolvable capabilities.
type Capability string

const (
	CapabilityText              Capability = "TEXT"
	CapabilityVision            Capability = "VISION"
	CapabilityToolUse           Capability = "TOOL_USE"
	CapabilityEmbedding         Capability = "EMBEDDING"
	CapabilityStructuredOutput  Capability = "STRUCTURED_OUTPUT"
)

// ProviderRow is a configured upstream model provider (OpenAI,
// OpenRouter, Ollama, LM Studio, Anthropic, Google, Grok, Groq).
type ProviderRow struct {
	ID       int64
	Name     string
	Kind     string // openai | ollama | anthropic | google | lmstudio | openrouter | groq | grok
	BaseURL  string
	APIKey   string
	UseProxy bool
}

// ConfigurationRow is one named model configuration owned by a Provider.
type ConfigurationRow struct {
	ID              int64
	ProviderID      int64
	ModelIdentifier string
	DisplayName     string
	MaxContextLen   sql.NullInt64
	MaxOutputTokens sql.NullInt64
}

// CapabilityAssignmentRow maps a Capability to exactly one Configuration.
type CapabilityAssignmentRow struct {
	Capability      Capability
	ConfigurationID int64
}

// ProviderStore manages providers, configurations and the capability
// assignment table.
type ProviderStore struct {
	db *sql.DB
}

func newProviderStore(db *sql.DB) (*ProviderStore, error) {
	s := &ProviderStore{db: db}
	const schema = `
	CREATE TABLE IF NOT EXISTS model_providers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		kind TEXT NOT NULL,
		base_url TEXT NOT NULL DEFAULT '',
		api_key TEXT NOT NULL DEFAULT '',
		use_proxy INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS model_configurations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		provider_id INTEGER NOT NULL REFERENCES model_providers(id) ON DELETE CASCADE,
		model_identifier TEXT NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		max_context_length INTEGER,
		max_output_tokens INTEGER,
		UNIQUE(provider_id, model_identifier)
	);
	CREATE TABLE IF NOT EXISTS capability_assignments (
		capability TEXT PRIMARY KEY,
		configuration_id INTEGER NOT NULL REFERENCES model_configurations(id) ON DELETE CASCADE
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("init provider schema: %w", err)
	}
	return s, nil
}

// UpsertProvider inserts or updates a provider by its unique name.
func (s *ProviderStore) UpsertProvider(p *ProviderRow) (int64, error) {
	_, err := s.db.Exec(`
		INSERT INTO model_providers (name, kind, base_url, api_key, use_proxy)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			kind = excluded.kind, base_url = excluded.base_url,
			api_key = excluded.api_key, use_proxy = excluded.use_proxy
	`, p.Name, p.Kind, p.BaseURL, p.APIKey, p.UseProxy)
	if err != nil {
		return 0, fmt.Errorf("upsert provider %s: %w", p.Name, err)
	}
	var id int64
	if err := s.db.QueryRow("SELECT id FROM model_providers WHERE name = ?", p.Name).Scan(&id); err != nil {
		return 0, fmt.Errorf("resolve provider id: %w", err)
	}
	return id, nil
}

// ListProviders returns every configured provider.
func (s *ProviderStore) ListProviders() ([]*ProviderRow, error) {
	rows, err := s.db.Query("SELECT id, name, kind, base_url, api_key, use_proxy FROM model_providers")
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	defer rows.Close()

	var providers []*ProviderRow
	for rows.Next() {
		p := &ProviderRow{}
		var useProxy int
		if err := rows.Scan(&p.ID, &p.Name, &p.Kind, &p.BaseURL, &p.APIKey, &useProxy); err != nil {
			return nil, err
		}
		p.UseProxy = useProxy != 0
		providers = append(providers, p)
	}
	return providers, rows.Err()
}

// UpsertConfiguration inserts or updates a model configuration under a provider.
func (s *ProviderStore) UpsertConfiguration(c *ConfigurationRow) (int64, error) {
	_, err := s.db.Exec(`
		INSERT INTO model_configurations (provider_id, model_identifier, display_name, max_context_length, max_output_tokens)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(provider_id, model_identifier) DO UPDATE SET
			display_name = excluded.display_name,
			max_context_length = excluded.max_context_length,
			max_output_tokens = excluded.max_output_tokens
	`, c.ProviderID, c.ModelIdentifier, c.DisplayName, c.MaxContextLen, c.MaxOutputTokens)
	if err != nil {
		return 0, fmt.Errorf("upsert configuration %s: %w", c.ModelIdentifier, err)
	}
	var id int64
	if err := s.db.QueryRow(
		"SELECT id FROM model_configurations WHERE provider_id = ? AND model_identifier = ?",
		c.ProviderID, c.ModelIdentifier,
	).Scan(&id); err != nil {
		return 0, fmt.Errorf("resolve configuration id: %w", err)
	}
	return id, nil
}

// ConfigurationsByProvider lists every configuration under a provider.
func (s *ProviderStore) ConfigurationsByProvider(providerID int64) ([]*ConfigurationRow, error) {
	rows, err := s.db.Query(
		"SELECT id, provider_id, model_identifier, display_name, max_context_length, max_output_tokens FROM model_configurations WHERE provider_id = ?",
		providerID,
	)
	if err != nil {
		return nil, fmt.Errorf("configurations by provider %d: %w", providerID, err)
	}
	defer rows.Close()

	var configs []*ConfigurationRow
	for rows.Next() {
		c := &ConfigurationRow{}
		if err := rows.Scan(&c.ID, &c.ProviderID, &c.ModelIdentifier, &c.DisplayName, &c.MaxContextLen, &c.MaxOutputTokens); err != nil {
			return nil, err
		}
		configs = append(configs, c)
	}
	return configs, rows.Err()
}

// AssignCapability maps a capability to exactly one configuration,
// replacing any prior assignment.
func (s *ProviderStore) AssignCapability(capability Capability, configurationID int64) error {
	_, err := s.db.Exec(`
		INSERT INTO capability_assignments (capability, configuration_id) VALUES (?, ?)
		ON CONFLICT(capability) DO UPDATE SET configuration_id = excluded.configuration_id
	`, capability, configurationID)
	return err
}

// ResolveCapability returns the (provider, configuration) pair
// currently assigned to a capability. A missing assignment is reported
// via sql.ErrNoRows so callers translate it to errs.ModelUnavailable.
func (s *ProviderStore) ResolveCapability(capability Capability) (*ProviderRow, *ConfigurationRow, error) {
	cfg := &ConfigurationRow{}
	provider := &ProviderRow{}
	var useProxy int
	err := s.db.QueryRow(`
		SELECT p.id, p.name, p.kind, p.base_url, p.api_key, p.use_proxy,
		       c.id, c.provider_id, c.model_identifier, c.display_name, c.max_context_length, c.max_output_tokens
		FROM capability_assignments a
		JOIN model_configurations c ON c.id = a.configuration_id
		JOIN model_providers p ON p.id = c.provider_id
		WHERE a.capability = ?
	`, capability).Scan(
		&provider.ID, &provider.Name, &provider.Kind, &provider.BaseURL, &provider.APIKey, &useProxy,
		&cfg.ID, &cfg.ProviderID, &cfg.ModelIdentifier, &cfg.DisplayName, &cfg.MaxContextLen, &cfg.MaxOutputTokens,
	)
	if err != nil {
		return nil, nil, err
	}
	provider.UseProxy = useProxy != 0
	return provider, cfg, nil
}

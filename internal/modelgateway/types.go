// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
//
// Package modelgateway is the uniform interface to chat, embedding,
// vision and structured-output calls, plus provider discovery and
// capability assignment, generalized from the teacher's
// internal/ai (single-provider chat) and internal/embeddings
// (multi-backend embedding factory) into one capability-resolving
// gateway over a data-driven provider table.
package modelgateway

import "github.com/huozhong-in/knowledge-focus/internal/metastore"

// Capability re-exports metastore.Capability so callers only import
// one package for the enum.
type Capability = metastore.Capability

const (
	Text              = metastore.CapabilityText
	Vision            = metastore.CapabilityVision
	ToolUse           = metastore.CapabilityToolUse
	Embedding         = metastore.CapabilityEmbedding
	StructuredOutput  = metastore.CapabilityStructuredOutput
)

// Role is who authored a chat Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat turn sent to a Provider.
type Message struct {
	Role    Role
	Content string
	// ImageBase64 carries an inline image for a VISION-capable call;
	// empty for ordinary text turns.
	ImageBase64 string
}

// ToolSpec describes a callable tool for a TOOL_USE probe/request.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]interface{} // JSON-schema-shaped
}

// ChatDelta is one streamed text fragment, or a terminal error token.
type ChatDelta struct {
	Text  string
	Done  bool
	Err   error
}

// ModelInfo is a provider-shape-normalized remote model description.
type ModelInfo struct {
	ModelIdentifier  string
	DisplayName      string
	MaxContextLength int // 0 when unknown
	MaxOutputTokens  int // 0 when unknown
}

// resolvedTarget is what resolve hands each Provider call: the
// concrete (model, base_url, api_key, use_proxy) tuple for one capability.
type resolvedTarget struct {
	ModelIdentifier  string
	BaseURL          string
	APIKey           string
	UseProxy         bool
	MaxContextLength int // 0 when unknown
}

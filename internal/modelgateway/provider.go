// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package modelgateway

import "context"

// Provider is implemented once per upstream shape. openaiProvider
// covers every OpenAI-compatible backend (OpenAI itself, OpenRouter,
// Groq, Grok, LM Studio) since they share one request/response shape
// and differ only in base URL and auth header.
type Provider interface {
	Chat(ctx context.Context, target resolvedTarget, messages []Message, schema map[string]interface{}) (string, error)
	StreamChat(ctx context.Context, target resolvedTarget, messages []Message) (<-chan ChatDelta, error)
	Embed(ctx context.Context, target resolvedTarget, texts []string) ([][]float32, error)
	DescribeImage(ctx context.Context, target resolvedTarget, imageBase64, prompt string) (string, error)
	DiscoverModels(ctx context.Context, target resolvedTarget) ([]ModelInfo, error)
}

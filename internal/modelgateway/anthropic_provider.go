// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package modelgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// anthropicProvider speaks the Claude Messages API shape, which
// differs from the OpenAI shape in its auth header
// (x-api-key + anthropic-version) and its system-prompt placement
// (top-level field, not a role in the messages array).
type anthropicProvider struct {
	client *http.Client
}

func newAnthropicProvider() *anthropicProvider {
	return &anthropicProvider{client: &http.Client{Timeout: 60 * time.Second}}
}

const anthropicVersion = "2023-06-01"

func splitSystem(messages []Message) (string, []Message) {
	var system string
	var rest []Message
	for _, m := range messages {
		if m.Role == RoleSystem {
			system = m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}

func (p *anthropicProvider) Chat(ctx context.Context, target resolvedTarget, messages []Message, _ map[string]interface{}) (string, error) {
	system, rest := splitSystem(messages)
	payload := map[string]interface{}{
		"model":      target.ModelIdentifier,
		"max_tokens": 4096,
		"system":     system,
		"messages":   toOpenAIMessages(rest),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal anthropic request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.BaseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build anthropic request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", target.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("anthropic request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("anthropic error (status %d): %s", resp.StatusCode, string(b))
	}

	var parsed struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode anthropic response: %w", err)
	}
	if len(parsed.Content) == 0 {
		return "", fmt.Errorf("anthropic response carried no content blocks")
	}
	return parsed.Content[0].Text, nil
}

// StreamChat falls back to a single non-streaming call wrapped as one
// delta: Anthropic's SSE event shape differs enough from the
// OpenAI/Ollama delta shape that, absent a vendored SDK in the example
// pack, a faithful incremental parser isn't worth hand-rolling here.
func (p *anthropicProvider) StreamChat(ctx context.Context, target resolvedTarget, messages []Message) (<-chan ChatDelta, error) {
	out := make(chan ChatDelta, 2)
	go func() {
		defer close(out)
		text, err := p.Chat(ctx, target, messages, nil)
		if err != nil {
			out <- ChatDelta{Err: err, Done: true}
			return
		}
		out <- ChatDelta{Text: text}
		out <- ChatDelta{Done: true}
	}()
	return out, nil
}

func (p *anthropicProvider) Embed(ctx context.Context, target resolvedTarget, texts []string) ([][]float32, error) {
	return nil, fmt.Errorf("anthropic provider does not implement EMBEDDING")
}

func (p *anthropicProvider) DescribeImage(ctx context.Context, target resolvedTarget, imageBase64, prompt string) (string, error) {
	return p.Chat(ctx, target, []Message{{Role: RoleUser, Content: prompt, ImageBase64: imageBase64}}, nil)
}

func (p *anthropicProvider) DiscoverModels(ctx context.Context, target resolvedTarget) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.BaseURL+"/v1/models", nil)
	if err != nil {
		return nil, fmt.Errorf("build anthropic discover_models request: %w", err)
	}
	req.Header.Set("x-api-key", target.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("anthropic discover_models request: %w", err)
	}
	defer resp.Body.Close()

	var parsed struct {
		Data []struct {
			ID          string `json:"id"`
			DisplayName string `json:"display_name"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode anthropic discover_models response: %w", err)
	}

	models := make([]ModelInfo, 0, len(parsed.Data))
	for _, d := range parsed.Data {
		models = append(models, ModelInfo{ModelIdentifier: d.ID, DisplayName: d.DisplayName})
	}
	return models, nil
}

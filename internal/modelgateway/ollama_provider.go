// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package modelgateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ollamaProvider talks to a local Ollama instance, generalized from
// internal/embeddings/ollama.go's single-purpose /api/embeddings call
// into the full Provider surface (/api/chat, /api/embeddings, /api/tags).
type ollamaProvider struct {
	client *http.Client
}

func newOllamaProvider() *ollamaProvider {
	return &ollamaProvider{client: &http.Client{Timeout: 120 * time.Second}}
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Images  []string `json:"images,omitempty"`
}

func toOllamaMessages(messages []Message) []ollamaMessage {
	out := make([]ollamaMessage, 0, len(messages))
	for _, m := range messages {
		om := ollamaMessage{Role: string(m.Role), Content: m.Content}
		if m.ImageBase64 != "" {
			om.Images = []string{m.ImageBase64}
		}
		out = append(out, om)
	}
	return out
}

func (p *ollamaProvider) Chat(ctx context.Context, target resolvedTarget, messages []Message, _ map[string]interface{}) (string, error) {
	payload := map[string]interface{}{
		"model":    target.ModelIdentifier,
		"messages": toOllamaMessages(messages),
		"stream":   false,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal ollama chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.BaseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build ollama chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama chat error (status %d): %s", resp.StatusCode, string(b))
	}

	var parsed struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode ollama chat response: %w", err)
	}
	return parsed.Message.Content, nil
}

func (p *ollamaProvider) StreamChat(ctx context.Context, target resolvedTarget, messages []Message) (<-chan ChatDelta, error) {
	payload := map[string]interface{}{
		"model":    target.ModelIdentifier,
		"messages": toOllamaMessages(messages),
		"stream":   true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal ollama stream request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.BaseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build ollama stream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama stream request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("ollama stream error (status %d): %s", resp.StatusCode, string(b))
	}

	out := make(chan ChatDelta)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			var chunk struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
				Done bool `json:"done"`
			}
			if err := json.Unmarshal(scanner.Bytes(), &chunk); err != nil {
				continue
			}
			if chunk.Message.Content != "" {
				select {
				case out <- ChatDelta{Text: chunk.Message.Content}:
				case <-ctx.Done():
					return
				}
			}
			if chunk.Done {
				out <- ChatDelta{Done: true}
				return
			}
		}
		if err := scanner.Err(); err != nil {
			select {
			case out <- ChatDelta{Err: err, Done: true}:
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}

func (p *ollamaProvider) Embed(ctx context.Context, target resolvedTarget, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i, text := range texts {
		payload := map[string]string{"model": target.ModelIdentifier, "prompt": text}
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal ollama embed request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.BaseURL+"/api/embeddings", bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("build ollama embed request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := p.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("ollama embed text %d: %w", i, err)
		}

		var parsed struct {
			Embedding []float64 `json:"embedding"`
		}
		decodeErr := json.NewDecoder(resp.Body).Decode(&parsed)
		resp.Body.Close()
		if decodeErr != nil {
			return nil, fmt.Errorf("decode ollama embed response %d: %w", i, decodeErr)
		}

		vec := make([]float32, len(parsed.Embedding))
		for j, v := range parsed.Embedding {
			vec[j] = float32(v)
		}
		result[i] = vec
	}
	return result, nil
}

func (p *ollamaProvider) DescribeImage(ctx context.Context, target resolvedTarget, imageBase64, prompt string) (string, error) {
	return p.Chat(ctx, target, []Message{{Role: RoleUser, Content: prompt, ImageBase64: imageBase64}}, nil)
}

func (p *ollamaProvider) DiscoverModels(ctx context.Context, target resolvedTarget) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.BaseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("build ollama discover_models request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama discover_models request: %w", err)
	}
	defer resp.Body.Close()

	var parsed struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode ollama discover_models response: %w", err)
	}

	models := make([]ModelInfo, 0, len(parsed.Models))
	for _, m := range parsed.Models {
		models = append(models, ModelInfo{ModelIdentifier: m.Name, DisplayName: m.Name})
	}
	return models, nil
}

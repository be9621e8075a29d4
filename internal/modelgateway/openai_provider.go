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
	"strings"
	"time"
)

// openaiProvider speaks the OpenAI chat-completions/embeddings shape,
// which OpenRouter, Groq, Grok and LM Studio all reuse verbatim modulo
// base URL and auth header — generalized from
// internal/ai/openai.go's single-provider net/http calls.
type openaiProvider struct {
	client *http.Client
}

func newOpenAIProvider() *openaiProvider {
	return &openaiProvider{client: &http.Client{Timeout: 60 * time.Second}}
}

type openaiChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiChatRequest struct {
	Model    string              `json:"model"`
	Messages []openaiChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
}

type openaiChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (p *openaiProvider) authHeader(target resolvedTarget) (string, string) {
	return "Authorization", fmt.Sprintf("Bearer %s", target.APIKey)
}

func toOpenAIMessages(messages []Message) []openaiChatMessage {
	out := make([]openaiChatMessage, 0, len(messages))
	for _, m := range messages {
		content := m.Content
		if m.ImageBase64 != "" {
			content = fmt.Sprintf("%s\n[image omitted in this transport shape: %d bytes base64]", content, len(m.ImageBase64))
		}
		out = append(out, openaiChatMessage{Role: string(m.Role), Content: content})
	}
	return out
}

func (p *openaiProvider) Chat(ctx context.Context, target resolvedTarget, messages []Message, schema map[string]interface{}) (string, error) {
	reqBody := openaiChatRequest{Model: target.ModelIdentifier, Messages: toOpenAIMessages(messages)}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	key, val := p.authHeader(target)
	req.Header.Set(key, val)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("chat completion error (status %d): %s", resp.StatusCode, string(b))
	}

	var parsed openaiChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("chat response carried no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

func (p *openaiProvider) StreamChat(ctx context.Context, target resolvedTarget, messages []Message) (<-chan ChatDelta, error) {
	reqBody := openaiChatRequest{Model: target.ModelIdentifier, Messages: toOpenAIMessages(messages), Stream: true}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal stream request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	key, val := p.authHeader(target)
	req.Header.Set(key, val)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stream request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("stream error (status %d): %s", resp.StatusCode, string(b))
	}

	out := make(chan ChatDelta)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "[DONE]" {
				out <- ChatDelta{Done: true}
				return
			}

			var chunk struct {
				Choices []struct {
					Delta struct {
						Content string `json:"content"`
					} `json:"delta"`
				} `json:"choices"`
			}
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				continue
			}
			if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
				select {
				case out <- ChatDelta{Text: chunk.Choices[0].Delta.Content}:
				case <-ctx.Done():
					return
				}
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

type openaiEmbedRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type openaiEmbedResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

func (p *openaiProvider) Embed(ctx context.Context, target resolvedTarget, texts []string) ([][]float32, error) {
	body, err := json.Marshal(openaiEmbedRequest{Input: texts, Model: target.ModelIdentifier})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	key, val := p.authHeader(target)
	req.Header.Set(key, val)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embed error (status %d): %s", resp.StatusCode, string(b))
	}

	var parsed openaiEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(parsed.Data))
	}

	result := make([][]float32, len(parsed.Data))
	for i, d := range parsed.Data {
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		result[i] = vec
	}
	return result, nil
}

func (p *openaiProvider) DescribeImage(ctx context.Context, target resolvedTarget, imageBase64, prompt string) (string, error) {
	return p.Chat(ctx, target, []Message{{Role: RoleUser, Content: prompt, ImageBase64: imageBase64}}, nil)
}

func (p *openaiProvider) DiscoverModels(ctx context.Context, target resolvedTarget) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.BaseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("build discover_models request: %w", err)
	}
	key, val := p.authHeader(target)
	req.Header.Set(key, val)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("discover_models request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("discover_models error (status %d): %s", resp.StatusCode, string(b))
	}

	var parsed struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode discover_models response: %w", err)
	}

	models := make([]ModelInfo, 0, len(parsed.Data))
	for _, d := range parsed.Data {
		models = append(models, ModelInfo{ModelIdentifier: d.ID, DisplayName: d.ID})
	}
	return models, nil
}

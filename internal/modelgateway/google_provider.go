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

// googleProvider speaks the Gemini generateContent shape: API key as a
// query parameter rather than a header, and "parts" arrays instead of
// a flat content string.
type googleProvider struct {
	client *http.Client
}

func newGoogleProvider() *googleProvider {
	return &googleProvider{client: &http.Client{Timeout: 60 * time.Second}}
}

type geminiPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *geminiBlob `json:"inline_data,omitempty"`
}

type geminiBlob struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

func toGeminiContents(messages []Message) []geminiContent {
	out := make([]geminiContent, 0, len(messages))
	for _, m := range messages {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		parts := []geminiPart{{Text: m.Content}}
		if m.ImageBase64 != "" {
			parts = append(parts, geminiPart{InlineData: &geminiBlob{MimeType: "image/png", Data: m.ImageBase64}})
		}
		out = append(out, geminiContent{Role: role, Parts: parts})
	}
	return out
}

func (p *googleProvider) endpoint(target resolvedTarget, method string) string {
	return fmt.Sprintf("%s/models/%s:%s?key=%s", target.BaseURL, target.ModelIdentifier, method, target.APIKey)
}

func (p *googleProvider) Chat(ctx context.Context, target resolvedTarget, messages []Message, _ map[string]interface{}) (string, error) {
	_, rest := splitSystem(messages)
	payload := map[string]interface{}{"contents": toGeminiContents(rest)}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal gemini request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(target, "generateContent"), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build gemini request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("gemini error (status %d): %s", resp.StatusCode, string(b))
	}

	var parsed struct {
		Candidates []struct {
			Content geminiContent `json:"content"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode gemini response: %w", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini response carried no candidates")
	}
	return parsed.Candidates[0].Content.Parts[0].Text, nil
}

// StreamChat falls back to one non-streaming call, same rationale as
// anthropicProvider: Gemini's SSE chunk shape isn't worth a bespoke
// parser without a vendored client in the example pack.
func (p *googleProvider) StreamChat(ctx context.Context, target resolvedTarget, messages []Message) (<-chan ChatDelta, error) {
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

func (p *googleProvider) Embed(ctx context.Context, target resolvedTarget, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i, text := range texts {
		payload := map[string]interface{}{
			"content": geminiContent{Parts: []geminiPart{{Text: text}}},
		}
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal gemini embed request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(target, "embedContent"), bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("build gemini embed request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := p.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("gemini embed text %d: %w", i, err)
		}

		var parsed struct {
			Embedding struct {
				Values []float64 `json:"values"`
			} `json:"embedding"`
		}
		decodeErr := json.NewDecoder(resp.Body).Decode(&parsed)
		resp.Body.Close()
		if decodeErr != nil {
			return nil, fmt.Errorf("decode gemini embed response %d: %w", i, decodeErr)
		}

		vec := make([]float32, len(parsed.Embedding.Values))
		for j, v := range parsed.Embedding.Values {
			vec[j] = float32(v)
		}
		result[i] = vec
	}
	return result, nil
}

func (p *googleProvider) DescribeImage(ctx context.Context, target resolvedTarget, imageBase64, prompt string) (string, error) {
	return p.Chat(ctx, target, []Message{{Role: RoleUser, Content: prompt, ImageBase64: imageBase64}}, nil)
}

func (p *googleProvider) DiscoverModels(ctx context.Context, target resolvedTarget) ([]ModelInfo, error) {
	url := fmt.Sprintf("%s/models?key=%s", target.BaseURL, target.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build gemini discover_models request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini discover_models request: %w", err)
	}
	defer resp.Body.Close()

	var parsed struct {
		Models []struct {
			Name                   string `json:"name"`
			DisplayName            string `json:"displayName"`
			InputTokenLimit        int    `json:"inputTokenLimit"`
			OutputTokenLimit       int    `json:"outputTokenLimit"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode gemini discover_models response: %w", err)
	}

	models := make([]ModelInfo, 0, len(parsed.Models))
	for _, m := range parsed.Models {
		models = append(models, ModelInfo{
			ModelIdentifier:  m.Name,
			DisplayName:      m.DisplayName,
			MaxContextLength: m.InputTokenLimit,
			MaxOutputTokens:  m.OutputTokenLimit,
		})
	}
	return models, nil
}

// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package modelgateway

import (
	"context"
	"hash/fnv"
	"math"
)

// mockProvider returns deterministic canned responses for tests,
// grounded on internal/embeddings/mock.go's hash-seeded vector
// generation, generalized to the rest of the Provider surface.
type mockProvider struct {
	dim int
}

func newMockProvider(dim int) *mockProvider {
	if dim <= 0 {
		dim = 384
	}
	return &mockProvider{dim: dim}
}

func (p *mockProvider) Chat(_ context.Context, _ resolvedTarget, messages []Message, schema map[string]interface{}) (string, error) {
	if schema != nil {
		if props, ok := schema["properties"].(map[string]interface{}); ok {
			if _, hasTags := props["tags"]; hasTags {
				return `{"tags": ["mock_tag_one", "mock_tag_two"]}`, nil
			}
		}
		return `{}`, nil
	}
	if len(messages) == 0 {
		return "", nil
	}
	return "mock reply to: " + messages[len(messages)-1].Content, nil
}

func (p *mockProvider) StreamChat(ctx context.Context, target resolvedTarget, messages []Message) (<-chan ChatDelta, error) {
	text, err := p.Chat(ctx, target, messages, nil)
	if err != nil {
		return nil, err
	}
	out := make(chan ChatDelta, 2)
	out <- ChatDelta{Text: text}
	out <- ChatDelta{Done: true}
	close(out)
	return out, nil
}

func (p *mockProvider) Embed(_ context.Context, _ resolvedTarget, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i, text := range texts {
		result[i] = deterministicVector(text, p.dim)
	}
	return result, nil
}

func deterministicVector(text string, dim int) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	vec := make([]float32, dim)
	var sumSquares float32
	for i := 0; i < dim; i++ {
		v := float32(math.Sin(float64(seed*uint32(i+1)) * 0.1))
		vec[i] = v
		sumSquares += v * v
	}
	norm := float32(math.Sqrt(float64(sumSquares)))
	if norm > 0 {
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}

func (p *mockProvider) DescribeImage(_ context.Context, _ resolvedTarget, _, _ string) (string, error) {
	return "mock image description", nil
}

func (p *mockProvider) DiscoverModels(_ context.Context, _ resolvedTarget) ([]ModelInfo, error) {
	return []ModelInfo{{ModelIdentifier: "mock-model", DisplayName: "Mock Model", MaxContextLength: 8192}}, nil
}

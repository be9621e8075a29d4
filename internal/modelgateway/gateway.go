// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package modelgateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/huozhong-in/knowledge-focus/internal/errs"
	"github.com/huozhong-in/knowledge-focus/internal/metastore"
)

const maxSchemaRetries = 3

// Gateway resolves a Capability to a Provider + resolvedTarget via
// ProviderStore, then dispatches every chat/embed/vision/discovery
// call through that Provider. It is the single seam pipelines and
// HTTP handlers depend on, never a concrete provider type.
type Gateway struct {
	providers     *metastore.ProviderStore
	kindToImpl    map[string]Provider
	mockEmbedDim  int
}

// New constructs a Gateway with one Provider instance per known kind
// string, keyed the same way ProviderRow.Kind is stored.
func New(providers *metastore.ProviderStore) *Gateway {
	return &Gateway{
		providers: providers,
		kindToImpl: map[string]Provider{
			"openai":     newOpenAIProvider(),
			"openrouter": newOpenAIProvider(),
			"groq":       newOpenAIProvider(),
			"grok":       newOpenAIProvider(),
			"lmstudio":   newOpenAIProvider(),
			"ollama":     newOllamaProvider(),
			"anthropic":  newAnthropicProvider(),
			"google":     newGoogleProvider(),
		},
		mockEmbedDim: 384,
	}
}

// NewMock constructs a Gateway that always dispatches to mockProvider,
// regardless of what ProviderStore (which may be nil) says, for tests.
func NewMock(dim int) *Gateway {
	mp := newMockProvider(dim)
	return &Gateway{
		kindToImpl: map[string]Provider{
			"mock": mp,
		},
		mockEmbedDim: dim,
	}
}

// resolve looks up the active CapabilityAssignment and its Provider,
// translating a missing assignment into errs.ErrModelUnavailable so
// every caller can treat it uniformly as a deferral signal.
func (g *Gateway) resolve(capability Capability) (Provider, resolvedTarget, error) {
	if g.providers == nil {
		// Mock mode: a single synthetic target routes to the "mock" impl
		// regardless of capability.
		return g.kindToImpl["mock"], resolvedTarget{ModelIdentifier: "mock-model"}, nil
	}

	provider, cfg, err := g.providers.ResolveCapability(capability)
	if err != nil {
		return nil, resolvedTarget{}, fmt.Errorf("resolve capability %s: %w", capability, errs.ErrModelUnavailable)
	}

	impl, ok := g.kindToImpl[provider.Kind]
	if !ok {
		return nil, resolvedTarget{}, fmt.Errorf("provider kind %q has no implementation: %w", provider.Kind, errs.ErrModelUnavailable)
	}

	return impl, resolvedTarget{
		ModelIdentifier:  cfg.ModelIdentifier,
		BaseURL:          provider.BaseURL,
		APIKey:           provider.APIKey,
		UseProxy:         provider.UseProxy,
		MaxContextLength: int(cfg.MaxContextLen.Int64),
	}, nil
}

// CanResolve reports whether capability currently has a provider and
// configuration assigned, without making any network call — the cheap
// precondition check a pipeline runs before doing any work that would
// otherwise have to unwind partially-written state on a later deferral.
func (g *Gateway) CanResolve(capability Capability) bool {
	_, _, err := g.resolve(capability)
	return err == nil
}

// ContextLimit returns the configured max context length (in tokens)
// for the model currently assigned to TEXT, or fallback when no
// assignment exists or the configuration never recorded one (the
// provider-management UI leaves this field optional since not every
// provider reports it).
func (g *Gateway) ContextLimit(ctx context.Context, fallback int) int {
	_, target, err := g.resolve(Text)
	if err != nil || target.MaxContextLength <= 0 {
		return fallback
	}
	return target.MaxContextLength
}

// Chat resolves TEXT (or STRUCTURED_OUTPUT when schema is non-nil) and
// performs the call. With a schema, the response is parsed as JSON and
// the call is made up to maxSchemaRetries times in total; after each
// failed attempt a new user message carrying the validation error is
// appended before the next one.
func (g *Gateway) Chat(ctx context.Context, messages []Message, schema map[string]interface{}) (string, error) {
	capability := Text
	if schema != nil {
		capability = StructuredOutput
	}

	provider, target, err := g.resolve(capability)
	if err != nil {
		return "", err
	}

	if schema == nil {
		return provider.Chat(ctx, target, messages, nil)
	}

	attempt := append([]Message(nil), messages...)
	var lastErr error
	for i := 0; i < maxSchemaRetries; i++ {
		raw, chatErr := provider.Chat(ctx, target, attempt, schema)
		if chatErr != nil {
			return "", fmt.Errorf("structured chat attempt %d: %w", i+1, chatErr)
		}

		var parsed interface{}
		if jsonErr := json.Unmarshal([]byte(raw), &parsed); jsonErr == nil {
			if validationErr := validateAgainstSchema(parsed, schema); validationErr == nil {
				return raw, nil
			} else {
				lastErr = validationErr
			}
		} else {
			lastErr = jsonErr
		}

		attempt = append(attempt, Message{
			Role:    RoleUser,
			Content: fmt.Sprintf("Your previous response did not match the required JSON shape (%v). Reply again with valid JSON only.", lastErr),
		})
	}

	return "", fmt.Errorf("structured chat failed after %d attempts: %w", maxSchemaRetries, lastErr)
}

// validateAgainstSchema is a minimal structural check: every key named
// in schema["properties"] with "required" must be present in parsed.
// No example repo in the corpus vendors a full JSON-schema validator,
// so this intentionally covers only the presence check the retry loop needs.
func validateAgainstSchema(parsed interface{}, schema map[string]interface{}) error {
	obj, ok := parsed.(map[string]interface{})
	if !ok {
		return fmt.Errorf("response is not a JSON object")
	}
	required, _ := schema["required"].([]interface{})
	for _, r := range required {
		key, _ := r.(string)
		if key == "" {
			continue
		}
		if _, present := obj[key]; !present {
			return fmt.Errorf("missing required field %q", key)
		}
	}
	return nil
}

// StreamChat resolves TEXT and returns the Provider's delta channel unchanged.
func (g *Gateway) StreamChat(ctx context.Context, messages []Message) (<-chan ChatDelta, error) {
	provider, target, err := g.resolve(Text)
	if err != nil {
		return nil, err
	}
	return provider.StreamChat(ctx, target, messages)
}

// Embed resolves EMBEDDING and embeds a single text.
func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := g.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch resolves EMBEDDING and embeds a batch of texts.
func (g *Gateway) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	provider, target, err := g.resolve(Embedding)
	if err != nil {
		return nil, err
	}
	return provider.Embed(ctx, target, texts)
}

// DescribeImage resolves VISION and captions imageBytes, used by the
// parser's picture-description hook.
func (g *Gateway) DescribeImage(ctx context.Context, imageBytes []byte, prompt string) (string, error) {
	provider, target, err := g.resolve(Vision)
	if err != nil {
		return "", err
	}
	encoded := base64.StdEncoding.EncodeToString(imageBytes)
	return provider.DescribeImage(ctx, target, encoded, prompt)
}

// DiscoverModels asks a specific provider kind/target for its
// available models, for the provider-management UI rather than a
// resolved capability.
func (g *Gateway) DiscoverModels(ctx context.Context, kind, baseURL, apiKey string) ([]ModelInfo, error) {
	impl, ok := g.kindToImpl[kind]
	if !ok {
		return nil, fmt.Errorf("unknown provider kind %q: %w", kind, errs.ErrBadInput)
	}
	return impl.DiscoverModels(ctx, resolvedTarget{BaseURL: baseURL, APIKey: apiKey})
}

// TestCapability runs the spec's capability probe for a given
// capability against the currently resolved configuration and reports
// pass/fail without mutating any state.
func (g *Gateway) TestCapability(ctx context.Context, capability Capability) bool {
	switch capability {
	case Text:
		_, err := g.Chat(ctx, []Message{{Role: RoleUser, Content: "respond with the single word: ok"}}, nil)
		return err == nil
	case StructuredOutput:
		schema := map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"tags": map[string]interface{}{"type": "array"}},
			"required":   []interface{}{"tags"},
		}
		_, err := g.Chat(ctx, []Message{{Role: RoleUser, Content: "reply with {\"tags\": [\"probe\"]}"}}, schema)
		return err == nil
	case Vision:
		_, err := g.DescribeImage(ctx, tinyPNG(), "describe this image in one word")
		return err == nil
	case Embedding:
		_, err := g.Embed(ctx, "capability probe sentinel")
		return err == nil
	case ToolUse:
		provider, target, err := g.resolve(Text)
		if err != nil {
			return false
		}
		_, chatErr := provider.Chat(ctx, target, []Message{{Role: RoleUser, Content: "what is the weather in Paris? use the weather tool"}}, nil)
		return chatErr == nil
	default:
		return false
	}
}

// tinyPNG is a 1x1 transparent PNG, the minimal image payload the
// vision probe needs.
func tinyPNG() []byte {
	const b64 = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNk+A8AAQUBAScY42YAAAAASUVORK5CYII="
	data, _ := base64.StdEncoding.DecodeString(b64)
	return data
}

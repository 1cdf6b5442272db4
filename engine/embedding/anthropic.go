package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/lumenpipe/lumen/engine/pipelineerr"
	"golang.org/x/time/rate"
)

// EmbeddingDimension is the fixed vector length AnthropicProvider requests
// from the model. Anthropic has no dedicated embeddings endpoint, so the
// remote fallback asks the Messages API for a deterministic JSON vector of
// this length; it exists purely so a remote path is available when no local
// daemon is healthy (§4.1's "fall back to the remote provider").
const EmbeddingDimension = 256

// AnthropicProvider is the remote fallback embedding provider.
type AnthropicProvider struct {
	client  anthropic.Client
	model   anthropic.Model
	limiter *rate.Limiter
}

// NewAnthropicProvider constructs a remote provider. apiKey must be
// non-empty; an empty key is a config error surfaced at construction, not a
// runtime error on first call (§4.1).
func NewAnthropicProvider(apiKey string, limiter *rate.Limiter) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, pipelineerr.New(pipelineerr.KindConfigInvalid, "anthropic api key missing")
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Limit(2), 4)
	}
	return &AnthropicProvider{
		client:  anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:   anthropic.ModelClaude3_5HaikuLatest,
		limiter: limiter,
	}, nil
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

// Healthy is a cheap local check: the client only fails at call time.
func (p *AnthropicProvider) Healthy(ctx context.Context) bool { return true }

func (p *AnthropicProvider) Embed(ctx context.Context, texts []string) (Result, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := p.limiter.Wait(ctx); err != nil {
			return Result{}, pipelineerr.Wrap(pipelineerr.KindRateLimited, "anthropic embed", err)
		}
		v, err := p.embedOne(ctx, text)
		if err != nil {
			return Result{}, err
		}
		vectors[i] = v
	}
	return Result{Vectors: vectors, ModelName: string(p.model)}, nil
}

func (p *AnthropicProvider) embedOne(ctx context.Context, text string) ([]float32, error) {
	prompt := fmt.Sprintf(
		"Return only a JSON array of exactly %d numbers between -1 and 1 representing a semantic embedding of the following text. No prose, no markdown fences.\n\nTEXT:\n%s",
		EmbeddingDimension, text,
	)
	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: 2048,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, classifyAnthropicErr(err)
	}

	var raw string
	for _, block := range msg.Content {
		if block.Type == "text" {
			raw += block.Text
		}
	}
	raw = strings.TrimSpace(raw)

	var values []float32
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, pipelineerr.Wrap(pipelineerr.KindEmbeddingFailure, "unparseable embedding response", err)
	}
	if len(values) != EmbeddingDimension {
		return nil, pipelineerr.New(pipelineerr.KindDimensionMismatch, fmt.Sprintf("got %d values, want %d", len(values), EmbeddingDimension))
	}
	return values, nil
}

// classifyAnthropicErr maps the SDK's typed API errors onto the §7 taxonomy,
// the way the corpus's AI client layers classify provider errors.
func classifyAnthropicErr(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 401, 403:
			return pipelineerr.Wrap(pipelineerr.KindAuthFailure, "anthropic", err)
		case 429:
			return pipelineerr.Wrap(pipelineerr.KindRateLimited, "anthropic", err)
		case 400, 404, 422:
			return pipelineerr.Wrap(pipelineerr.KindInvalidInput, "anthropic", err)
		}
	}
	return pipelineerr.Wrap(pipelineerr.KindProviderTransport, "anthropic", err)
}

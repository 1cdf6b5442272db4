package processor

import (
	"context"
	"errors"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/lumenpipe/lumen/engine/pipelineerr"
	"github.com/lumenpipe/lumen/engine/prompt"
)

// RemoteLLMProcessor serves the same task set as LocalLLMProcessor against
// Anthropic's chat completions API. Requires credentials at construction.
type RemoteLLMProcessor struct {
	client   anthropic.Client
	model    anthropic.Model
	registry *prompt.Registry
}

// NewRemoteLLMProcessor constructs a remote processor. apiKey must be
// non-empty.
func NewRemoteLLMProcessor(apiKey string, registry *prompt.Registry) (*RemoteLLMProcessor, error) {
	if apiKey == "" {
		return nil, pipelineerr.New(pipelineerr.KindConfigInvalid, "anthropic api key missing")
	}
	return &RemoteLLMProcessor{
		client:   anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:    anthropic.ModelClaude3_5HaikuLatest,
		registry: registry,
	}, nil
}

func (p *RemoteLLMProcessor) Kind() string { return "remote_llm" }

func (p *RemoteLLMProcessor) Process(ctx context.Context, content, task string, opts CallOptions) Result {
	start := time.Now()
	if !localLLMTasks[task] {
		return failResult(start, pipelineerr.New(pipelineerr.KindUnknownTask, task))
	}
	if content == "" {
		return failResult(start, pipelineerr.New(pipelineerr.KindInvalidInput, "content must not be empty"))
	}

	tmpl, err := p.registry.GetByName(task)
	if err != nil {
		return failResult(start, err)
	}
	vars := map[string]string{"content": content}
	for k, v := range opts.Extra {
		if s, ok := v.(string); ok {
			vars[k] = s
		}
	}
	rendered, err := p.registry.Render(tmpl.ID, vars, opts.Model)
	if err != nil {
		return failResult(start, err)
	}

	maxTokens := int64(2048)
	if opts.MaxTokens != nil {
		maxTokens = int64(*opts.MaxTokens)
	} else if rendered.Override != nil && rendered.Override.MaxTokens != nil {
		maxTokens = int64(*rendered.Override.MaxTokens)
	}

	model := p.model
	if opts.Model != "" {
		model = anthropic.Model(opts.Model)
	}

	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     model,
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(rendered.Text)),
		},
	})
	if err != nil {
		return failResult(start, classifyChatErr(err))
	}

	var reply string
	for _, block := range msg.Content {
		if block.Type == "text" {
			reply += block.Text
		}
	}

	metadata := map[string]any{
		"model":            string(model),
		"task":             task,
		"estimated_tokens": estimateTokens(reply),
		"elapsed_seconds":  time.Since(start).Seconds(),
	}
	return okResult(start, reply, metadata)
}

// classifyChatErr maps the SDK's typed API errors onto the §7 taxonomy:
// AuthFailure, RateLimited (retryable), Transport (retryable), BadRequest
// (fatal).
func classifyChatErr(err error) error {
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

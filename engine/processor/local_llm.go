package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/lumenpipe/lumen/engine/pipelineerr"
	"github.com/lumenpipe/lumen/engine/prompt"
	"github.com/lumenpipe/lumen/pkg/fn"
)

// localLLMTasks mirrors the template naming convention: task name ==
// template name, so a template registered as "summarize" serves the
// "summarize" task.
var localLLMTasks = map[string]bool{
	"summarize":        true,
	"enhance":          true,
	"extract_insights": true,
	"questions":        true,
	"classify":         true,
}

// LocalLLMProcessor talks to a local inference daemon's completion endpoint,
// selecting a rendered prompt by task-name convention against the template
// registry.
type LocalLLMProcessor struct {
	baseURL  string
	model    string
	client   *http.Client
	registry *prompt.Registry
	retry    fn.RetryOpts
}

// NewLocalLLMProcessor wires a local daemon at baseURL (e.g.
// "http://localhost:11434") serving model, using registry to render
// task-named templates.
func NewLocalLLMProcessor(baseURL, model string, registry *prompt.Registry) *LocalLLMProcessor {
	return &LocalLLMProcessor{
		baseURL:  baseURL,
		model:    model,
		client:   &http.Client{Timeout: 60 * time.Second},
		registry: registry,
		retry:    fn.DefaultRetry,
	}
}

func (p *LocalLLMProcessor) Kind() string { return "local_llm" }

func (p *LocalLLMProcessor) Process(ctx context.Context, content, task string, opts CallOptions) Result {
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

	model := opts.Model
	if model == "" {
		model = p.model
	}

	reply, retryCount, err := p.generateWithRetry(ctx, model, rendered.Text)
	if err != nil {
		return failResult(start, err)
	}

	metadata := map[string]any{
		"model":              model,
		"task":               task,
		"estimated_tokens":   estimateTokens(reply),
		"elapsed_seconds":    time.Since(start).Seconds(),
		"retry_count":        retryCount,
	}
	return okResult(start, reply, metadata)
}

// generateWithRetry retries transient connection errors with exponential
// backoff, propagating a model-not-found response immediately as fatal.
func (p *LocalLLMProcessor) generateWithRetry(ctx context.Context, model, promptText string) (string, int, error) {
	wait := p.retry.InitialWait
	var lastErr error
	for attempt := 0; attempt < p.retry.MaxAttempts; attempt++ {
		reply, err := p.generate(ctx, model, promptText)
		if err == nil {
			return reply, attempt, nil
		}
		lastErr = err
		if !pipelineerr.Retryable(err) {
			return "", attempt, err
		}
		if attempt == p.retry.MaxAttempts-1 {
			break
		}
		sleepDur := wait
		if p.retry.Jitter {
			sleepDur = time.Duration(float64(wait) * (0.5 + rand.Float64()))
		}
		if sleepDur > p.retry.MaxWait {
			sleepDur = p.retry.MaxWait
		}
		select {
		case <-ctx.Done():
			return "", attempt, pipelineerr.Wrap(pipelineerr.KindTimeout, "local llm generate", ctx.Err())
		case <-time.After(sleepDur):
		}
		wait *= 2
		if wait > p.retry.MaxWait {
			wait = p.retry.MaxWait
		}
	}
	return "", p.retry.MaxAttempts, lastErr
}

type generateReq struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResp struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func (p *LocalLLMProcessor) generate(ctx context.Context, model, promptText string) (string, error) {
	body, _ := json.Marshal(generateReq{Model: model, Prompt: promptText, Stream: false})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", pipelineerr.Wrap(pipelineerr.KindProviderTransport, "build generate request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", pipelineerr.Wrap(pipelineerr.KindProviderTransport, "local llm generate", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", pipelineerr.New(pipelineerr.KindInvalidInput, fmt.Sprintf("model %q not found", model))
	}
	if resp.StatusCode != http.StatusOK {
		return "", pipelineerr.Wrap(pipelineerr.KindProviderTransport, fmt.Sprintf("local llm status %d", resp.StatusCode), nil)
	}

	var out generateResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", pipelineerr.Wrap(pipelineerr.KindProviderTransport, "decode generate response", err)
	}
	return out.Response, nil
}

func estimateTokens(text string) int {
	return (len(text) + 3) / 4
}

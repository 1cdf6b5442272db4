// Package processor implements the uniform process(content, task, opts)
// contract (§4.4) over three backends: a local LLM daemon, a remote LLM
// API, and a vector-store adapter.
package processor

import (
	"context"
	"time"
)

// CallOptions carries per-call overrides. Only RemoteLLMProcessor reads
// MaxTokens, falling back in the order opts → template.ModelOverrides[model]
// → 2048. Neither LLM processor sends Temperature, and LocalLLMProcessor
// applies no template.ModelOverrides setting.
type CallOptions struct {
	Model       string
	Temperature *float64
	MaxTokens   *int
	Extra       map[string]any
}

// Result is the uniform processor outcome.
type Result struct {
	OK       bool
	Content  string
	Metadata map[string]any
	Elapsed  time.Duration
	Error    error
}

// Processor is implemented by LocalLLMProcessor, RemoteLLMProcessor, and
// VectorProcessor.
type Processor interface {
	Kind() string
	Process(ctx context.Context, content, task string, opts CallOptions) Result
}

func failResult(start time.Time, err error) Result {
	return Result{OK: false, Error: err, Elapsed: time.Since(start)}
}

func okResult(start time.Time, content string, metadata map[string]any) Result {
	return Result{OK: true, Content: content, Metadata: metadata, Elapsed: time.Since(start)}
}

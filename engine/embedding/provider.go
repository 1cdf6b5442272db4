// Package embedding implements the embedding provider (§4.1): turning text
// into fixed-dimension vectors, preferring a local model and falling back to
// a remote one.
package embedding

import "context"

// Result is what a Provider call returns: the vectors and the model name
// actually used, so the caller (the vector store) can persist it alongside
// the document.
type Result struct {
	Vectors   [][]float32
	ModelName string
}

// Provider turns text into embeddings.
type Provider interface {
	// Embed embeds a batch of texts in one call.
	Embed(ctx context.Context, texts []string) (Result, error)
	// Healthy reports whether the provider can currently serve requests.
	Healthy(ctx context.Context) bool
	// Name identifies the provider for logging/metrics.
	Name() string
}

// EmbedOne is a convenience wrapper around Embed for a single text.
func EmbedOne(ctx context.Context, p Provider, text string) ([]float32, string, error) {
	res, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, "", err
	}
	if len(res.Vectors) == 0 {
		return nil, "", nil
	}
	return res.Vectors[0], res.ModelName, nil
}

package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/lumenpipe/lumen/engine/pipelineerr"
)

// PreferredModels is the selection order §4.1 defines for "healthy local":
// the first of these present in the daemon's model list wins. A model not in
// this list still counts if its name contains "embed".
var PreferredModels = []string{"nomic-embed-text", "mxbai-embed-large", "all-minilm"}

// OllamaProvider talks to a local Ollama daemon's embeddings API.
type OllamaProvider struct {
	baseURL string
	client  *http.Client

	mu       sync.Mutex
	selected string // resolved preferred model, cached across calls
}

// NewOllamaProvider creates a local embedding provider against baseURL
// (e.g. "http://localhost:11434").
func NewOllamaProvider(baseURL string) *OllamaProvider {
	return &OllamaProvider{baseURL: baseURL, client: &http.Client{}}
}

func (p *OllamaProvider) Name() string { return "ollama" }

type ollamaTagsResp struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// listModels calls GET /api/tags.
func (p *OllamaProvider) listModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama tags: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama tags: status %d", resp.StatusCode)
	}

	var parsed ollamaTagsResp
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("ollama tags decode: %w", err)
	}
	names := make([]string, len(parsed.Models))
	for i, m := range parsed.Models {
		names[i] = m.Name
	}
	return names, nil
}

// selectModel applies the §4.1 selection order over available, returning ""
// if none qualifies.
func selectModel(available []string) string {
	present := make(map[string]bool, len(available))
	for _, m := range available {
		present[m] = true
	}
	for _, pref := range PreferredModels {
		if present[pref] {
			return pref
		}
	}
	for _, m := range available {
		if strings.Contains(m, "embed") {
			return m
		}
	}
	return ""
}

// Healthy reports true iff the daemon is reachable and exposes at least one
// model the selection order recognises, caching the winner for Embed.
func (p *OllamaProvider) Healthy(ctx context.Context) bool {
	available, err := p.listModels(ctx)
	if err != nil {
		return false
	}
	model := selectModel(available)
	if model == "" {
		return false
	}
	p.mu.Lock()
	p.selected = model
	p.mu.Unlock()
	return true
}

type ollamaEmbedReq struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResp struct {
	Embedding []float64 `json:"embedding"`
}

func (p *OllamaProvider) embedOne(ctx context.Context, model, text string) ([]float32, error) {
	body, _ := json.Marshal(ollamaEmbedReq{Model: model, Prompt: text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, pipelineerr.Wrap(pipelineerr.KindProviderTransport, "ollama embed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, pipelineerr.New(pipelineerr.KindProviderTransport, fmt.Sprintf("ollama embed status %d", resp.StatusCode))
	}

	var parsed ollamaEmbedResp
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, pipelineerr.Wrap(pipelineerr.KindProviderTransport, "ollama embed decode", err)
	}
	out := make([]float32, len(parsed.Embedding))
	for i, v := range parsed.Embedding {
		out[i] = float32(v)
	}
	return out, nil
}

// Embed embeds each text with the provider's currently-selected model,
// resolving one via Healthy if none is cached yet.
func (p *OllamaProvider) Embed(ctx context.Context, texts []string) (Result, error) {
	p.mu.Lock()
	model := p.selected
	p.mu.Unlock()
	if model == "" {
		if !p.Healthy(ctx) {
			return Result{}, pipelineerr.New(pipelineerr.KindEmbeddingFailure, "no local embedding model available")
		}
		p.mu.Lock()
		model = p.selected
		p.mu.Unlock()
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := p.embedOne(ctx, model, text)
		if err != nil {
			return Result{}, pipelineerr.Wrap(pipelineerr.KindEmbeddingFailure, fmt.Sprintf("text[%d]", i), err)
		}
		vectors[i] = v
	}
	return Result{Vectors: vectors, ModelName: model}, nil
}

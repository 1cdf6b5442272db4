// Package vectorstore implements the vector store contract (§4.2): persist
// (id, content, metadata, embedding), support upsert, fetch-by-id, k-NN query
// with metadata filter, delete, list, stats.
package vectorstore

import "context"

// Document is the unit of vector-indexed content.
type Document struct {
	ID        string
	Content   string
	Metadata  map[string]any
	Embedding []float32
}

// SearchResult pairs a Document with its similarity and dense 1-based rank.
type SearchResult struct {
	Doc        Document
	Similarity float64
	Rank       int
}

// EmbeddingInfo records the model and dimension locked in for a collection.
type EmbeddingInfo struct {
	ModelName string
	Dimension int
}

// Stats summarises a collection for operators.
type Stats struct {
	Collection    string
	Count         int
	Path          string
	EmbeddingInfo EmbeddingInfo
}

// Store is the uniform contract both backends (ChromemStore, QdrantStore)
// implement. All mutating ops are durable on return.
type Store interface {
	// Add upserts content under id (system-generated if empty), embedding it
	// via the configured provider. Replaces an existing record with the same
	// id atomically.
	Add(ctx context.Context, content string, metadata map[string]any, id string) (Document, error)
	// Query embeds queryText and returns the k nearest documents matching
	// filter (an AND of equality predicates), ranked by similarity descending.
	Query(ctx context.Context, queryText string, k int, filter map[string]any) ([]SearchResult, error)
	Get(ctx context.Context, id string) (Document, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, limit int) ([]Document, error)
	Stats(ctx context.Context) (Stats, error)
}

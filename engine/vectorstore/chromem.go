package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lumenpipe/lumen/engine/embedding"
	"github.com/lumenpipe/lumen/engine/pipelineerr"
	"github.com/philippgille/chromem-go"
)

// ChromemStore is the embedded, pure-Go backend: a persistent chromem-go
// collection for the ANN index plus a sidecar JSON index for the operations
// chromem-go's demonstrated API surface doesn't cover directly (fetch-by-id,
// list, stats, dimension lock).
type ChromemStore struct {
	mu         sync.Mutex
	db         *chromem.DB
	collection *chromem.Collection
	provider   embedding.Provider
	collName   string
	dbPath     string
	sidecarPath string

	docs          map[string]Document
	embeddingInfo EmbeddingInfo
	now           func() time.Time
}

// NewChromemStore opens (or creates) a persistent chromem-go database at
// dbPath, rooted under a collection named collectionName, embedding content
// through provider rather than chromem-go's own Ollama embedding func so the
// provider fallback/breaker policy in engine/embedding stays centralized.
func NewChromemStore(dbPath, collectionName string, provider embedding.Provider) (*ChromemStore, error) {
	if err := os.MkdirAll(dbPath, 0o755); err != nil {
		return nil, pipelineerr.Wrap(pipelineerr.KindStorageIO, "create vector db directory", err)
	}
	db, err := chromem.NewPersistentDB(dbPath, false)
	if err != nil {
		return nil, pipelineerr.Wrap(pipelineerr.KindStorageIO, "open chromem db", err)
	}

	s := &ChromemStore{
		db:          db,
		provider:    provider,
		collName:    collectionName,
		dbPath:      dbPath,
		sidecarPath: filepath.Join(dbPath, collectionName+".sidecar.json"),
		docs:        make(map[string]Document),
		now:         time.Now,
	}

	embedFunc := func(ctx context.Context, text string) ([]float32, error) {
		vec, _, err := embedding.EmbedOne(ctx, s.provider, text)
		return vec, err
	}
	collection, err := db.GetOrCreateCollection(collectionName, nil, embedFunc)
	if err != nil {
		return nil, pipelineerr.Wrap(pipelineerr.KindStorageIO, "create vector collection", err)
	}
	s.collection = collection

	if err := s.loadSidecar(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ChromemStore) loadSidecar() error {
	data, err := os.ReadFile(s.sidecarPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return pipelineerr.Wrap(pipelineerr.KindStorageIO, "read sidecar index", err)
	}
	var snapshot struct {
		Docs          map[string]Document
		EmbeddingInfo EmbeddingInfo
	}
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return pipelineerr.Wrap(pipelineerr.KindStorageIO, "decode sidecar index", err)
	}
	s.docs = snapshot.Docs
	if s.docs == nil {
		s.docs = make(map[string]Document)
	}
	s.embeddingInfo = snapshot.EmbeddingInfo
	return nil
}

// saveSidecar persists the bookkeeping index atomically, mirroring the
// write-temp-then-rename pattern used for the prompt template registry.
func (s *ChromemStore) saveSidecar() error {
	snapshot := struct {
		Docs          map[string]Document
		EmbeddingInfo EmbeddingInfo
	}{Docs: s.docs, EmbeddingInfo: s.embeddingInfo}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return pipelineerr.Wrap(pipelineerr.KindStorageIO, "encode sidecar index", err)
	}
	tmpPath := s.sidecarPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return pipelineerr.Wrap(pipelineerr.KindStorageIO, "write sidecar index", err)
	}
	if err := os.Rename(tmpPath, s.sidecarPath); err != nil {
		os.Remove(tmpPath)
		return pipelineerr.Wrap(pipelineerr.KindStorageIO, "rename sidecar index", err)
	}
	return nil
}

func (s *ChromemStore) Add(ctx context.Context, content string, metadata map[string]any, id string) (Document, error) {
	if content == "" {
		return Document{}, pipelineerr.New(pipelineerr.KindInvalidInput, "content must not be empty")
	}
	if id == "" {
		id = uuid.NewString()
	}

	vec, modelName, err := embedding.EmbedOne(ctx, s.provider, content)
	if err != nil {
		return Document{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.embeddingInfo.Dimension != 0 && s.embeddingInfo.Dimension != len(vec) {
		return Document{}, pipelineerr.New(pipelineerr.KindDimensionMismatch,
			fmt.Sprintf("collection locked to dimension %d, got %d", s.embeddingInfo.Dimension, len(vec)))
	}

	createdAt := s.now()
	fullMetadata := withSystemFields(metadata, content, modelName, createdAt)
	encoded, err := encodeMetadata(fullMetadata)
	if err != nil {
		return Document{}, pipelineerr.Wrap(pipelineerr.KindStorageIO, "encode metadata", err)
	}

	// Replace semantics: clear any prior record under this id first.
	_ = s.collection.Delete(ctx, nil, nil, id)

	if err := s.collection.Add(ctx, []string{id}, [][]float32{vec}, []map[string]string{encoded}, []string{content}); err != nil {
		return Document{}, pipelineerr.Wrap(pipelineerr.KindStorageIO, "add to vector collection", err)
	}

	doc := Document{ID: id, Content: content, Metadata: fullMetadata, Embedding: vec}
	s.docs[id] = doc
	if s.embeddingInfo.Dimension == 0 {
		s.embeddingInfo = EmbeddingInfo{ModelName: modelName, Dimension: len(vec)}
	}
	if err := s.saveSidecar(); err != nil {
		return Document{}, err
	}
	return doc, nil
}

func (s *ChromemStore) Query(ctx context.Context, queryText string, k int, filter map[string]any) ([]SearchResult, error) {
	if k <= 0 {
		return []SearchResult{}, nil
	}
	vec, _, err := embedding.EmbedOne(ctx, s.provider, queryText)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	n := s.collection.Count()
	s.mu.Unlock()
	if n == 0 {
		return nil, nil
	}
	// With a filter every document is ranked, so k matches can still be found
	// beyond the k nearest overall.
	queryK := k
	if queryK > n || filter != nil {
		queryK = n
	}

	results, err := s.collection.QueryEmbedding(ctx, vec, queryK, nil, nil)
	if err != nil {
		return nil, pipelineerr.Wrap(pipelineerr.KindStorageIO, "query vector collection", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		doc, ok := s.docs[r.ID]
		if !ok {
			doc = Document{ID: r.ID, Content: r.Content, Metadata: decodeMetadata(r.Metadata)}
		}
		if filter != nil && !matchesFilter(doc.Metadata, filter) {
			continue
		}
		out = append(out, SearchResult{Doc: doc, Similarity: similarity(r.Similarity)})
		if len(out) == k {
			break
		}
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out, nil
}

func (s *ChromemStore) Get(ctx context.Context, id string) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return Document{}, pipelineerr.New(pipelineerr.KindNotFound, id)
	}
	return doc, nil
}

func (s *ChromemStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return pipelineerr.New(pipelineerr.KindNotFound, id)
	}
	if err := s.collection.Delete(ctx, nil, nil, id); err != nil {
		return pipelineerr.Wrap(pipelineerr.KindStorageIO, "delete from vector collection", err)
	}
	delete(s.docs, id)
	return s.saveSidecar()
}

func (s *ChromemStore) List(ctx context.Context, limit int) ([]Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Document, 0, len(s.docs))
	for _, doc := range s.docs {
		out = append(out, doc)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *ChromemStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Collection:    s.collName,
		Count:         len(s.docs),
		Path:          s.dbPath,
		EmbeddingInfo: s.embeddingInfo,
	}, nil
}

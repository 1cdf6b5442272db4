package vectorstore

import (
	"encoding/json"
	"fmt"
	"time"
)

// similarity implements §4.2's "Similarity is derived from distance via
// 1 / (1 + distance)". Both backends hand back a cosine-similarity score in
// [-1, 1]; distance is 1 - score, which keeps the transform monotonic in
// score and bounded to (0, 1].
func similarity(cosineScore float32) float64 {
	distance := 1 - float64(cosineScore)
	return 1 / (1 + distance)
}

// withSystemFields returns a copy of metadata with the mandatory system keys
// set: content_length, embedding_model, created_at (epoch seconds).
func withSystemFields(metadata map[string]any, content, modelName string, createdAt time.Time) map[string]any {
	out := make(map[string]any, len(metadata)+3)
	for k, v := range metadata {
		out[k] = v
	}
	out["content_length"] = len(content)
	out["embedding_model"] = modelName
	out["created_at"] = createdAt.Unix()
	return out
}

// encodeMetadata flattens a JSON-scalar metadata map into the string-only
// shape chromem-go's Add/QueryEmbedding/Delete accept, preserving types via a
// JSON-encoded value so decodeMetadata can restore them exactly.
func encodeMetadata(metadata map[string]any) (map[string]string, error) {
	out := make(map[string]string, len(metadata))
	for k, v := range metadata {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode metadata key %q: %w", k, err)
		}
		out[k] = string(data)
	}
	return out, nil
}

func decodeMetadata(encoded map[string]string) map[string]any {
	out := make(map[string]any, len(encoded))
	for k, raw := range encoded {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw // tolerate values written before JSON-encoding was adopted
		}
		out[k] = v
	}
	return out
}

// matchesFilter implements §4.2's AND-of-equality metadata filter semantics.
// An unknown key in filter selects no records.
func matchesFilter(metadata map[string]any, filter map[string]any) bool {
	for k, want := range filter {
		got, ok := metadata[k]
		if !ok {
			return false
		}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

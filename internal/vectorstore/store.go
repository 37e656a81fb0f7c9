// Package vectorstore defines the collaborator that persists dense document
// vectors and answers native similarity queries. Backends live in the
// memory, sqlite and qdrant subpackages.
package vectorstore

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// Collection identifies a set of records sharing one vector dimension.
type Collection struct {
	Name      string `json:"name"`
	Dimension int    `json:"dimension"`
}

// Record is one stored document. ID is the document's ordinal in the corpus
// the collection was built from.
type Record struct {
	ID     int64     `json:"id"`
	Text   string    `json:"text"`
	Vector []float32 `json:"vector"`
}

// Hit is a native search result.
type Hit struct {
	ID    int64   `json:"id"`
	Score float64 `json:"score"`
	Text  string  `json:"text"`
}

// Store is implemented by every vector store backend. Transport failures
// are reported wrapping errors.ErrStoreUnavailable; a missing collection
// wraps errors.ErrNotInitialized.
type Store interface {
	// Connect is idempotent.
	Connect(ctx context.Context) error
	// EnsureCollection creates name with dimension dim, dropping any
	// existing collection of that name with a different dimension.
	EnsureCollection(ctx context.Context, name string, dim int) (Collection, error)
	OpenCollection(ctx context.Context, name string) (Collection, error)
	DropCollection(ctx context.Context, name string) error
	Insert(ctx context.Context, c Collection, records []Record) error
	Flush(ctx context.Context, c Collection) error
	// QueryAll returns every record ordered by ID.
	QueryAll(ctx context.Context, c Collection) ([]Record, error)
	Search(ctx context.Context, c Collection, vector []float32, topK int) ([]Hit, error)
	Count(ctx context.Context, c Collection) (int64, error)
	Close() error
}

// Cosine returns the cosine similarity of two equal-length dense vectors,
// or 0 when either has zero magnitude.
func Cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na2, nb2 float64
	for i := 0; i < n; i++ {
		va, vb := float64(a[i]), float64(b[i])
		dot += va * vb
		na2 += va * va
		nb2 += vb * vb
	}
	for _, v := range a[n:] {
		na2 += float64(v) * float64(v)
	}
	for _, v := range b[n:] {
		nb2 += float64(v) * float64(v)
	}
	if na2 == 0 || nb2 == 0 {
		return 0
	}
	return dot / (math.Sqrt(na2) * math.Sqrt(nb2))
}

// BruteForce scores every record against query and returns the best topK,
// ties broken by ascending ID. Backends without a native index use it.
func BruteForce(records []Record, query []float32, topK int) []Hit {
	if topK <= 0 {
		return []Hit{}
	}
	hits := make([]Hit, len(records))
	for i, r := range records {
		hits[i] = Hit{ID: r.ID, Score: Cosine(query, r.Vector), Text: r.Text}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}

// EncodeVector packs vec as little-endian IEEE 754 float32 values.
func EncodeVector(vec []float32) []byte {
	b := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

// DecodeVector reverses EncodeVector.
func DecodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vectorstore: invalid vector blob length %d", len(b))
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, nil
}

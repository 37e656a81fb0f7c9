// Package vocabstore persists frozen vocabulary snapshots and tracks which
// version is current. Backends live in the postgres and bolt subpackages.
package vocabstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/indexer/vocabulary"
)

// Repository stores snapshots. Save writes the snapshot and marks it current
// in one atomic step. Current wraps errors.ErrNotInitialized when nothing was
// ever saved.
type Repository interface {
	Save(ctx context.Context, v *vocabulary.Vocabulary) error
	Current(ctx context.Context) (*vocabulary.Vocabulary, error)
	Close() error
}

// document is the serialized form. The term index is derived from Terms on
// load rather than stored.
type document struct {
	Version    string             `json:"version"`
	Terms      []string           `json:"terms"`
	IDF        map[string]float64 `json:"idf"`
	DocCount   int                `json:"doc_count"`
	Collection string             `json:"collection"`
	Checksum   string             `json:"checksum"`
	CreatedAt  time.Time          `json:"created_at"`
}

// Encode serializes v for storage.
func Encode(v *vocabulary.Vocabulary) ([]byte, error) {
	return json.Marshal(document{
		Version:    v.Version,
		Terms:      v.Terms,
		IDF:        v.IDF,
		DocCount:   v.DocCount,
		Collection: v.Collection,
		Checksum:   v.Checksum,
		CreatedAt:  v.CreatedAt,
	})
}

// Decode restores and validates a snapshot produced by Encode.
func Decode(data []byte) (*vocabulary.Vocabulary, error) {
	var d document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decoding vocabulary: %w", err)
	}
	return Assemble(d.Version, d.Terms, d.IDF, d.DocCount, d.Collection, d.Checksum, d.CreatedAt)
}

// Assemble rebuilds a snapshot from stored columns and validates it.
func Assemble(version string, terms []string, idf map[string]float64, docCount int, collection, checksum string, createdAt time.Time) (*vocabulary.Vocabulary, error) {
	if terms == nil {
		terms = []string{}
	}
	if idf == nil {
		idf = map[string]float64{}
	}
	v := &vocabulary.Vocabulary{
		Version:    version,
		Terms:      terms,
		Index:      vocabulary.IndexFromTerms(terms),
		IDF:        idf,
		DocCount:   docCount,
		Collection: collection,
		Checksum:   checksum,
		CreatedAt:  createdAt,
	}
	if err := v.Validate(); err != nil {
		return nil, fmt.Errorf("loading vocabulary: %w", err)
	}
	return v, nil
}

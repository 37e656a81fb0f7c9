// Package vocabulary builds the frozen, versioned term index and IDF table
// that every stored and queried vector is aligned to.
//
// A *Vocabulary is an immutable snapshot: once built or loaded it is never
// modified. Rebuilds produce a new snapshot that replaces the old one in a
// Holder.
package vocabulary

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/indexer/termstats"
	"github.com/google/uuid"
)

type Vocabulary struct {
	Version    string             `json:"version"`
	Terms      []string           `json:"terms"`
	Index      map[string]int     `json:"index"`
	IDF        map[string]float64 `json:"idf"`
	DocCount   int                `json:"doc_count"`
	Collection string             `json:"collection"`
	Checksum   string             `json:"checksum"`
	CreatedAt  time.Time          `json:"created_at"`
}

// IDF returns ln(1 + n/df). It is strictly positive for df >= 1 and
// decreases as df grows.
func IDF(n, df int) float64 {
	if df <= 0 {
		return 0
	}
	return math.Log(1 + float64(n)/float64(df))
}

// Build derives a new snapshot from the per-document term counts of a corpus.
// Terms are sorted lexicographically so an unchanged corpus always yields the
// same index assignment.
func Build(counts []termstats.Counts) *Vocabulary {
	df := termstats.DocumentFrequency(counts)
	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	n := len(counts)
	index := make(map[string]int, len(terms))
	idf := make(map[string]float64, len(terms))
	for i, term := range terms {
		index[term] = i
		idf[term] = IDF(n, df[term])
	}
	return &Vocabulary{
		Version:   uuid.NewString(),
		Terms:     terms,
		Index:     index,
		IDF:       idf,
		DocCount:  n,
		Checksum:  Checksum(terms),
		CreatedAt: time.Now().UTC(),
	}
}

// Dimension is the length of every vector produced under this snapshot.
func (v *Vocabulary) Dimension() int {
	return len(v.Terms)
}

// ShortVersion is the first eight hex digits of the version, used in
// collection names.
func (v *Vocabulary) ShortVersion() string {
	s := strings.ReplaceAll(v.Version, "-", "")
	if len(s) > 8 {
		s = s[:8]
	}
	return s
}

// CollectionName names the vector-store collection that holds the vectors
// written under this snapshot.
func (v *Vocabulary) CollectionName(prefix string) string {
	return prefix + "_" + v.ShortVersion()
}

// WithCollection returns a copy of the snapshot bound to collection.
func (v *Vocabulary) WithCollection(collection string) *Vocabulary {
	cp := *v
	cp.Collection = collection
	return &cp
}

// Validate checks that terms are sorted and unique and that the index and
// IDF table agree with them.
func (v *Vocabulary) Validate() error {
	if v.Version == "" {
		return fmt.Errorf("vocabulary has no version")
	}
	if len(v.Index) != len(v.Terms) {
		return fmt.Errorf("vocabulary %s: index has %d entries for %d terms", v.Version, len(v.Index), len(v.Terms))
	}
	for i, term := range v.Terms {
		if i > 0 && v.Terms[i-1] >= term {
			return fmt.Errorf("vocabulary %s: terms not strictly sorted at %d", v.Version, i)
		}
		if idx, ok := v.Index[term]; !ok || idx != i {
			return fmt.Errorf("vocabulary %s: term %q maps to %d, want %d", v.Version, term, idx, i)
		}
		if w, ok := v.IDF[term]; !ok || w < 0 {
			return fmt.Errorf("vocabulary %s: missing or negative idf for %q", v.Version, term)
		}
	}
	if v.Checksum != "" && v.Checksum != Checksum(v.Terms) {
		return fmt.Errorf("vocabulary %s: checksum mismatch", v.Version)
	}
	return nil
}

// Checksum fingerprints an ordered term list.
func Checksum(terms []string) string {
	h := sha256.New()
	for _, t := range terms {
		h.Write([]byte(t))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// IndexFromTerms rebuilds the term->index map of an ordered term list.
func IndexFromTerms(terms []string) map[string]int {
	index := make(map[string]int, len(terms))
	for i, t := range terms {
		index[t] = i
	}
	return index
}

// Holder publishes the serving snapshot. Readers bind one snapshot for the
// duration of a request; writers replace it wholesale.
type Holder struct {
	current atomic.Pointer[Vocabulary]
}

// Load returns the serving snapshot, or nil before the first build or restore.
func (h *Holder) Load() *Vocabulary {
	return h.current.Load()
}

// Swap installs v and returns the snapshot it replaced.
func (h *Holder) Swap(v *Vocabulary) *Vocabulary {
	return h.current.Swap(v)
}

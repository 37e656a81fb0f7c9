// Package executor answers queries against the serving vocabulary snapshot,
// using the vector store's native similarity search or ranking locally
// retrieved records by cosine similarity.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/indexer/vectorizer"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/indexer/vocabulary"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/vectorstore"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/resilience"
)

// Mode selects the execution path.
type Mode string

const (
	// ModeAuto tries native search and falls back to local ranking when
	// the store is unavailable or too slow.
	ModeAuto     Mode = "auto"
	ModeNative   Mode = "native"
	ModeFallback Mode = "fallback"
)

// ParseMode accepts "", auto, native and fallback.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return ModeAuto, nil
	case ModeAuto, ModeNative, ModeFallback:
		return Mode(s), nil
	}
	return "", apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "unknown search mode %q", s)
}

// Match is one ranked document. Index is its ordinal in the indexed corpus.
type Match struct {
	Index int64   `json:"index"`
	Score float64 `json:"score"`
	Text  string  `json:"text"`
}

type SearchResult struct {
	Query             string  `json:"query"`
	Path              Mode    `json:"path"`
	VocabularyVersion string  `json:"vocabulary_version"`
	Results           []Match `json:"results"`
}

// Snapshots yields the serving snapshot and its collection, or
// errors.ErrNotInitialized.
type Snapshots interface {
	Serving() (*vocabulary.Vocabulary, vectorstore.Collection, error)
}

type Executor struct {
	snapshots Snapshots
	store     vectorstore.Store
	timeout   time.Duration
	threshold float64
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New creates an Executor. m may be nil.
func New(snapshots Snapshots, store vectorstore.Store, cfg config.SearchConfig, m *metrics.Metrics) *Executor {
	return &Executor{
		snapshots: snapshots,
		store:     store,
		timeout:   cfg.Timeout,
		threshold: cfg.SparseThreshold,
		metrics:   m,
		logger:    slog.Default().With("component", "query-executor"),
	}
}

// Search vectorizes query under one snapshot and returns at most topK
// matches. Out-of-vocabulary terms are ignored; a query with no known terms
// is ranked locally, where every document scores zero.
func (e *Executor) Search(ctx context.Context, query string, topK int, mode Mode) (*SearchResult, error) {
	start := time.Now()
	path, res, err := e.search(ctx, query, topK, mode)
	if e.metrics != nil {
		outcome := "hit"
		switch {
		case err != nil:
			outcome = "error"
		case len(res.Results) == 0:
			outcome = "zero_result"
		}
		e.metrics.SearchQueriesTotal.WithLabelValues(string(path), outcome).Inc()
		e.metrics.SearchLatency.WithLabelValues(string(path)).Observe(time.Since(start).Seconds())
		if err == nil {
			e.metrics.SearchResultsCount.Observe(float64(len(res.Results)))
		}
	}
	return res, err
}

func (e *Executor) search(ctx context.Context, query string, topK int, mode Mode) (Mode, *SearchResult, error) {
	v, coll, err := e.snapshots.Serving()
	if err != nil {
		return mode, nil, err
	}
	weights := vectorizer.Weights(query, v)
	// Restore and EnsureCollection guarantee coll was created with
	// v.Dimension(); the store itself rejects vectors of any other length.
	dense := vectorizer.SparseToDense(weights, v.Index)
	result := &SearchResult{Query: query, VocabularyVersion: v.Version, Results: []Match{}}
	if topK <= 0 {
		result.Path = mode
		return mode, result, nil
	}

	if mode != ModeFallback && !vectorizer.IsZero(dense) {
		matches, err := e.native(ctx, coll, dense, topK)
		switch {
		case err == nil:
			result.Path = ModeNative
			result.Results = matches
			return ModeNative, result, nil
		case mode == ModeAuto && fallbackable(err):
			logger.FromContext(ctx).Warn("native search failed, ranking locally", "collection", coll.Name, "error", err)
		default:
			return ModeNative, nil, err
		}
	}

	matches, err := e.fallback(ctx, v, coll, weights, topK)
	if err != nil {
		return ModeFallback, nil, err
	}
	result.Path = ModeFallback
	result.Results = matches
	return ModeFallback, result, nil
}

func (e *Executor) native(ctx context.Context, coll vectorstore.Collection, vec []float32, topK int) ([]Match, error) {
	var hits []vectorstore.Hit
	err := resilience.WithTimeout(ctx, e.timeout, "native search", func(ctx context.Context) error {
		var err error
		hits, err = e.store.Search(ctx, coll, vec, topK)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]Match, len(hits))
	for i, h := range hits {
		out[i] = Match{Index: h.ID, Score: h.Score, Text: h.Text}
	}
	return out, nil
}

// fallback ranks every stored record against the query with the persisted
// IDF table.
func (e *Executor) fallback(ctx context.Context, v *vocabulary.Vocabulary, coll vectorstore.Collection, query vectorizer.Sparse, topK int) ([]Match, error) {
	var records []vectorstore.Record
	err := resilience.WithTimeout(ctx, e.timeout, "query all", func(ctx context.Context) error {
		var err error
		records, err = e.store.QueryAll(ctx, coll)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("loading records of %s: %w", coll.Name, err)
	}
	candidates := make([]vectorizer.Sparse, len(records))
	for i, r := range records {
		if len(r.Vector) != v.Dimension() {
			return nil, apperrors.Mismatch(len(r.Vector), v.Dimension())
		}
		candidates[i] = vectorizer.DenseToSparse(r.Vector, v.Terms, e.threshold)
	}
	ranked := ranker.Rank(query, candidates, topK)
	out := make([]Match, len(ranked))
	for i, sd := range ranked {
		r := records[sd.Index]
		out[i] = Match{Index: r.ID, Score: sd.Score, Text: r.Text}
	}
	return out, nil
}

func fallbackable(err error) bool {
	return errors.Is(err, apperrors.ErrStoreUnavailable) || errors.Is(err, apperrors.ErrTimeout)
}

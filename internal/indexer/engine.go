// Package indexer owns the serving vocabulary snapshot and the vector store
// collection it was built against. Engine runs index builds through the
// ingestion pipeline, promotes completed builds, restores the last persisted
// snapshot at startup and reports readiness.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/indexer/vocabulary"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/vectorstore"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/vocabstore"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/resilience"
)

// Config controls builds and store connection attempts.
type Config struct {
	Ingestion       ingestion.Config
	ConnectAttempts int
	ConnectBackoff  resilience.Backoff
}

// Status is a point-in-time readiness summary.
type Status struct {
	StoreConnected    bool   `json:"store_connected"`
	CollectionReady   bool   `json:"collection_ready"`
	VocabularyLoaded  bool   `json:"vocabulary_loaded"`
	RecordCount       int64  `json:"record_count"`
	VocabularyVersion string `json:"vocabulary_version,omitempty"`
	Collection        string `json:"collection,omitempty"`
	Dimension         int    `json:"dimension"`
}

type Engine struct {
	store    vectorstore.Store
	repo     vocabstore.Repository
	pipeline *ingestion.Pipeline
	holder   vocabulary.Holder
	events   kafka.Publisher
	metrics  *metrics.Metrics
	cfg      Config
	buildMu  sync.Mutex
	retired  string // superseded by the last promotion, guarded by buildMu
	logger   *slog.Logger
}

// NewEngine wires an engine. events and m may be nil.
func NewEngine(store vectorstore.Store, repo vocabstore.Repository, cfg Config, events kafka.Publisher, m *metrics.Metrics) *Engine {
	if events == nil {
		events = kafka.Nop{}
	}
	if cfg.ConnectAttempts < 1 {
		cfg.ConnectAttempts = 1
	}
	return &Engine{
		store:    store,
		repo:     repo,
		pipeline: ingestion.New(store, repo, cfg.Ingestion, m),
		events:   events,
		metrics:  m,
		cfg:      cfg,
		logger:   slog.Default().With("component", "indexer"),
	}
}

// Connect opens the store, retrying transient failures.
func (e *Engine) Connect(ctx context.Context) error {
	err := resilience.Retry(ctx, "connect vector store", resilience.RetryConfig{
		MaxAttempts: e.cfg.ConnectAttempts,
		Backoff:     e.cfg.ConnectBackoff,
	}, e.store.Connect)
	if err != nil {
		return fmt.Errorf("connecting vector store: %w", err)
	}
	return nil
}

// BuildIndex runs one ingestion over corpus. On success the new snapshot
// becomes current. The collection it replaced is kept for one more generation
// and the one retired by the previous promotion is dropped. On failure the
// serving snapshot is left untouched and the partially written collection is
// dropped. The report is returned in both cases. Builds never overlap.
func (e *Engine) BuildIndex(ctx context.Context, corpus []string) (*vocabulary.Vocabulary, *ingestion.Report, error) {
	e.buildMu.Lock()
	defer e.buildMu.Unlock()

	if err := e.Connect(ctx); err != nil {
		return nil, nil, err
	}
	res, report, err := e.pipeline.Run(ctx, corpus)
	detached := context.WithoutCancel(ctx)
	e.announce(detached, report)

	if err != nil {
		if report.Collection != "" {
			e.drop(detached, report.Collection, "aborted build")
		}
		return nil, report, err
	}

	prev := e.holder.Swap(res.Vocabulary)
	if e.metrics != nil {
		e.metrics.VocabularyTerms.Set(float64(res.Vocabulary.Dimension()))
	}
	e.logger.Info("vocabulary promoted",
		"version", res.Vocabulary.Version,
		"collection", res.Collection.Name,
		"terms", res.Vocabulary.Dimension(),
	)
	e.retire(detached, prev, res.Vocabulary)
	return res.Vocabulary, report, nil
}

// Restore loads the persisted snapshot and verifies that its collection
// exists with a matching dimension before serving it.
func (e *Engine) Restore(ctx context.Context) (*vocabulary.Vocabulary, error) {
	v, err := e.repo.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading vocabulary: %w", err)
	}
	if err := e.Connect(ctx); err != nil {
		return nil, err
	}
	coll, err := e.store.OpenCollection(ctx, v.Collection)
	if err != nil {
		return nil, fmt.Errorf("opening collection of vocabulary %s: %w", v.Version, err)
	}
	if coll.Dimension != v.Dimension() {
		return nil, fmt.Errorf("collection %s: %w", coll.Name, apperrors.Mismatch(coll.Dimension, v.Dimension()))
	}
	e.holder.Swap(v)
	if e.metrics != nil {
		e.metrics.VocabularyTerms.Set(float64(v.Dimension()))
	}
	e.logger.Info("vocabulary restored", "version", v.Version, "collection", v.Collection, "terms", v.Dimension())
	return v, nil
}

// Current returns the serving snapshot or nil.
func (e *Engine) Current() *vocabulary.Vocabulary {
	return e.holder.Load()
}

// Serving binds the current snapshot together with its collection.
func (e *Engine) Serving() (*vocabulary.Vocabulary, vectorstore.Collection, error) {
	v := e.holder.Load()
	if v == nil {
		return nil, vectorstore.Collection{}, apperrors.ErrNotInitialized
	}
	return v, vectorstore.Collection{Name: v.Collection, Dimension: v.Dimension()}, nil
}

// Store exposes the vector store the engine writes to.
func (e *Engine) Store() vectorstore.Store {
	return e.store
}

func (e *Engine) Status(ctx context.Context) Status {
	var st Status
	st.StoreConnected = e.store.Connect(ctx) == nil
	v := e.holder.Load()
	if v == nil {
		return st
	}
	st.VocabularyLoaded = true
	st.VocabularyVersion = v.Version
	st.Collection = v.Collection
	st.Dimension = v.Dimension()
	if !st.StoreConnected {
		return st
	}
	coll, err := e.store.OpenCollection(ctx, v.Collection)
	if err != nil {
		e.logger.Warn("serving collection unavailable", "collection", v.Collection, "error", err)
		return st
	}
	st.CollectionReady = coll.Dimension == v.Dimension()
	if n, err := e.store.Count(ctx, coll); err == nil {
		st.RecordCount = n
	}
	return st
}

// CheckStore is a health probe for the vector store.
func (e *Engine) CheckStore(ctx context.Context) error {
	return e.store.Connect(ctx)
}

// CheckVocabulary is a health probe that fails until a snapshot is serving.
func (e *Engine) CheckVocabulary(context.Context) error {
	if e.holder.Load() == nil {
		return apperrors.ErrNotInitialized
	}
	return nil
}

// Close releases the store, the repository and the event publisher.
func (e *Engine) Close() error {
	return errors.Join(e.store.Close(), e.repo.Close(), e.events.Close())
}

func (e *Engine) announce(ctx context.Context, report *ingestion.Report) {
	if report == nil {
		return
	}
	if err := e.events.Publish(ctx, kafka.Event{Key: report.RunID, Value: report.Event()}); err != nil {
		e.logger.Warn("failed to publish index-built event", "run_id", report.RunID, "error", err)
	}
}

// retire drops the collection two generations behind next and keeps the one
// prev was serving. Callers hold buildMu.
func (e *Engine) retire(ctx context.Context, prev, next *vocabulary.Vocabulary) {
	keep := ""
	if prev != nil && prev.Collection != next.Collection {
		keep = prev.Collection
	}
	if e.retired != "" && e.retired != keep && e.retired != next.Collection {
		e.drop(ctx, e.retired, "superseded")
	}
	e.retired = keep
}

func (e *Engine) drop(ctx context.Context, name, reason string) {
	if err := e.store.DropCollection(ctx, name); err != nil {
		e.logger.Warn("failed to drop collection", "collection", name, "reason", reason, "error", err)
		return
	}
	e.logger.Info("collection dropped", "collection", name, "reason", reason)
}

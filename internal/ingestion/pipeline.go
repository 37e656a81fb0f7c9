package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/indexer/termstats"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/indexer/vectorizer"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/indexer/vocabulary"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/vectorstore"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/tracing"
	"github.com/google/uuid"
)

// VocabularySaver persists a completed run's vocabulary.
type VocabularySaver interface {
	Save(ctx context.Context, v *vocabulary.Vocabulary) error
}

// Result is the outcome of a completed run.
type Result struct {
	Vocabulary *vocabulary.Vocabulary
	Collection vectorstore.Collection
}

// Pipeline executes runs sequentially against one store. It holds no
// per-run state and may be reused.
type Pipeline struct {
	store   vectorstore.Store
	saver   VocabularySaver
	cfg     Config
	metrics *metrics.Metrics
}

// New creates a Pipeline. m may be nil.
func New(store vectorstore.Store, saver VocabularySaver, cfg Config, m *metrics.Metrics) *Pipeline {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.CollectionPrefix == "" {
		cfg.CollectionPrefix = "vectors"
	}
	return &Pipeline{store: store, saver: saver, cfg: cfg, metrics: m}
}

type run struct {
	report *Report
	logger *slog.Logger
}

func (r *run) enter(s State) {
	if n := len(r.report.Trace); n > 0 && r.report.Trace[n-1] == s {
		return
	}
	r.report.Trace = append(r.report.Trace, s)
	r.report.State = s
	r.logger.Debug("ingestion state", "state", s)
}

// Run builds a vocabulary from corpus, writes every document into a fresh
// collection named after the vocabulary version, flushes, and on success
// persists the vocabulary. The report is returned even when err is non-nil.
// Documents keep their corpus position as record ID.
func (p *Pipeline) Run(ctx context.Context, corpus []string) (*Result, *Report, error) {
	runID := uuid.NewString()
	ctx = logger.WithRunID(ctx, runID)
	ctx, span := tracing.StartSpan(ctx, "ingestion.run", runID)
	r := &run{
		report: &Report{RunID: runID, Documents: len(corpus), StartedAt: time.Now().UTC()},
		logger: logger.FromContext(ctx).With("component", "ingestion"),
	}
	r.enter(StateIdle)
	r.logger.Info("ingestion run starting", "documents", len(corpus), "batch_size", p.cfg.BatchSize)

	res, err := p.run(ctx, r, corpus)
	r.report.FinishedAt = time.Now().UTC()
	if err != nil {
		r.enter(StateAborted)
		r.logger.Error("ingestion run aborted", "error", err, "failed_batches", r.report.FailedBatches())
	} else {
		r.logger.Info("ingestion run complete",
			"collection", r.report.Collection,
			"inserted", r.report.Inserted,
			"failed_batches", r.report.FailedBatches(),
			"flushes", r.report.Flushes,
			"duration", r.report.FinishedAt.Sub(r.report.StartedAt),
		)
	}
	span.SetAttr("state", string(r.report.State))
	span.End()
	r.report.Phases = span.Timings()
	span.Log(r.logger)
	if p.metrics != nil {
		p.metrics.IngestionRuns.WithLabelValues(string(r.report.State)).Inc()
	}
	return res, r.report, err
}

func (p *Pipeline) run(ctx context.Context, r *run, corpus []string) (*Result, error) {
	r.enter(StateBuilding)
	_, phase := tracing.StartChildSpan(ctx, "vocabulary")
	counts := termstats.CorpusTermCounts(tokenizer.TokenizeAll(corpus))
	vocab := vocabulary.Build(counts)
	phase.SetAttr("terms", vocab.Dimension())
	phase.End()
	if vocab.Dimension() == 0 {
		return nil, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "corpus contains no terms")
	}
	vocab = vocab.WithCollection(vocab.CollectionName(p.cfg.CollectionPrefix))
	r.report.VocabularyVersion = vocab.Version
	r.report.Collection = vocab.Collection
	r.report.Dimension = vocab.Dimension()
	r.logger.Info("vocabulary frozen", "version", vocab.Version, "terms", vocab.Dimension(), "collection", vocab.Collection)

	_, phase = tracing.StartChildSpan(ctx, "collection")
	var coll vectorstore.Collection
	err := resilience.Retry(ctx, "ensure collection", p.retryConfig(nil), func(ctx context.Context) error {
		var err error
		coll, err = p.store.EnsureCollection(ctx, vocab.Collection, vocab.Dimension())
		return err
	})
	if err != nil {
		phase.End()
		return nil, fmt.Errorf("creating collection %s: %w", vocab.Collection, err)
	}
	phase.End()

	r.enter(StateBatching)
	_, phase = tracing.StartChildSpan(ctx, "batches")
	var (
		t         tally
		abortErr  error
		cancelErr error
	)
	for i, b := range batchBounds(len(corpus), p.cfg.BatchSize) {
		if err := ctx.Err(); err != nil {
			cancelErr = err
			r.logger.Warn("ingestion cancelled between batches", "next_batch", i)
			break
		}
		records := make([]vectorstore.Record, 0, b[1]-b[0])
		for doc := b[0]; doc < b[1]; doc++ {
			weights := vectorizer.TFIDF(termstats.TermFrequency(counts[doc]), vocab.IDF)
			records = append(records, vectorstore.Record{
				ID:     int64(doc),
				Text:   corpus[doc],
				Vector: vectorizer.SparseToDense(weights, vocab.Index),
			})
		}
		result := p.insertBatch(ctx, r, coll, i, b[0], records)
		r.report.Batches = append(r.report.Batches, result)
		r.enter(StateBatching)

		var flush, abort bool
		t, flush, abort = advance(t, result.Error == "", p.cfg)
		r.report.ConsecutiveFailures = t.consecutiveFailures
		r.report.Batches[len(r.report.Batches)-1].ConsecutiveFailures = t.consecutiveFailures
		if result.Error == "" {
			r.report.Inserted += len(records)
		}
		if abort {
			abortErr = apperrors.Newf(apperrors.ErrIngestionAborted, http.StatusInternalServerError,
				"%d consecutive batch failures exceed ceiling %d", t.consecutiveFailures, p.cfg.MaxConsecutiveFailures)
			break
		}
		if flush {
			if err := p.flush(ctx, r, coll, false); err != nil {
				r.logger.Warn("periodic flush failed", "error", err, "after_batch", i)
			}
		}
	}

	phase.SetAttr("batches", len(r.report.Batches))
	phase.End()

	r.enter(StateFlushing)
	_, phase = tracing.StartChildSpan(ctx, "flush")
	flushErr := p.flush(context.WithoutCancel(ctx), r, coll, true)
	phase.End()

	switch {
	case abortErr != nil:
		return nil, abortErr
	case cancelErr != nil:
		return nil, fmt.Errorf("%w: %w", apperrors.ErrIngestionAborted, cancelErr)
	case flushErr != nil:
		return nil, fmt.Errorf("final flush: %w", flushErr)
	}

	if p.saver != nil {
		_, phase = tracing.StartChildSpan(ctx, "persist")
		err := p.saver.Save(ctx, vocab)
		phase.End()
		if err != nil {
			return nil, fmt.Errorf("persisting vocabulary %s: %w", vocab.Version, err)
		}
		r.report.Persisted = true
	}
	r.enter(StateDone)
	return &Result{Vocabulary: vocab, Collection: coll}, nil
}

func (p *Pipeline) insertBatch(ctx context.Context, r *run, coll vectorstore.Collection, index, start int, records []vectorstore.Record) BatchResult {
	result := BatchResult{Index: index, Start: start, Size: len(records)}
	onRetry := func(attempt int, err error) {
		r.enter(StateRetrying)
		if p.metrics != nil {
			p.metrics.IngestionRetries.Inc()
		}
	}
	err := resilience.Retry(ctx, "insert batch", p.retryConfig(onRetry), func(ctx context.Context) error {
		result.Attempts++
		r.enter(StateInserting)
		return p.store.Insert(ctx, coll, records)
	})
	if err != nil {
		err = fmt.Errorf("batch %d: %w: %w", index, apperrors.ErrBatchInsertFailure, err)
		result.Error = err.Error()
		r.logger.Error("batch failed, skipping", "batch", index, "start", start, "size", len(records), "attempts", result.Attempts, "error", err)
		if p.metrics != nil {
			p.metrics.IngestionBatches.WithLabelValues("failed").Inc()
		}
		return result
	}
	r.logger.Info("batch inserted", "batch", index, "start", start, "size", len(records), "attempts", result.Attempts)
	if p.metrics != nil {
		p.metrics.IngestionBatches.WithLabelValues("inserted").Inc()
		p.metrics.DocsIndexedTotal.Add(float64(len(records)))
	}
	return result
}

// flush checkpoints the store. The final flush is retried with the insert
// policy; periodic ones are attempted once.
func (p *Pipeline) flush(ctx context.Context, r *run, coll vectorstore.Collection, final bool) error {
	attempt := func(ctx context.Context) error { return p.store.Flush(ctx, coll) }
	var err error
	if final {
		err = resilience.Retry(ctx, "final flush", p.retryConfig(nil), attempt)
	} else {
		err = attempt(ctx)
	}
	status := "ok"
	if err != nil {
		status = "error"
	} else {
		r.report.Flushes++
		r.logger.Info("store flushed", "collection", coll.Name, "final", final, "flushes", r.report.Flushes)
	}
	if p.metrics != nil {
		p.metrics.StoreFlushesTotal.WithLabelValues(status).Inc()
	}
	return err
}

func (p *Pipeline) retryConfig(onRetry func(int, error)) resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts: p.cfg.MaxAttempts,
		Backoff:     p.cfg.Backoff,
		OnRetry:     onRetry,
	}
}

// IsAborted reports whether err ended a run before completion.
func IsAborted(err error) bool {
	return errors.Is(err, apperrors.ErrIngestionAborted)
}

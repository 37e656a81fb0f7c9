// Package consumer rebuilds the index when the catalog announces a corpus
// change on Kafka. Triggers that arrive while a rebuild is pending or
// running coalesce into a single follow-up build.
package consumer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/indexer/vocabulary"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/kafka"
)

// CorpusSource loads the documents to index, in ordinal order.
type CorpusSource interface {
	Corpus(ctx context.Context) ([]string, error)
}

// Builder runs an index build.
type Builder interface {
	BuildIndex(ctx context.Context, corpus []string) (*vocabulary.Vocabulary, *ingestion.Report, error)
}

// Rebuilder serialises rebuild requests.
type Rebuilder struct {
	source  CorpusSource
	builder Builder
	pending chan struct{}
	logger  *slog.Logger
}

func NewRebuilder(source CorpusSource, builder Builder) *Rebuilder {
	return &Rebuilder{
		source:  source,
		builder: builder,
		pending: make(chan struct{}, 1),
		logger:  slog.Default().With("component", "index-consumer"),
	}
}

// Trigger requests a rebuild without blocking.
func (r *Rebuilder) Trigger() {
	select {
	case r.pending <- struct{}{}:
	default:
	}
}

// Run performs requested rebuilds until ctx is cancelled.
func (r *Rebuilder) Run(ctx context.Context) error {
	r.logger.Info("rebuilder started")
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("rebuilder stopping", "reason", ctx.Err())
			return nil
		case <-r.pending:
			if err := r.Rebuild(ctx); err != nil {
				r.logger.Error("rebuild failed", "error", err)
			}
		}
	}
}

// Rebuild reloads the corpus and builds a new index synchronously.
func (r *Rebuilder) Rebuild(ctx context.Context) error {
	corpus, err := r.source.Corpus(ctx)
	if err != nil {
		return fmt.Errorf("loading corpus: %w", err)
	}
	v, report, err := r.builder.BuildIndex(ctx, corpus)
	if err != nil {
		return err
	}
	r.logger.Info("index rebuilt",
		"version", v.Version,
		"documents", report.Documents,
		"failed_batches", report.FailedBatches(),
	)
	return nil
}

// HandleMessage returns a Kafka MessageHandler that turns every corpus
// change event into a rebuild trigger. Undecodable messages are logged and
// committed so they cannot block the partition.
func (r *Rebuilder) HandleMessage() kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ingestion.CorpusChangedEvent](value)
		if err != nil {
			r.logger.Error("failed to decode corpus change event", "error", err, "key", string(key))
			return nil
		}
		r.logger.Debug("corpus changed", "operation", event.Operation, "movies", len(event.MovieIDs))
		r.Trigger()
		return nil
	}
}

// IndexConsumer wraps a Kafka consumer feeding a Rebuilder.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// New creates an IndexConsumer backed by the given Kafka consumer.
func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	return ic.consumer.Start(ctx)
}

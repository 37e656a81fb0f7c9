// Package bootstrap assembles the components shared by the service binaries
// and the operator CLI from configuration: the vector store backend, the
// vocabulary repository, the engine and the HTTP middleware chain.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/vectorstore"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/vectorstore/memory"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/vectorstore/qdrant"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/vectorstore/sqlite"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/vocabstore"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/vocabstore/bolt"
	vocabpg "github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/vocabstore/postgres"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/resilience"
)

// VectorStore builds the configured backend. m may be nil.
func VectorStore(cfg config.VectorStoreConfig, m *metrics.Metrics) (vectorstore.Store, error) {
	switch cfg.Type {
	case "memory":
		return memory.New(), nil
	case "sqlite":
		return sqlite.New(cfg.SQLite.Path), nil
	case "qdrant":
		return qdrant.New(cfg.Qdrant, resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			ResetTimeout:     cfg.Breaker.ResetTimeout,
			OnStateChange: func(name string, to resilience.State) {
				m.SetBreakerState(name, int(to))
			},
		}), nil
	}
	return nil, fmt.Errorf("unknown vector store type %q", cfg.Type)
}

// Vocabulary opens the configured repository. pg is required for the
// postgres store and ignored otherwise.
func Vocabulary(ctx context.Context, cfg config.VocabularyConfig, pg *postgres.Client) (vocabstore.Repository, error) {
	switch cfg.Store {
	case "bolt":
		return bolt.Open(cfg.BoltPath)
	case "postgres":
		if pg == nil {
			return nil, errors.New("vocabulary store postgres requires a database connection")
		}
		return vocabpg.New(ctx, pg)
	}
	return nil, fmt.Errorf("unknown vocabulary store %q", cfg.Store)
}

// EngineConfig maps service configuration onto the engine's build policy.
func EngineConfig(cfg *config.Config) indexer.Config {
	return indexer.Config{
		Ingestion:       ingestion.ConfigFrom(cfg.Ingestion, cfg.VectorStore.CollectionPrefix),
		ConnectAttempts: cfg.Ingestion.ConnectAttempts,
		ConnectBackoff:  resilience.Fixed(cfg.Ingestion.RetryDelay),
	}
}

// Engine opens the vector store and vocabulary repository and returns an
// engine owning both. events and m may be nil.
func Engine(ctx context.Context, cfg *config.Config, pg *postgres.Client, events kafka.Publisher, m *metrics.Metrics) (*indexer.Engine, error) {
	store, err := VectorStore(cfg.VectorStore, m)
	if err != nil {
		return nil, err
	}
	repo, err := Vocabulary(ctx, cfg.Vocabulary, pg)
	if err != nil {
		return nil, fmt.Errorf("opening vocabulary store: %w", err)
	}
	return indexer.NewEngine(store, repo, EngineConfig(cfg), events, m), nil
}

// Restore loads the persisted snapshot, logging instead of failing when
// none exists yet.
func Restore(ctx context.Context, engine *indexer.Engine) {
	v, err := engine.Restore(ctx)
	if err != nil {
		slog.Warn("no servable vocabulary, queries answer not initialized until a build completes", "error", err)
		return
	}
	slog.Info("serving vocabulary", "version", v.Version, "collection", v.Collection, "terms", v.Dimension())
}

// Handler wraps h with request IDs, metrics and the request timeout.
// m may be nil.
func Handler(h http.Handler, timeout time.Duration, m *metrics.Metrics) http.Handler {
	if timeout > 0 {
		h = middleware.Timeout(timeout)(h)
	}
	if m != nil {
		h = middleware.Metrics(m)(h)
	}
	return middleware.RequestID(h)
}

// Serve runs srv until ctx is cancelled, then shuts it down gracefully.
func Serve(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutdown signal received", "addr", srv.Addr)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down %s: %w", srv.Addr, err)
	}
	return nil
}

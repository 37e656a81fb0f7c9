// Command indexer runs index builds.
//
// It restores the persisted snapshot at startup, builds one when none is
// servable, and rebuilds whenever the catalog announces a corpus change.
// Health, metrics and a manual rebuild trigger are served on the indexer
// port.
//
// Usage:
//
//	go run ./cmd/indexer [-config configs/development.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/bootstrap"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/postgres"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting indexer service",
		"vector_store", cfg.VectorStore.Type,
		"vocabulary_store", cfg.Vocabulary.Store,
		"batch_size", cfg.Ingestion.BatchSize,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	pg, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pg.Close()

	movies, err := catalog.NewRepository(ctx, pg)
	if err != nil {
		slog.Error("failed to prepare catalog schema", "error", err)
		os.Exit(1)
	}
	engine, err := bootstrap.Engine(ctx, cfg, pg, kafka.NewPublisher(cfg.Kafka, cfg.Kafka.Topics.IndexBuilt), m)
	if err != nil {
		slog.Error("failed to initialise engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	rebuilder := consumer.NewRebuilder(catalog.NewService(movies, nil), engine)
	if _, err := engine.Restore(ctx); err != nil {
		if !errors.Is(err, apperrors.ErrNotInitialized) {
			slog.Error("failed to restore vocabulary", "error", err)
			os.Exit(1)
		}
		slog.Info("no servable vocabulary, scheduling initial build", "reason", err)
		rebuilder.Trigger()
	}

	checker := health.NewChecker()
	checker.Register("postgres", health.FromPing(pg.Ping, false))
	checker.Register("vector_store", health.FromPing(engine.CheckStore, false))
	checker.Register("vocabulary", health.FromPing(engine.CheckVocabulary, true))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	mux.HandleFunc("POST /api/v1/rebuild", func(w http.ResponseWriter, r *http.Request) {
		rebuilder.Trigger()
		w.WriteHeader(http.StatusAccepted)
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.IndexerPort),
		Handler:      bootstrap.Handler(mux, cfg.Server.WriteTimeout, m),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rebuilder.Run(gctx)
	})
	g.Go(func() error {
		return bootstrap.Serve(gctx, server, cfg.Server.ShutdownTimeout)
	})
	if cfg.Kafka.Enabled {
		ic := consumer.New(kafka.NewConsumer(cfg.Kafka, kafka.Subscription{Topic: cfg.Kafka.Topics.CorpusChanged}, rebuilder.HandleMessage()))
		g.Go(func() error {
			return ic.Start(gctx)
		})
		slog.Info("listening for corpus changes", "topic", cfg.Kafka.Topics.CorpusChanged)
	}

	if err := g.Wait(); err != nil {
		slog.Error("indexer service error", "error", err)
		os.Exit(1)
	}
	slog.Info("indexer service stopped")
}

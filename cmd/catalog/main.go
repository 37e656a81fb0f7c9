// Command catalog starts the movie catalog HTTP service.
//
// The service stores movies in PostgreSQL, accepts single edits and CSV
// imports, and announces every corpus change on Kafka so the indexer can
// rebuild.
//
// Usage:
//
//	go run ./cmd/catalog [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/bootstrap"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/postgres"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
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
	slog.Info("starting catalog service", "port", cfg.Server.CatalogPort)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to postgres")

	movies, err := catalog.NewRepository(ctx, db)
	if err != nil {
		slog.Error("failed to prepare catalog schema", "error", err)
		os.Exit(1)
	}
	events := kafka.NewPublisher(cfg.Kafka, cfg.Kafka.Topics.CorpusChanged)
	defer events.Close()
	slog.Info("corpus change publisher initialized", "topic", cfg.Kafka.Topics.CorpusChanged, "enabled", cfg.Kafka.Enabled)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	checker := health.NewChecker()
	checker.Register("postgres", health.FromPing(db.Ping, false))

	h := catalog.NewHandler(catalog.NewService(movies, events))
	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	if cfg.Metrics.Enabled {
		mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.CatalogPort),
		Handler:      bootstrap.Handler(mux, cfg.Server.WriteTimeout, m),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if err := bootstrap.Serve(ctx, server, cfg.Server.ShutdownTimeout); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("catalog service stopped")
}

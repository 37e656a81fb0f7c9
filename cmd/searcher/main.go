// Command searcher starts the search HTTP service.
//
// The service restores the last persisted vocabulary snapshot, answers
// ranked queries through the vector store with a local ranking fallback,
// caches results in Redis and rebuilds on demand from the catalog.
//
// Usage:
//
//	go run ./cmd/searcher [-config configs/development.yaml]
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
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/redis"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
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
	slog.Info("starting search service",
		"port", cfg.Server.Port,
		"vector_store", cfg.VectorStore.Type,
		"vocabulary_store", cfg.Vocabulary.Store,
	)
	defaultMode, err := executor.ParseMode(cfg.Search.Mode)
	if err != nil {
		slog.Error("invalid search mode", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	checker := health.NewChecker()

	var pg *postgres.Client
	var corpus handler.CorpusSource
	pg, err = postgres.New(cfg.Postgres)
	if err != nil {
		if cfg.Vocabulary.Store == "postgres" {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		slog.Warn("postgres unavailable, on-demand index builds disabled", "error", err)
	} else {
		defer pg.Close()
		movies, err := catalog.NewRepository(ctx, pg)
		if err != nil {
			slog.Error("failed to prepare catalog schema", "error", err)
			os.Exit(1)
		}
		corpus = catalog.NewService(movies, nil)
		checker.Register("postgres", health.FromPing(pg.Ping, cfg.Vocabulary.Store != "postgres"))
	}

	engine, err := bootstrap.Engine(ctx, cfg, pg, kafka.NewPublisher(cfg.Kafka, cfg.Kafka.Topics.IndexBuilt), m)
	if err != nil {
		slog.Error("failed to initialise engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()
	bootstrap.Restore(ctx, engine)

	checker.Register("vector_store", health.FromPing(engine.CheckStore, false))
	checker.Register("vocabulary", health.FromPing(engine.CheckVocabulary, false))

	var queryCache *cache.QueryCache
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
			checker.Register("redis", health.FromPing(redisClient.Ping, true))
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	exec := executor.New(engine, engine.Store(), cfg.Search, m)
	h := handler.New(exec, engine, corpus, queryCache, handler.Options{
		DefaultMode:  defaultMode,
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxResults:   cfg.Search.MaxResults,
	})

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      bootstrap.Handler(mux, cfg.Server.WriteTimeout, m),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return bootstrap.Serve(gctx, server, cfg.Server.ShutdownTimeout)
	})
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, reg)
		defer shutdownMetrics(context.Background())
	}
	if cfg.Kafka.Enabled {
		// Builds finished by the indexer service swap the snapshot here too.
		// Every replica restores, so each one reads with a group of its own.
		builtConsumer := kafka.NewConsumer(cfg.Kafka, kafka.Subscription{
			Topic:   cfg.Kafka.Topics.IndexBuilt,
			GroupID: kafka.BroadcastGroup(cfg.Kafka.ConsumerGroup, "searcher"),
		}, onIndexBuilt(engine, queryCache))
		g.Go(func() error {
			return builtConsumer.Start(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		slog.Error("search service error", "error", err)
		os.Exit(1)
	}
	slog.Info("search service stopped")
}

// onIndexBuilt reloads the persisted snapshot after a completed build and
// drops cached results of the superseded vocabulary.
func onIndexBuilt(engine *indexer.Engine, queryCache *cache.QueryCache) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ingestion.IndexBuiltEvent](value)
		if err != nil {
			slog.Error("failed to decode index-built event", "error", err, "key", string(key))
			return nil
		}
		if event.State != ingestion.StateDone {
			return nil
		}
		if cur := engine.Current(); cur != nil && cur.Version == event.VocabularyVersion {
			return nil
		}
		if _, err := engine.Restore(ctx); err != nil {
			return fmt.Errorf("restoring vocabulary %s: %w", event.VocabularyVersion, err)
		}
		if queryCache != nil {
			if err := queryCache.Invalidate(ctx); err != nil {
				slog.Warn("cache invalidation after rebuild failed", "error", err)
			}
		}
		return nil
	}
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/bootstrap"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/postgres"
)

var (
	configPath string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:          "vsctl",
	Short:        "Operate the TF-IDF vector search index",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("loading .env: %w", err)
		}
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		slog.SetDefault(logger.New(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (defaults apply when empty)")
}

// session holds the stores one command works against.
type session struct {
	engine *indexer.Engine
	pg     *postgres.Client
}

// openSession connects the engine. Postgres is required when needPostgres
// is set or the vocabulary lives there; otherwise a failed connection only
// disables the catalog.
func openSession(ctx context.Context, needPostgres bool) (*session, error) {
	s := &session{}
	if needPostgres || cfg.Vocabulary.Store == "postgres" {
		pg, err := postgres.New(cfg.Postgres)
		if err != nil {
			return nil, err
		}
		s.pg = pg
	}
	engine, err := bootstrap.Engine(ctx, cfg, s.pg, kafka.NewPublisher(cfg.Kafka, cfg.Kafka.Topics.IndexBuilt), nil)
	if err != nil {
		s.close()
		return nil, err
	}
	s.engine = engine
	return s, nil
}

func (s *session) close() error {
	var errs []error
	if s.engine != nil {
		errs = append(errs, s.engine.Close())
	}
	if s.pg != nil {
		errs = append(errs, s.pg.Close())
	}
	return errors.Join(errs...)
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

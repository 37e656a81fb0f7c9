package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/postgres"
)

var importCmd = &cobra.Command{
	Use:   "import [movies.csv]",
	Short: "Load a movieId,title,genres CSV into the catalog",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	movies, err := readMovies(args[0])
	if err != nil {
		return err
	}

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		return err
	}
	defer db.Close()
	repo, err := catalog.NewRepository(ctx, db)
	if err != nil {
		return err
	}
	events := kafka.NewPublisher(cfg.Kafka, cfg.Kafka.Topics.CorpusChanged)
	defer events.Close()

	n, err := catalog.NewService(repo, events).Import(ctx, movies)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	cmd.Printf("Imported %d movies from %s\n", n, args[0])
	return nil
}

func readMovies(path string) ([]catalog.Movie, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	movies, err := catalog.ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return movies, nil
}

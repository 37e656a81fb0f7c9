package main

import (
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/searcher/executor"
)

var (
	searchLimit int
	searchMode  string
	searchJSON  bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Rank movies against a query",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 5, "maximum number of results")
	searchCmd.Flags().StringVar(&searchMode, "mode", "", "auto, native or fallback (defaults to the configured mode)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	modeName := searchMode
	if modeName == "" {
		modeName = cfg.Search.Mode
	}
	mode, err := executor.ParseMode(modeName)
	if err != nil {
		return err
	}

	s, err := openSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.close()
	if _, err := s.engine.Restore(ctx); err != nil {
		return err
	}

	result, err := executor.New(s.engine, s.engine.Store(), cfg.Search, nil).Search(ctx, args[0], searchLimit, mode)
	if err != nil {
		return err
	}
	if searchJSON {
		return printJSON(cmd, result)
	}
	if len(result.Results) == 0 {
		cmd.Println("No results found.")
		return nil
	}
	cmd.Printf("Results (%s, vocabulary %s):\n", result.Path, result.VocabularyVersion)
	for i, m := range result.Results {
		cmd.Printf("  [%d] %s (%.4f)\n", i+1, m.Text, m.Score)
	}
	return nil
}

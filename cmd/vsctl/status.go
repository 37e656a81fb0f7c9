package main

import (
	"errors"

	"github.com/spf13/cobra"

	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/errors"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store connectivity and the serving vocabulary",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.close()
	if _, err := s.engine.Restore(ctx); err != nil && !errors.Is(err, apperrors.ErrNotInitialized) {
		return err
	}
	return printJSON(cmd, s.engine.Status(ctx))
}

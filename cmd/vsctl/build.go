package main

import (
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/ingestion"
)

var buildFromCSV string

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build a new index and promote it",
	Long: `Builds the vocabulary and document vectors for the whole corpus and
promotes the result once every batch is stored. The corpus is read from the
catalog unless --from-csv names a movies file.`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringVar(&buildFromCSV, "from-csv", "", "index movies from this CSV instead of the catalog")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, buildFromCSV == "")
	if err != nil {
		return err
	}
	defer s.close()

	var corpus []string
	if buildFromCSV != "" {
		movies, err := readMovies(buildFromCSV)
		if err != nil {
			return err
		}
		for _, m := range movies {
			corpus = append(corpus, m.Text())
		}
	} else {
		repo, err := catalog.NewRepository(ctx, s.pg)
		if err != nil {
			return err
		}
		if corpus, err = catalog.NewService(repo, nil).Corpus(ctx); err != nil {
			return err
		}
	}

	v, report, err := s.engine.BuildIndex(ctx, corpus)
	if report != nil {
		if perr := printJSON(cmd, report); perr != nil {
			return perr
		}
	}
	if err != nil {
		return err
	}
	if report.State == ingestion.StateDone {
		cmd.Printf("Vocabulary %s promoted (%d terms, collection %s)\n", v.Version, v.Dimension(), v.Collection)
	}
	return nil
}

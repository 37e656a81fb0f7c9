package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/searcher/executor"
)

const moviesCSV = `movieId,title,genres
1,Toy Story (1995),Adventure|Animation|Children|Comedy|Fantasy
2,Jumanji (1995),Adventure|Children|Fantasy
3,Heat (1995),Action|Crime|Thriller
4,GoldenEye (1995),Action|Adventure|Thriller
`

func writeFixtures(t *testing.T) (configFile, csvFile string) {
	t.Helper()
	dir := t.TempDir()
	configFile = filepath.Join(dir, "vsctl.yaml")
	csvFile = filepath.Join(dir, "movies.csv")
	conf := `
vectorStore:
  type: sqlite
  sqlite:
    path: ` + filepath.Join(dir, "vectors.sqlite") + `
vocabulary:
  store: bolt
  boltPath: ` + filepath.Join(dir, "vocabulary.db") + `
ingestion:
  retryDelay: 0s
logging:
  level: error
`
	require.NoError(t, os.WriteFile(configFile, []byte(conf), 0o644))
	require.NoError(t, os.WriteFile(csvFile, []byte(moviesCSV), 0o644))
	return configFile, csvFile
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestBuildFromCSVThenSearch(t *testing.T) {
	configFile, csvFile := writeFixtures(t)

	out, err := run(t, "--config", configFile, "build", "--from-csv", csvFile)
	require.NoError(t, err)
	assert.Contains(t, out, "promoted")

	out, err = run(t, "--config", configFile, "search", "thriller action", "-n", "2", "--mode", "fallback", "--json")
	require.NoError(t, err)
	var result executor.SearchResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Len(t, result.Results, 2)
	for _, m := range result.Results {
		assert.Contains(t, m.Text, "Action|")
	}

	out, err = run(t, "--config", configFile, "status")
	require.NoError(t, err)
	var st indexer.Status
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.True(t, st.CollectionReady)
	assert.EqualValues(t, 4, st.RecordCount)
}

func TestSearchBeforeBuildFails(t *testing.T) {
	configFile, _ := writeFixtures(t)
	_, err := run(t, "--config", configFile, "search", "heat", "--mode", "auto", "--json")
	assert.Error(t, err)
}

func TestSearchRejectsUnknownMode(t *testing.T) {
	configFile, _ := writeFixtures(t)
	_, err := run(t, "--config", configFile, "search", "heat", "--mode", "fuzzy")
	assert.Error(t, err)
}

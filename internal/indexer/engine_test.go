package indexer

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/vectorstore"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/vectorstore/memory"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/vocabstore/bolt"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var movies = []string{
	"Toy Story (1995) | Adventure|Animation|Children|Comedy|Fantasy",
	"Jumanji (1995) | Adventure|Children|Fantasy",
	"Grumpier Old Men (1995) | Comedy|Romance",
	"Heat (1995) | Action|Crime|Thriller",
	"GoldenEye (1995) | Action|Adventure|Thriller",
}

type brokenStore struct {
	*memory.Store
}

func (brokenStore) Insert(context.Context, vectorstore.Collection, []vectorstore.Record) error {
	return apperrors.Unavailable("insert", errors.New("connection refused"))
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []kafka.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func testConfig() Config {
	return Config{
		Ingestion: ingestion.Config{
			BatchSize:              2,
			MaxAttempts:            2,
			Backoff:                resilience.Fixed(0),
			MaxConsecutiveFailures: 1,
			FlushEvery:             1,
			CollectionPrefix:       "movie_vectors",
		},
		ConnectAttempts: 1,
		ConnectBackoff:  resilience.Fixed(0),
	}
}

func openRepo(t *testing.T, dir string) *bolt.Repository {
	t.Helper()
	repo, err := bolt.Open(filepath.Join(dir, "vocabulary.db"))
	require.NoError(t, err)
	return repo
}

func TestBuildIndexPromotesSnapshot(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	repo := openRepo(t, t.TempDir())
	defer repo.Close()
	events := &recordingPublisher{}
	e := NewEngine(store, repo, testConfig(), events, nil)

	assert.Nil(t, e.Current())
	_, _, err := e.Serving()
	assert.ErrorIs(t, err, apperrors.ErrNotInitialized)

	v, report, err := e.BuildIndex(ctx, movies)
	require.NoError(t, err)
	assert.Equal(t, ingestion.StateDone, report.State)
	assert.True(t, report.Persisted)
	assert.Same(t, v, e.Current())

	st := e.Status(ctx)
	assert.True(t, st.StoreConnected)
	assert.True(t, st.VocabularyLoaded)
	assert.True(t, st.CollectionReady)
	assert.EqualValues(t, len(movies), st.RecordCount)
	assert.Equal(t, v.Version, st.VocabularyVersion)
	assert.Equal(t, v.Dimension(), st.Dimension)

	require.Len(t, events.events, 1)
	assert.Equal(t, report.RunID, events.events[0].Key)
	ev, ok := events.events[0].Value.(ingestion.IndexBuiltEvent)
	require.True(t, ok)
	assert.Equal(t, ingestion.StateDone, ev.State)
	assert.Equal(t, v.Version, ev.VocabularyVersion)
}

func TestRebuildKeepsPreviousCollectionForOneGeneration(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	repo := openRepo(t, t.TempDir())
	defer repo.Close()
	e := NewEngine(store, repo, testConfig(), nil, nil)

	first, _, err := e.BuildIndex(ctx, movies)
	require.NoError(t, err)
	second, _, err := e.BuildIndex(ctx, movies[:3])
	require.NoError(t, err)
	assert.NotEqual(t, first.Collection, second.Collection)

	// first may still have readers bound to it
	_, err = store.OpenCollection(ctx, first.Collection)
	require.NoError(t, err)

	third, _, err := e.BuildIndex(ctx, movies[:4])
	require.NoError(t, err)

	_, err = store.OpenCollection(ctx, first.Collection)
	assert.ErrorIs(t, err, apperrors.ErrNotInitialized)
	_, err = store.OpenCollection(ctx, second.Collection)
	assert.NoError(t, err)
	n, err := store.Count(ctx, vectorstore.Collection{Name: third.Collection})
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
}

func TestAbortedBuildKeepsServingSnapshot(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	repo := openRepo(t, t.TempDir())
	defer repo.Close()
	good := NewEngine(mem, repo, testConfig(), nil, nil)
	serving, _, err := good.BuildIndex(ctx, movies)
	require.NoError(t, err)

	events := &recordingPublisher{}
	bad := NewEngine(brokenStore{mem}, repo, testConfig(), events, nil)
	_, err = bad.Restore(ctx)
	require.NoError(t, err)

	_, report, err := bad.BuildIndex(ctx, []string{"Alien (1979) | Horror|Sci-Fi", "Aliens (1986) | Action|Horror", "Heat (1995) | Action", "Up (2009) | Animation"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrIngestionAborted)
	assert.Equal(t, ingestion.StateAborted, report.State)
	assert.False(t, report.Persisted)

	assert.Equal(t, serving.Version, bad.Current().Version)
	_, err = mem.OpenCollection(ctx, report.Collection)
	assert.ErrorIs(t, err, apperrors.ErrNotInitialized, "aborted collection is dropped")

	persisted, err := repo.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, serving.Version, persisted.Version)

	require.Len(t, events.events, 1)
	ev := events.events[0].Value.(ingestion.IndexBuiltEvent)
	assert.Equal(t, ingestion.StateAborted, ev.State)
	assert.NotEmpty(t, ev.FailedBatches)
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := memory.New()

	repo := openRepo(t, dir)
	built, _, err := NewEngine(store, repo, testConfig(), nil, nil).BuildIndex(ctx, movies)
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	repo = openRepo(t, dir)
	defer repo.Close()
	e := NewEngine(store, repo, testConfig(), nil, nil)
	v, err := e.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, built.Version, v.Version)
	assert.Equal(t, built.Terms, v.Terms)
	assert.NoError(t, e.CheckVocabulary(ctx))
}

func TestRestoreWithoutSnapshot(t *testing.T) {
	repo := openRepo(t, t.TempDir())
	defer repo.Close()
	e := NewEngine(memory.New(), repo, testConfig(), nil, nil)

	_, err := e.Restore(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrNotInitialized)
	assert.ErrorIs(t, e.CheckVocabulary(context.Background()), apperrors.ErrNotInitialized)

	st := e.Status(context.Background())
	assert.True(t, st.StoreConnected)
	assert.False(t, st.VocabularyLoaded)
	assert.False(t, st.CollectionReady)
}

func TestRestoreMissingCollection(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo := openRepo(t, dir)
	defer repo.Close()
	_, _, err := NewEngine(memory.New(), repo, testConfig(), nil, nil).BuildIndex(ctx, movies)
	require.NoError(t, err)

	_, err = NewEngine(memory.New(), repo, testConfig(), nil, nil).Restore(ctx)
	assert.ErrorIs(t, err, apperrors.ErrNotInitialized)
}

func TestRestoreRejectsCollectionOfOtherDimension(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t, t.TempDir())
	defer repo.Close()
	built, _, err := NewEngine(memory.New(), repo, testConfig(), nil, nil).BuildIndex(ctx, movies)
	require.NoError(t, err)

	other := memory.New()
	require.NoError(t, other.Connect(ctx))
	_, err = other.EnsureCollection(ctx, built.Collection, built.Dimension()+1)
	require.NoError(t, err)

	e := NewEngine(other, repo, testConfig(), nil, nil)
	_, err = e.Restore(ctx)
	assert.ErrorIs(t, err, apperrors.ErrDimensionMismatch)
	assert.Nil(t, e.Current())
}

func TestBuildIndexRejectsEmptyCorpus(t *testing.T) {
	repo := openRepo(t, t.TempDir())
	defer repo.Close()
	e := NewEngine(memory.New(), repo, testConfig(), nil, nil)

	_, _, err := e.BuildIndex(context.Background(), []string{"", "!!!"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Nil(t, e.Current())
}

package ingestion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/indexer/vocabulary"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/vectorstore"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/vectorstore/memory"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/resilience"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyStore fails inserts for the batches listed in failBatches (keyed by
// the first record ID) a given number of times; -1 fails forever.
type flakyStore struct {
	*memory.Store
	mu          sync.Mutex
	batchSize   int
	failBatches map[int]int
	insertCalls map[int]int
	flushCalls  int
	onInsert    func(batch int)
}

func newFlakyStore(batchSize int) *flakyStore {
	s := &flakyStore{
		Store:       memory.New(),
		batchSize:   batchSize,
		failBatches: make(map[int]int),
		insertCalls: make(map[int]int),
	}
	_ = s.Connect(context.Background())
	return s
}

func (s *flakyStore) Insert(ctx context.Context, c vectorstore.Collection, records []vectorstore.Record) error {
	batch := int(records[0].ID) / s.batchSize
	s.mu.Lock()
	s.insertCalls[batch]++
	remaining, failing := s.failBatches[batch]
	if failing && remaining != 0 {
		if remaining > 0 {
			s.failBatches[batch] = remaining - 1
		}
		s.mu.Unlock()
		return apperrors.Unavailable("insert", errors.New("connection reset"))
	}
	s.mu.Unlock()
	if s.onInsert != nil {
		s.onInsert(batch)
	}
	return s.Store.Insert(ctx, c, records)
}

func (s *flakyStore) Flush(ctx context.Context, c vectorstore.Collection) error {
	s.mu.Lock()
	s.flushCalls++
	s.mu.Unlock()
	return s.Store.Flush(ctx, c)
}

type recordingSaver struct {
	saved []*vocabulary.Vocabulary
	err   error
}

func (r *recordingSaver) Save(_ context.Context, v *vocabulary.Vocabulary) error {
	if r.err != nil {
		return r.err
	}
	r.saved = append(r.saved, v)
	return nil
}

func corpus(n int) []string {
	docs := make([]string, n)
	for i := range docs {
		docs[i] = fmt.Sprintf("Movie %d (199%d) | Drama Comedy", i, i%10)
	}
	return docs
}

func testConfig(batchSize int) Config {
	return Config{
		BatchSize:              batchSize,
		MaxAttempts:            3,
		Backoff:                resilience.Fixed(0),
		MaxConsecutiveFailures: 5,
		FlushEvery:             10,
		CollectionPrefix:       "movie_vectors",
	}
}

func TestRunFailedBatchIsSkipped(t *testing.T) {
	store := newFlakyStore(20)
	store.failBatches[1] = -1
	saver := &recordingSaver{}
	m := metrics.New(prometheus.NewRegistry())

	res, report, err := New(store, saver, testConfig(20), m).Run(context.Background(), corpus(45))
	require.NoError(t, err)

	require.Len(t, report.Batches, 3)
	assert.Equal(t, []int{20, 20, 5}, []int{report.Batches[0].Size, report.Batches[1].Size, report.Batches[2].Size})
	assert.Equal(t, 3, store.insertCalls[1])
	assert.Equal(t, 3, report.Batches[1].Attempts)
	assert.Equal(t, 1, report.Batches[1].ConsecutiveFailures)
	assert.Equal(t, 1, store.insertCalls[2])
	assert.Equal(t, 0, report.Batches[2].ConsecutiveFailures)
	assert.Equal(t, []int{1}, report.FailedBatches())
	assert.Contains(t, report.Batches[1].Error, apperrors.ErrBatchInsertFailure.Error())

	assert.Equal(t, StateDone, report.State)
	assert.Equal(t, 25, report.Inserted)
	assert.True(t, report.Persisted)
	require.Len(t, saver.saved, 1)
	assert.Same(t, res.Vocabulary, saver.saved[0])
	assert.Equal(t, res.Vocabulary.Collection, res.Collection.Name)
	assert.Equal(t, res.Vocabulary.Dimension(), res.Collection.Dimension)

	n, err := store.Count(context.Background(), res.Collection)
	require.NoError(t, err)
	assert.Equal(t, int64(25), n)
}

func TestRunAbortsAfterConsecutiveFailureCeiling(t *testing.T) {
	store := newFlakyStore(1)
	for i := 0; i < 10; i++ {
		store.failBatches[i] = -1
	}
	saver := &recordingSaver{}

	res, report, err := New(store, saver, testConfig(1), nil).Run(context.Background(), corpus(10))
	require.Error(t, err)
	assert.True(t, IsAborted(err))
	assert.Equal(t, http.StatusInternalServerError, apperrors.HTTPStatusCode(err))
	assert.Nil(t, res)

	assert.Equal(t, StateAborted, report.State)
	assert.Len(t, report.Batches, 6)
	assert.Equal(t, 6, report.ConsecutiveFailures)
	assert.Zero(t, store.insertCalls[6])
	assert.False(t, report.Persisted)
	assert.Empty(t, saver.saved)
	assert.Equal(t, 1, store.flushCalls, "final flush runs on abort")
	assert.Contains(t, report.Trace, StateFlushing)
}

func TestRunSuccessResetsFailureCounter(t *testing.T) {
	store := newFlakyStore(1)
	for _, b := range []int{0, 1, 2, 3, 4, 6, 7, 8, 9, 10} {
		store.failBatches[b] = -1
	}
	saver := &recordingSaver{}

	_, report, err := New(store, saver, testConfig(1), nil).Run(context.Background(), corpus(11))
	require.NoError(t, err)
	assert.Equal(t, StateDone, report.State)
	assert.Len(t, report.Batches, 11)
	assert.Equal(t, 0, report.Batches[5].ConsecutiveFailures)
	assert.Equal(t, 5, report.ConsecutiveFailures)
	assert.Len(t, saver.saved, 1)
}

func TestRunRetriesThenSucceeds(t *testing.T) {
	store := newFlakyStore(5)
	store.failBatches[0] = 2
	m := metrics.New(prometheus.NewRegistry())

	_, report, err := New(store, &recordingSaver{}, testConfig(5), m).Run(context.Background(), corpus(5))
	require.NoError(t, err)
	assert.Equal(t, 3, report.Batches[0].Attempts)
	assert.Empty(t, report.FailedBatches())
	assert.Equal(t, []State{
		StateIdle, StateBuilding, StateBatching,
		StateInserting, StateRetrying, StateInserting, StateRetrying, StateInserting,
		StateBatching, StateFlushing, StateDone,
	}, report.Trace)

	var phases []string
	for _, p := range report.Phases {
		phases = append(phases, p.Phase)
	}
	assert.Equal(t, []string{"vocabulary", "collection", "batches", "flush", "persist"}, phases)
}

func TestRunPeriodicAndFinalFlush(t *testing.T) {
	store := newFlakyStore(1)
	cfg := testConfig(1)
	cfg.FlushEvery = 2

	_, report, err := New(store, &recordingSaver{}, cfg, nil).Run(context.Background(), corpus(5))
	require.NoError(t, err)
	assert.Equal(t, 3, report.Flushes)
	assert.Equal(t, 3, store.flushCalls)
}

func TestRunHonoursCancellationBetweenBatches(t *testing.T) {
	store := newFlakyStore(2)
	ctx, cancel := context.WithCancel(context.Background())
	store.onInsert = func(batch int) {
		if batch == 1 {
			cancel()
		}
	}
	saver := &recordingSaver{}

	_, report, err := New(store, saver, testConfig(2), nil).Run(ctx, corpus(10))
	require.Error(t, err)
	assert.True(t, IsAborted(err))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, report.Batches, 2)
	assert.Zero(t, store.insertCalls[2])
	assert.Empty(t, saver.saved)
	assert.Equal(t, 1, store.flushCalls)
}

func TestRunEmptyCorpus(t *testing.T) {
	store := newFlakyStore(20)
	_, report, err := New(store, &recordingSaver{}, testConfig(20), nil).Run(context.Background(), []string{"", "?!"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Equal(t, StateAborted, report.State)
}

func TestRunSaveFailureIsNotDone(t *testing.T) {
	store := newFlakyStore(20)
	saver := &recordingSaver{err: errors.New("postgres down")}
	res, report, err := New(store, saver, testConfig(20), nil).Run(context.Background(), corpus(3))
	require.Error(t, err)
	assert.Nil(t, res)
	assert.False(t, report.Persisted)
	assert.Equal(t, StateAborted, report.State)
}

func TestAdvance(t *testing.T) {
	cfg := Config{MaxConsecutiveFailures: 5, FlushEvery: 2}
	var tl tally
	var flush, abort bool

	tl, flush, _ = advance(tl, true, cfg)
	assert.False(t, flush)
	tl, flush, _ = advance(tl, true, cfg)
	assert.True(t, flush)

	for i := 1; i <= 5; i++ {
		tl, _, abort = advance(tl, false, cfg)
		assert.False(t, abort, "failure %d", i)
	}
	assert.Equal(t, 5, tl.consecutiveFailures)
	_, _, abort = advance(tl, false, cfg)
	assert.True(t, abort)

	tl, _, _ = advance(tl, true, cfg)
	assert.Zero(t, tl.consecutiveFailures)
}

func TestBatchBounds(t *testing.T) {
	assert.Equal(t, [][2]int{{0, 20}, {20, 40}, {40, 45}}, batchBounds(45, 20))
	assert.Equal(t, [][2]int{{0, 3}}, batchBounds(3, 20))
	assert.Empty(t, batchBounds(0, 20))
}

func BenchmarkRun(b *testing.B) {
	docs := corpus(2000)
	cfg := testConfig(500)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		store := memory.New()
		_ = store.Connect(context.Background())
		if _, _, err := New(store, nil, cfg, nil).Run(context.Background(), docs); err != nil {
			b.Fatal(err)
		}
	}
}

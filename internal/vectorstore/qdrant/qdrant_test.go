package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/vectorstore"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeQdrant implements the subset of the Qdrant REST API the client uses.
type fakeQdrant struct {
	mu          sync.Mutex
	collections map[string]*fakeCollection
	apiKeys     []string
}

type fakeCollection struct {
	size   int
	points map[int64]point
}

func newFake() *fakeQdrant {
	return &fakeQdrant{collections: make(map[string]*fakeCollection)}
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apiKeys = append(f.apiKeys, r.Header.Get("api-key"))

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) == 1 && parts[0] == "collections" {
		writeResult(w, map[string]any{"collections": []any{}})
		return
	}
	if len(parts) < 2 || parts[0] != "collections" {
		http.NotFound(w, r)
		return
	}
	name := parts[1]
	c, exists := f.collections[name]

	if len(parts) == 2 {
		switch r.Method {
		case http.MethodGet:
			if !exists {
				http.NotFound(w, r)
				return
			}
			writeResult(w, map[string]any{
				"status":       "green",
				"points_count": len(c.points),
				"config":       map[string]any{"params": map[string]any{"vectors": map[string]any{"size": c.size, "distance": "Cosine"}}},
			})
		case http.MethodPut:
			var body struct {
				Vectors vectorParams `json:"vectors"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			f.collections[name] = &fakeCollection{size: body.Vectors.Size, points: make(map[int64]point)}
			writeResult(w, true)
		case http.MethodDelete:
			if !exists {
				http.NotFound(w, r)
				return
			}
			delete(f.collections, name)
			writeResult(w, true)
		}
		return
	}
	if !exists {
		http.NotFound(w, r)
		return
	}
	op := ""
	if len(parts) > 3 {
		op = parts[3]
	}
	switch op {
	case "":
		var body struct {
			Points []point `json:"points"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		for _, p := range body.Points {
			c.points[p.ID] = p
		}
		writeResult(w, map[string]any{"status": "completed"})
	case "scroll":
		var body struct {
			Limit  int    `json:"limit"`
			Offset *int64 `json:"offset"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		ids := c.sortedIDs()
		var page []point
		var next *int64
		for _, id := range ids {
			if body.Offset != nil && id < *body.Offset {
				continue
			}
			if len(page) == body.Limit {
				n := id
				next = &n
				break
			}
			page = append(page, c.points[id])
		}
		writeResult(w, map[string]any{"points": page, "next_page_offset": next})
	case "search":
		var body struct {
			Vector []float32 `json:"vector"`
			Limit  int       `json:"limit"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		var records []vectorstore.Record
		for _, id := range c.sortedIDs() {
			p := c.points[id]
			records = append(records, vectorstore.Record{ID: p.ID, Vector: p.Vector, Text: p.Payload["text"].(string)})
		}
		var result []map[string]any
		for _, h := range vectorstore.BruteForce(records, body.Vector, body.Limit) {
			result = append(result, map[string]any{"id": h.ID, "score": h.Score, "payload": map[string]any{"text": h.Text}})
		}
		writeResult(w, result)
	case "count":
		writeResult(w, map[string]any{"count": len(c.points)})
	default:
		http.NotFound(w, r)
	}
}

func (c *fakeCollection) sortedIDs() []int64 {
	ids := make([]int64, 0, len(c.points))
	for id := range c.points {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func writeResult(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"result": result, "status": "ok"})
}

func newClient(url string) *Store {
	return New(config.QdrantConfig{URL: url, APIKey: "secret", Timeout: time.Second},
		resilience.CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Minute})
}

func TestStoreAgainstFakeServer(t *testing.T) {
	fake := newFake()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ctx := context.Background()
	s := newClient(srv.URL)
	require.NoError(t, s.Connect(ctx))

	_, err := s.OpenCollection(ctx, "movies_1")
	assert.ErrorIs(t, err, apperrors.ErrNotInitialized)

	c, err := s.EnsureCollection(ctx, "movies_1", 2)
	require.NoError(t, err)

	var records []vectorstore.Record
	for i := 0; i < scrollPageSize+10; i++ {
		records = append(records, vectorstore.Record{ID: int64(i), Text: "doc", Vector: []float32{float32(i % 2), 1}})
	}
	require.NoError(t, s.Insert(ctx, c, records))
	require.NoError(t, s.Flush(ctx, c))

	n, err := s.Count(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, int64(len(records)), n)

	all, err := s.QueryAll(ctx, c)
	require.NoError(t, err)
	require.Len(t, all, len(records))
	assert.Equal(t, int64(0), all[0].ID)
	assert.Equal(t, records[len(records)-1].Vector, all[len(all)-1].Vector)

	hits, err := s.Search(ctx, c, []float32{0, 1}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, int64(0), hits[0].ID)
	assert.Equal(t, "doc", hits[0].Text)

	opened, err := s.OpenCollection(ctx, "movies_1")
	require.NoError(t, err)
	assert.Equal(t, 2, opened.Dimension)

	wider, err := s.EnsureCollection(ctx, "movies_1", 3)
	require.NoError(t, err)
	n, err = s.Count(ctx, wider)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, s.DropCollection(ctx, "movies_1"))
	require.NoError(t, s.DropCollection(ctx, "movies_1"))
	assert.Contains(t, fake.apiKeys, "secret")
}

func TestServerErrorsAreUnavailableAndTripBreaker(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "boom", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx := context.Background()
	s := newClient(srv.URL)
	c := vectorstore.Collection{Name: "movies", Dimension: 1}

	for i := 0; i < 2; i++ {
		err := s.Insert(ctx, c, []vectorstore.Record{{ID: 0, Vector: []float32{1}}})
		assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
	}
	assert.Equal(t, resilience.StateOpen, s.Breaker().GetState())

	err := s.Connect(ctx)
	assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, 2, calls)
}

func TestMissingCollectionDoesNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(newFake())
	defer srv.Close()

	ctx := context.Background()
	s := newClient(srv.URL)
	for i := 0; i < 3; i++ {
		_, err := s.OpenCollection(ctx, "absent")
		assert.ErrorIs(t, err, apperrors.ErrNotInitialized)
	}
	assert.Equal(t, resilience.StateClosed, s.Breaker().GetState())
}

func TestDimensionCheckedLocally(t *testing.T) {
	s := newClient("http://127.0.0.1:0")
	_, err := s.Search(context.Background(), vectorstore.Collection{Name: "m", Dimension: 3}, []float32{1}, 1)
	assert.ErrorIs(t, err, apperrors.ErrDimensionMismatch)
}

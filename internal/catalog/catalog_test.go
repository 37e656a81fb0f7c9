package catalog

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu     sync.Mutex
	movies map[int64]Movie
	nextID int64
}

func newFakeStore(movies ...Movie) *fakeStore {
	s := &fakeStore{movies: map[int64]Movie{}, nextID: 1}
	for _, m := range movies {
		s.movies[m.ID] = m
		if m.ID >= s.nextID {
			s.nextID = m.ID + 1
		}
	}
	return s
}

func (s *fakeStore) sorted() []Movie {
	out := make([]Movie, 0, len(s.movies))
	for _, m := range s.movies {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *fakeStore) List(_ context.Context, limit, offset int) ([]Movie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.sorted()
	if offset >= len(all) {
		return []Movie{}, nil
	}
	return all[offset:min(offset+limit, len(all))], nil
}

func (s *fakeStore) Get(_ context.Context, id int64) (Movie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.movies[id]
	if !ok {
		return Movie{}, notFound(id)
	}
	return m, nil
}

func (s *fakeStore) Create(_ context.Context, m Movie) (Movie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == 0 {
		m.ID = s.nextID
	}
	if _, ok := s.movies[m.ID]; ok {
		return Movie{}, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusConflict, "movie %d already exists", m.ID)
	}
	s.movies[m.ID] = m
	if m.ID >= s.nextID {
		s.nextID = m.ID + 1
	}
	return m, nil
}

func (s *fakeStore) Update(_ context.Context, m Movie) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.movies[m.ID]; !ok {
		return notFound(m.ID)
	}
	s.movies[m.ID] = m
	return nil
}

func (s *fakeStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.movies[id]; !ok {
		return notFound(id)
	}
	delete(s.movies, id)
	return nil
}

func (s *fakeStore) Import(_ context.Context, movies []Movie) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range movies {
		s.movies[m.ID] = m
		if m.ID >= s.nextID {
			s.nextID = m.ID + 1
		}
	}
	return len(movies), nil
}

func (s *fakeStore) All(_ context.Context) ([]Movie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(), nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []ingestion.CorpusChangedEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e.Value.(ingestion.CorpusChangedEvent))
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func TestMovieText(t *testing.T) {
	m := Movie{ID: 1, Title: "Toy Story (1995)", Genres: "Adventure|Animation"}
	assert.Equal(t, "Toy Story (1995) | Adventure|Animation", m.Text())
}

func TestValidate(t *testing.T) {
	m := Movie{Title: "  Heat (1995) ", Genres: " Action "}
	require.NoError(t, m.Validate())
	assert.Equal(t, "Heat (1995)", m.Title)
	assert.Equal(t, "Action", m.Genres)

	bad := Movie{ID: -1, Title: " ", Genres: strings.Repeat("x", maxGenresLength+1)}
	err := bad.Validate()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 3)
	assert.Contains(t, err.Error(), "title: title is required")
}

func TestReadCSV(t *testing.T) {
	data := "movieId,title,genres\n" +
		"1,Toy Story (1995),Adventure|Animation|Children|Comedy|Fantasy\n" +
		"2,\"Grumpier Old Men, The (1995)\",Comedy|Romance\n"
	movies, err := ReadCSV(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, movies, 2)
	assert.Equal(t, Movie{ID: 2, Title: "Grumpier Old Men, The (1995)", Genres: "Comedy|Romance"}, movies[1])
}

func TestReadCSVReordersColumnsAndRejectsBadRows(t *testing.T) {
	movies, err := ReadCSV(strings.NewReader("title,genres,movieId\nHeat (1995),Action,6\n"))
	require.NoError(t, err)
	assert.Equal(t, []Movie{{ID: 6, Title: "Heat (1995)", Genres: "Action"}}, movies)

	_, err = ReadCSV(strings.NewReader("id,title\n1,x\n"))
	assert.ErrorContains(t, err, "movieId")

	_, err = ReadCSV(strings.NewReader("movieId,title,genres\nabc,x,y\n"))
	assert.ErrorContains(t, err, "line 2")

	_, err = ReadCSV(strings.NewReader("movieId,title,genres\n3,,Drama\n"))
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestServiceAnnouncesMutations(t *testing.T) {
	ctx := context.Background()
	events := &recordingPublisher{}
	svc := NewService(newFakeStore(), events)

	created, err := svc.Create(ctx, Movie{Title: "Heat (1995)", Genres: "Action|Crime"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, created.ID)

	require.NoError(t, svc.Update(ctx, Movie{ID: created.ID, Title: "Heat (1995)", Genres: "Action|Crime|Thriller"}))
	n, err := svc.Import(ctx, []Movie{{ID: 10, Title: "Jumanji (1995)", Genres: "Adventure"}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, svc.Delete(ctx, created.ID))

	require.Len(t, events.events, 4)
	ops := []string{events.events[0].Operation, events.events[1].Operation, events.events[2].Operation, events.events[3].Operation}
	assert.Equal(t, []string{OpCreate, OpUpdate, OpImport, OpDelete}, ops)
	assert.Equal(t, []int64{1}, events.events[0].MovieIDs)
	assert.False(t, events.events[0].ChangedAt.IsZero())
}

func TestServiceDoesNotAnnounceFailures(t *testing.T) {
	ctx := context.Background()
	events := &recordingPublisher{}
	svc := NewService(newFakeStore(), events)

	_, err := svc.Create(ctx, Movie{Title: ""})
	assert.Error(t, err)
	assert.ErrorIs(t, svc.Delete(ctx, 42), apperrors.ErrNotFound)
	_, err = svc.Import(ctx, []Movie{{ID: 1, Title: "ok"}, {ID: 2, Title: " "}})
	assert.Error(t, err)
	assert.Empty(t, events.events)
}

func TestServicePublishFailureKeepsMutation(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, &recordingPublisher{err: errors.New("broker down")})

	_, err := svc.Create(context.Background(), Movie{Title: "Up (2009)", Genres: "Animation"})
	require.NoError(t, err)
	assert.Len(t, store.movies, 1)
}

func TestCorpusIsOrderedByID(t *testing.T) {
	svc := NewService(newFakeStore(
		Movie{ID: 5, Title: "Heat (1995)", Genres: "Action"},
		Movie{ID: 1, Title: "Toy Story (1995)", Genres: "Animation"},
	), nil)

	docs, err := svc.Corpus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Toy Story (1995) | Animation", "Heat (1995) | Action"}, docs)
}

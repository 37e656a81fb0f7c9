// Package memory is an in-process vector store for development and tests.
// Search is brute-force cosine similarity.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/vectorstore"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/errors"
)

type collection struct {
	dim     int
	records map[int64]vectorstore.Record
	flushes int
}

type Store struct {
	mu          sync.RWMutex
	connected   bool
	collections map[string]*collection
}

func New() *Store {
	return &Store{collections: make(map[string]*collection)}
}

func (s *Store) Connect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	return nil
}

func (s *Store) EnsureCollection(_ context.Context, name string, dim int) (vectorstore.Collection, error) {
	if dim <= 0 {
		return vectorstore.Collection{}, apperrors.Newf(apperrors.ErrInvalidInput, 400, "collection %s: invalid dimension %d", name, dim)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkConnected("ensure collection"); err != nil {
		return vectorstore.Collection{}, err
	}
	if c, ok := s.collections[name]; ok && c.dim == dim {
		return vectorstore.Collection{Name: name, Dimension: dim}, nil
	}
	s.collections[name] = &collection{dim: dim, records: make(map[int64]vectorstore.Record)}
	return vectorstore.Collection{Name: name, Dimension: dim}, nil
}

func (s *Store) OpenCollection(_ context.Context, name string) (vectorstore.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkConnected("open collection"); err != nil {
		return vectorstore.Collection{}, err
	}
	c, ok := s.collections[name]
	if !ok {
		return vectorstore.Collection{}, fmt.Errorf("collection %s: %w", name, apperrors.ErrNotInitialized)
	}
	return vectorstore.Collection{Name: name, Dimension: c.dim}, nil
}

func (s *Store) DropCollection(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkConnected("drop collection"); err != nil {
		return err
	}
	delete(s.collections, name)
	return nil
}

func (s *Store) Insert(_ context.Context, c vectorstore.Collection, records []vectorstore.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, err := s.lookup(c.Name)
	if err != nil {
		return err
	}
	for _, r := range records {
		if len(r.Vector) != coll.dim {
			return apperrors.Mismatch(len(r.Vector), coll.dim)
		}
	}
	for _, r := range records {
		vec := make([]float32, len(r.Vector))
		copy(vec, r.Vector)
		coll.records[r.ID] = vectorstore.Record{ID: r.ID, Text: r.Text, Vector: vec}
	}
	return nil
}

func (s *Store) Flush(_ context.Context, c vectorstore.Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, err := s.lookup(c.Name)
	if err != nil {
		return err
	}
	coll.flushes++
	return nil
}

func (s *Store) QueryAll(_ context.Context, c vectorstore.Collection) ([]vectorstore.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	coll, err := s.lookup(c.Name)
	if err != nil {
		return nil, err
	}
	out := make([]vectorstore.Record, 0, len(coll.records))
	for _, r := range coll.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) Search(ctx context.Context, c vectorstore.Collection, vector []float32, topK int) ([]vectorstore.Hit, error) {
	records, err := s.QueryAll(ctx, c)
	if err != nil {
		return nil, err
	}
	if len(vector) != c.Dimension {
		return nil, apperrors.Mismatch(len(vector), c.Dimension)
	}
	return vectorstore.BruteForce(records, vector, topK), nil
}

func (s *Store) Count(_ context.Context, c vectorstore.Collection) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	coll, err := s.lookup(c.Name)
	if err != nil {
		return 0, err
	}
	return int64(len(coll.records)), nil
}

// Flushes reports how many times the named collection was flushed.
func (s *Store) Flushes(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.collections[name]; ok {
		return c.flushes
	}
	return 0
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	return nil
}

func (s *Store) checkConnected(op string) error {
	if !s.connected {
		return apperrors.Unavailable(op, fmt.Errorf("memory store not connected"))
	}
	return nil
}

func (s *Store) lookup(name string) (*collection, error) {
	if err := s.checkConnected("lookup"); err != nil {
		return nil, err
	}
	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("collection %s: %w", name, apperrors.ErrNotInitialized)
	}
	return c, nil
}

var _ vectorstore.Store = (*Store)(nil)

package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/kafka"
)

// Operations reported in corpus change events.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
	OpImport = "import"
)

// Service validates mutations, applies them to the Store and announces the
// change. A failed announcement is logged and does not fail the mutation.
type Service struct {
	store  Store
	events kafka.Publisher
	logger *slog.Logger
}

// NewService creates a Service. events may be nil.
func NewService(store Store, events kafka.Publisher) *Service {
	if events == nil {
		events = kafka.Nop{}
	}
	return &Service{
		store:  store,
		events: events,
		logger: slog.Default().With("component", "catalog"),
	}
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]Movie, error) {
	return s.store.List(ctx, limit, offset)
}

func (s *Service) Get(ctx context.Context, id int64) (Movie, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, m Movie) (Movie, error) {
	if err := m.Validate(); err != nil {
		return Movie{}, err
	}
	created, err := s.store.Create(ctx, m)
	if err != nil {
		return Movie{}, err
	}
	s.announce(ctx, OpCreate, created.ID)
	return created, nil
}

func (s *Service) Update(ctx context.Context, m Movie) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if err := s.store.Update(ctx, m); err != nil {
		return err
	}
	s.announce(ctx, OpUpdate, m.ID)
	return nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.announce(ctx, OpDelete, id)
	return nil
}

// Import validates every movie before writing any of them.
func (s *Service) Import(ctx context.Context, movies []Movie) (int, error) {
	for i := range movies {
		if err := movies[i].Validate(); err != nil {
			return 0, fmt.Errorf("movie %d: %w", movies[i].ID, err)
		}
	}
	n, err := s.store.Import(ctx, movies)
	if err != nil {
		return 0, err
	}
	s.logger.Info("movies imported", "count", n)
	s.announce(ctx, OpImport)
	return n, nil
}

// Corpus returns the document text of every movie in ID order. A document's
// position is its index ordinal.
func (s *Service) Corpus(ctx context.Context) ([]string, error) {
	movies, err := s.store.All(ctx)
	if err != nil {
		return nil, err
	}
	docs := make([]string, len(movies))
	for i, m := range movies {
		docs[i] = m.Text()
	}
	return docs, nil
}

func (s *Service) announce(ctx context.Context, op string, ids ...int64) {
	key := op
	if len(ids) == 1 {
		key = strconv.FormatInt(ids[0], 10)
	}
	event := kafka.Event{
		Key: key,
		Value: ingestion.CorpusChangedEvent{
			Operation: op,
			MovieIDs:  ids,
			ChangedAt: time.Now().UTC(),
		},
	}
	if err := s.events.Publish(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Error("failed to announce corpus change, index is stale until the next rebuild",
			"operation", op,
			"error", err,
		)
	}
}

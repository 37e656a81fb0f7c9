// Package qdrant is a REST client for a Qdrant server implementing
// vectorstore.Store. Collections use cosine distance; the document ordinal
// is the point ID and the text travels in the payload. Every call goes
// through a circuit breaker so a dead server fails fast.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/vectorstore"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/resilience"
)

const scrollPageSize = 256

var errMissing = errors.New("qdrant: not found")

type Store struct {
	baseURL string
	apiKey  string
	client  *http.Client
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

// New builds a client. It does not contact the server until Connect.
func New(cfg config.QdrantConfig, breaker resilience.CircuitBreakerConfig) *Store {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	breaker.IsFailure = func(err error) bool {
		return errors.Is(err, apperrors.ErrStoreUnavailable)
	}
	return &Store{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
		breaker: resilience.NewCircuitBreaker("qdrant", breaker),
		logger:  slog.Default().With("component", "qdrant-store"),
	}
}

// Breaker exposes the circuit breaker for health reporting.
func (s *Store) Breaker() *resilience.CircuitBreaker {
	return s.breaker
}

func (s *Store) Connect(ctx context.Context) error {
	return s.do(ctx, http.MethodGet, "/collections", nil, nil)
}

type vectorParams struct {
	Size     int    `json:"size"`
	Distance string `json:"distance"`
}

type collectionInfo struct {
	Result struct {
		Status      string `json:"status"`
		PointsCount int64  `json:"points_count"`
		Config      struct {
			Params struct {
				Vectors vectorParams `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	} `json:"result"`
}

func (s *Store) info(ctx context.Context, name string) (collectionInfo, error) {
	var info collectionInfo
	err := s.do(ctx, http.MethodGet, "/collections/"+url.PathEscape(name), nil, &info)
	if errors.Is(err, errMissing) {
		return info, fmt.Errorf("collection %s: %w", name, apperrors.ErrNotInitialized)
	}
	return info, err
}

func (s *Store) EnsureCollection(ctx context.Context, name string, dim int) (vectorstore.Collection, error) {
	if dim <= 0 {
		return vectorstore.Collection{}, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "collection %s: invalid dimension %d", name, dim)
	}
	info, err := s.info(ctx, name)
	switch {
	case err == nil && info.Result.Config.Params.Vectors.Size == dim:
		return vectorstore.Collection{Name: name, Dimension: dim}, nil
	case err == nil:
		s.logger.Warn("dropping collection with mismatched dimension",
			"collection", name,
			"have", info.Result.Config.Params.Vectors.Size,
			"want", dim,
		)
		if err := s.DropCollection(ctx, name); err != nil {
			return vectorstore.Collection{}, err
		}
	case !errors.Is(err, apperrors.ErrNotInitialized):
		return vectorstore.Collection{}, err
	}
	body := map[string]any{"vectors": vectorParams{Size: dim, Distance: "Cosine"}}
	if err := s.do(ctx, http.MethodPut, "/collections/"+url.PathEscape(name), body, nil); err != nil {
		return vectorstore.Collection{}, err
	}
	return vectorstore.Collection{Name: name, Dimension: dim}, nil
}

func (s *Store) OpenCollection(ctx context.Context, name string) (vectorstore.Collection, error) {
	info, err := s.info(ctx, name)
	if err != nil {
		return vectorstore.Collection{}, err
	}
	return vectorstore.Collection{Name: name, Dimension: info.Result.Config.Params.Vectors.Size}, nil
}

func (s *Store) DropCollection(ctx context.Context, name string) error {
	err := s.do(ctx, http.MethodDelete, "/collections/"+url.PathEscape(name), nil, nil)
	if errors.Is(err, errMissing) {
		return nil
	}
	return err
}

type point struct {
	ID      int64          `json:"id"`
	Vector  []float32      `json:"vector,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

func (s *Store) Insert(ctx context.Context, c vectorstore.Collection, records []vectorstore.Record) error {
	points := make([]point, len(records))
	for i, r := range records {
		if len(r.Vector) != c.Dimension {
			return apperrors.Mismatch(len(r.Vector), c.Dimension)
		}
		points[i] = point{ID: r.ID, Vector: r.Vector, Payload: map[string]any{"text": r.Text}}
	}
	return s.collectionCall(ctx, c, http.MethodPut, "/points?wait=true", map[string]any{"points": points}, nil)
}

// Flush confirms the collection is present and its optimizer reports a
// non-red status. Upserts are sent with wait=true, so acknowledged points are
// already durable.
func (s *Store) Flush(ctx context.Context, c vectorstore.Collection) error {
	info, err := s.info(ctx, c.Name)
	if err != nil {
		return err
	}
	if info.Result.Status == "red" {
		return apperrors.Unavailable("flush", fmt.Errorf("collection %s status red", c.Name))
	}
	return nil
}

type scrollResponse struct {
	Result struct {
		Points []struct {
			ID      int64          `json:"id"`
			Vector  []float32      `json:"vector"`
			Payload map[string]any `json:"payload"`
		} `json:"points"`
		NextPageOffset *int64 `json:"next_page_offset"`
	} `json:"result"`
}

func (s *Store) QueryAll(ctx context.Context, c vectorstore.Collection) ([]vectorstore.Record, error) {
	var (
		out    []vectorstore.Record
		offset *int64
	)
	for {
		req := map[string]any{"limit": scrollPageSize, "with_payload": true, "with_vector": true}
		if offset != nil {
			req["offset"] = *offset
		}
		var resp scrollResponse
		if err := s.collectionCall(ctx, c, http.MethodPost, "/points/scroll", req, &resp); err != nil {
			return nil, err
		}
		for _, p := range resp.Result.Points {
			text, _ := p.Payload["text"].(string)
			out = append(out, vectorstore.Record{ID: p.ID, Text: text, Vector: p.Vector})
		}
		if resp.Result.NextPageOffset == nil {
			break
		}
		offset = resp.Result.NextPageOffset
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) Search(ctx context.Context, c vectorstore.Collection, vector []float32, topK int) ([]vectorstore.Hit, error) {
	if len(vector) != c.Dimension {
		return nil, apperrors.Mismatch(len(vector), c.Dimension)
	}
	if topK <= 0 {
		return []vectorstore.Hit{}, nil
	}
	req := map[string]any{"vector": vector, "limit": topK, "with_payload": true}
	var resp struct {
		Result []struct {
			ID      int64          `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := s.collectionCall(ctx, c, http.MethodPost, "/points/search", req, &resp); err != nil {
		return nil, err
	}
	hits := make([]vectorstore.Hit, 0, len(resp.Result))
	for _, r := range resp.Result {
		text, _ := r.Payload["text"].(string)
		hits = append(hits, vectorstore.Hit{ID: r.ID, Score: r.Score, Text: text})
	}
	return hits, nil
}

func (s *Store) Count(ctx context.Context, c vectorstore.Collection) (int64, error) {
	var resp struct {
		Result struct {
			Count int64 `json:"count"`
		} `json:"result"`
	}
	if err := s.collectionCall(ctx, c, http.MethodPost, "/points/count", map[string]any{"exact": true}, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

func (s *Store) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *Store) collectionCall(ctx context.Context, c vectorstore.Collection, method, suffix string, body, out any) error {
	err := s.do(ctx, method, "/collections/"+url.PathEscape(c.Name)+suffix, body, out)
	if errors.Is(err, errMissing) {
		return fmt.Errorf("collection %s: %w", c.Name, apperrors.ErrNotInitialized)
	}
	return err
}

// do performs one request through the breaker. Transport errors and 5xx
// answers wrap ErrStoreUnavailable; 404 returns errMissing.
func (s *Store) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("qdrant: encoding request: %w", err)
		}
	}
	err := s.breaker.Execute(func() error {
		req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("qdrant: building request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if s.apiKey != "" {
			req.Header.Set("api-key", s.apiKey)
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return apperrors.Unavailable("qdrant "+method+" "+path, err)
		}
		defer resp.Body.Close()
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return errMissing
		case resp.StatusCode >= 500:
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return apperrors.Unavailable("qdrant "+method+" "+path, fmt.Errorf("%s: %s", resp.Status, bytes.TrimSpace(msg)))
		case resp.StatusCode >= 300:
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("qdrant %s %s failed: %s: %s", method, path, resp.Status, bytes.TrimSpace(msg))
		}
		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return fmt.Errorf("qdrant: decoding %s response: %w", path, err)
			}
		}
		return nil
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return apperrors.Unavailable("qdrant", err)
	}
	return err
}

var _ vectorstore.Store = (*Store)(nil)

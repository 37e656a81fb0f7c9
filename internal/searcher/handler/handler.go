// Package handler serves the search HTTP API: ranked queries, the index
// status, on-demand rebuilds from the catalog and cache administration.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/indexer/vocabulary"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/internal/searcher/executor"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/logger"
)

type SearchExecutor interface {
	Search(ctx context.Context, query string, topK int, mode executor.Mode) (*executor.SearchResult, error)
}

// Index is the engine surface the handler needs.
type Index interface {
	Current() *vocabulary.Vocabulary
	Status(ctx context.Context) indexer.Status
	BuildIndex(ctx context.Context, corpus []string) (*vocabulary.Vocabulary, *ingestion.Report, error)
}

// CorpusSource loads the documents a rebuild indexes.
type CorpusSource interface {
	Corpus(ctx context.Context) ([]string, error)
}

type Handler struct {
	executor     SearchExecutor
	index        Index
	corpus       CorpusSource
	cache        *cache.QueryCache
	defaultMode  executor.Mode
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

// Options carries the request defaults.
type Options struct {
	DefaultMode  executor.Mode
	DefaultLimit int
	MaxResults   int
}

// New creates a Handler. queryCache and corpus may be nil; without a corpus
// source POST /api/v1/index answers 503.
func New(exec SearchExecutor, index Index, corpus CorpusSource, queryCache *cache.QueryCache, opts Options) *Handler {
	if opts.DefaultMode == "" {
		opts.DefaultMode = executor.ModeAuto
	}
	if opts.DefaultLimit < 1 {
		opts.DefaultLimit = 5
	}
	if opts.MaxResults < opts.DefaultLimit {
		opts.MaxResults = opts.DefaultLimit
	}
	return &Handler{
		executor:     exec,
		index:        index,
		corpus:       corpus,
		cache:        queryCache,
		defaultMode:  opts.DefaultMode,
		defaultLimit: opts.DefaultLimit,
		maxResults:   opts.MaxResults,
		logger:       slog.Default().With("component", "search-handler"),
	}
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/search/fallback", h.SearchFallback)
	mux.HandleFunc("GET /api/v1/status", h.Status)
	mux.HandleFunc("POST /api/v1/index", h.BuildIndex)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	mode := h.defaultMode
	if m := r.URL.Query().Get("mode"); m != "" {
		parsed, err := executor.ParseMode(m)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		mode = parsed
	}
	h.search(w, r, mode)
}

// SearchFallback always ranks locally, bypassing the store's native search.
func (h *Handler) SearchFallback(w http.ResponseWriter, r *http.Request) {
	h.search(w, r, executor.ModeFallback)
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request, mode executor.Mode) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	limit := h.defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, h.maxResults)
	}

	compute := func() (*executor.SearchResult, error) {
		return h.executor.Search(ctx, query, limit, mode)
	}
	var (
		result   *executor.SearchResult
		err      error
		cacheHit bool
	)
	if v := h.index.Current(); h.cache != nil && v != nil {
		key := cache.Key{Version: v.Version, Query: query, Limit: limit, Mode: mode}
		result, cacheHit, err = h.cache.GetOrCompute(ctx, key, compute)
	} else {
		result, err = compute()
	}
	if err != nil {
		log.Error("search failed", "query", query, "mode", mode, "error", err)
		h.writeAppError(w, err)
		return
	}

	log.Info("search completed",
		"query", query,
		"path", result.Path,
		"returned", len(result.Results),
		"cache_hit", cacheHit,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.index.Status(r.Context()))
}

// BuildIndex rebuilds from the catalog and answers with the run report.
// The build is bound to the request context, so a disconnecting client
// cancels it between batches.
func (h *Handler) BuildIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.corpus == nil {
		h.writeError(w, http.StatusServiceUnavailable, "catalog not configured")
		return
	}
	corpus, err := h.corpus.Corpus(ctx)
	if err != nil {
		logger.FromContext(ctx).Error("loading corpus failed", "error", err)
		h.writeError(w, http.StatusServiceUnavailable, "catalog unavailable")
		return
	}
	v, report, err := h.index.BuildIndex(ctx, corpus)
	if err != nil {
		logger.FromContext(ctx).Error("index build failed", "error", err)
		h.writeJSON(w, apperrors.HTTPStatusCode(err), map[string]any{
			"error":  errorMessage(err),
			"report": report,
		})
		return
	}
	if h.cache != nil {
		if err := h.cache.Invalidate(ctx); err != nil {
			h.logger.Warn("cache invalidation after build failed", "error", err)
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"vocabulary_version": v.Version,
		"report":             report,
	})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func (h *Handler) writeAppError(w http.ResponseWriter, err error) {
	h.writeError(w, apperrors.HTTPStatusCode(err), errorMessage(err))
}

// errorMessage picks the client-facing text for err without leaking
// transport details.
func errorMessage(err error) string {
	var appErr *apperrors.AppError
	switch {
	case errors.Is(err, apperrors.ErrNotInitialized):
		return apperrors.ErrNotInitialized.Error()
	case errors.As(err, &appErr):
		return appErr.Error()
	case errors.Is(err, apperrors.ErrStoreUnavailable):
		return apperrors.ErrStoreUnavailable.Error()
	case errors.Is(err, apperrors.ErrTimeout):
		return apperrors.ErrTimeout.Error()
	default:
		return "internal error"
	}
}

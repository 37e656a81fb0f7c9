package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/tfidf-vector-search/pkg/logger"
)

const (
	defaultPageSize = 50
	maxPageSize     = 1000
	maxImportBytes  = 32 << 20
)

// Handler serves the movie CRUD API.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service) *Handler {
	return &Handler{
		service: service,
		logger:  slog.Default().With("component", "catalog-handler"),
	}
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/movies", h.List)
	mux.HandleFunc("POST /api/v1/movies", h.Create)
	mux.HandleFunc("POST /api/v1/movies/import", h.Import)
	mux.HandleFunc("GET /api/v1/movies/{id}", h.Get)
	mux.HandleFunc("PUT /api/v1/movies/{id}", h.Update)
	mux.HandleFunc("DELETE /api/v1/movies/{id}", h.Delete)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultPageSize)
	if err != nil || limit < 1 {
		h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		h.writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}
	movies, err := h.service.List(r.Context(), min(limit, maxPageSize), offset)
	if err != nil {
		h.fail(r.Context(), w, "list movies", err)
		return
	}
	h.writeJSON(w, http.StatusOK, movies)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	m, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(r.Context(), w, "get movie", err)
		return
	}
	h.writeJSON(w, http.StatusOK, m)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var m Movie
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	created, err := h.service.Create(r.Context(), m)
	if err != nil {
		h.fail(r.Context(), w, "create movie", err)
		return
	}
	logger.FromContext(r.Context()).Info("movie created", "movie_id", created.ID)
	h.writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var m Movie
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	m.ID = id
	if err := h.service.Update(r.Context(), m); err != nil {
		h.fail(r.Context(), w, "update movie", err)
		return
	}
	h.writeJSON(w, http.StatusOK, m)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.fail(r.Context(), w, "delete movie", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Import accepts a movies CSV as the request body.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	movies, err := ReadCSV(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	n, err := h.service.Import(r.Context(), movies)
	if err != nil {
		h.fail(r.Context(), w, "import movies", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int{"imported": n})
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		h.writeError(w, http.StatusBadRequest, "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, op string, err error) {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": validationErr.Fields,
		})
		return
	}
	status := apperrors.HTTPStatusCode(err)
	var appErr *apperrors.AppError
	msg := op + " failed"
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	if status >= http.StatusInternalServerError {
		logger.FromContext(ctx).Error(op+" failed", "error", err, "status_code", status)
	}
	h.writeError(w, status, msg)
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

func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

package catalog

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCatalogServer(t *testing.T, store Store) (*httptest.Server, *recordingPublisher) {
	t.Helper()
	events := &recordingPublisher{}
	mux := http.NewServeMux()
	NewHandler(NewService(store, events)).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, events
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestMovieCRUD(t *testing.T) {
	srv, events := newCatalogServer(t, newFakeStore())
	base := srv.URL + "/api/v1/movies"

	resp := do(t, http.MethodPost, base, `{"title":"Heat (1995)","genres":"Action"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created Movie
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.EqualValues(t, 1, created.ID)

	resp = do(t, http.MethodGet, base+"/1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodPut, base+"/1", `{"title":"Heat (1995)","genres":"Action|Crime"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodGet, base+"?limit=10", "")
	var list []Movie
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Equal(t, []Movie{{ID: 1, Title: "Heat (1995)", Genres: "Action|Crime"}}, list)

	resp = do(t, http.MethodDelete, base+"/1", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, http.MethodGet, base+"/1", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	assert.Len(t, events.events, 3)
}

func TestMovieHandlerRejectsBadInput(t *testing.T) {
	srv, events := newCatalogServer(t, newFakeStore())
	base := srv.URL + "/api/v1/movies"

	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodPost, base, `{`).StatusCode)
	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodPost, base, `{"title":""}`).StatusCode)
	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodGet, base+"/abc", "").StatusCode)
	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodGet, base+"?limit=0", "").StatusCode)
	assert.Equal(t, http.StatusNotFound, do(t, http.MethodPut, base+"/9", `{"title":"x"}`).StatusCode)
	assert.Empty(t, events.events)
}

func TestImportEndpoint(t *testing.T) {
	store := newFakeStore()
	srv, events := newCatalogServer(t, store)

	resp := do(t, http.MethodPost, srv.URL+"/api/v1/movies/import",
		"movieId,title,genres\n1,Toy Story (1995),Animation\n2,Jumanji (1995),Adventure\n")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 2, body["imported"])
	assert.Len(t, store.movies, 2)
	require.Len(t, events.events, 1)
	assert.Equal(t, OpImport, events.events[0].Operation)

	resp = do(t, http.MethodPost, srv.URL+"/api/v1/movies/import", "nope\n")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

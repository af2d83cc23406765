package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/clipsearch/internal/embeddings"
	"github.com/fyrsmithlabs/clipsearch/internal/search"
)

// fakeSearcher returns canned matches and records the last call.
type fakeSearcher struct {
	matches  []search.Match
	err      error
	gotQuery string
	gotLimit int
}

func (f *fakeSearcher) Search(ctx context.Context, query string, limit int) ([]search.Match, error) {
	f.gotQuery = query
	f.gotLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	if query == "" {
		return nil, search.ErrEmptyQuery
	}
	return f.matches, nil
}

func newTestServer(t *testing.T, searcher *fakeSearcher) *Server {
	t.Helper()
	server, err := NewServer(searcher, zap.NewNop(), nil)
	require.NoError(t, err)
	return server
}

func twoMatches() []search.Match {
	return []search.Match{
		{Index: 1, ImageID: "bee", Path: "a/bee.jpg", Score: 0.92, Image: []byte("bee-bytes")},
		{Index: 2, ImageID: "cat", Path: "b/cat.png", Score: 0.45, Image: []byte("cat-bytes")},
	}
}

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer(nil, zap.NewNop(), nil)
	assert.Error(t, err)

	_, err = NewServer(&fakeSearcher{}, nil, nil)
	assert.Error(t, err)
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t, &fakeSearcher{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestMetricsEndpoint(t *testing.T) {
	server := newTestServer(t, &fakeSearcher{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIndexPage(t *testing.T) {
	server := newTestServer(t, &fakeSearcher{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<form")
	assert.Contains(t, rec.Body.String(), `hx-post="/search"`)
}

func TestSearchAPI(t *testing.T) {
	searcher := &fakeSearcher{matches: twoMatches()}
	server := newTestServer(t, searcher)

	body, err := json.Marshal(SearchRequest{Query: "a bee", Limit: 2})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, "application/json")
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a bee", searcher.gotQuery)
	assert.Equal(t, 2, searcher.gotLimit)

	var resp SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "bee", resp.Results[0].ImageID)
	assert.Equal(t, "a/bee.jpg", resp.Results[0].Path)
	assert.Equal(t, float32(0.92), resp.Results[0].Score)
	assert.Equal(t, []byte("bee-bytes"), resp.Results[0].Image)
}

func TestSearchAPI_InvalidBody(t *testing.T) {
	server := newTestServer(t, &fakeSearcher{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader("not json"))
	req.Header.Set(echo.HeaderContentType, "application/json")
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchAPI_EmptyQuery(t *testing.T) {
	server := newTestServer(t, &fakeSearcher{})

	body, err := json.Marshal(SearchRequest{Query: ""})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, "application/json")
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchAPI_EmbedderDown(t *testing.T) {
	searcher := &fakeSearcher{err: embeddings.ErrModelUnavailable}
	server := newTestServer(t, searcher)

	body, err := json.Marshal(SearchRequest{Query: "a bee"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, "application/json")
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestSearchAPI_InternalError(t *testing.T) {
	searcher := &fakeSearcher{err: errors.New("store exploded")}
	server := newTestServer(t, searcher)

	body, err := json.Marshal(SearchRequest{Query: "a bee"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, "application/json")
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	// Internal details never leak to the response.
	assert.NotContains(t, rec.Body.String(), "exploded")
}

func TestSearchForm_HTMXFragment(t *testing.T) {
	searcher := &fakeSearcher{matches: twoMatches()}
	server := newTestServer(t, searcher)

	form := url.Values{"q": {"a bee"}}
	req := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, "application/x-www-form-urlencoded")
	req.Header.Set("HX-Request", "true")
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a bee", searcher.gotQuery)

	// Fragment only: results without the surrounding page.
	body := rec.Body.String()
	assert.Contains(t, body, "bee")
	assert.Contains(t, body, "data:image/jpeg;base64,")
	assert.NotContains(t, body, "<form")
}

func TestSearchForm_FullPageFallback(t *testing.T) {
	searcher := &fakeSearcher{matches: twoMatches()}
	server := newTestServer(t, searcher)

	form := url.Values{"q": {"a bee"}}
	req := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	// A plain form post gets the whole page with results inlined.
	body := rec.Body.String()
	assert.Contains(t, body, "<form")
	assert.Contains(t, body, "bee")
	assert.Contains(t, body, `value="a bee"`)
}

func TestDataURL(t *testing.T) {
	u := dataURL("a/bee.jpg", []byte("bee"))
	assert.True(t, strings.HasPrefix(string(u), "data:image/jpeg;base64,"))

	u = dataURL("b/cat.png", []byte("cat"))
	assert.True(t, strings.HasPrefix(string(u), "data:image/png;base64,"))

	u = dataURL("mystery", []byte("x"))
	assert.True(t, strings.HasPrefix(string(u), "data:application/octet-stream;base64,"))
}

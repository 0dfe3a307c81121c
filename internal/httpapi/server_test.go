package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bookshelf/internal/favorites"
	"bookshelf/internal/models"
	"bookshelf/internal/render"
	"bookshelf/internal/service"
	"bookshelf/internal/storage"
)

type stubCatalog struct {
	books     []models.BookSummary
	searchErr error
	details   map[string]models.BookDetails
}

func (c *stubCatalog) Search(_ context.Context, query string) ([]models.BookSummary, error) {
	if strings.TrimSpace(query) == "" {
		return nil, service.ErrEmptyQuery
	}
	return c.books, c.searchErr
}

func (c *stubCatalog) FetchDetails(_ context.Context, id string) (models.BookDetails, error) {
	d, ok := c.details[id]
	if !ok {
		return models.BookDetails{}, &service.CatalogError{Op: "details", Kind: service.KindNotFound, Status: 404, Err: errors.New("404 Not Found")}
	}
	return d, nil
}

type fixture struct {
	server   *Server
	handler  http.Handler
	registry *favorites.Registry
	hub      *Hub
	catalog  *stubCatalog
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	catalog := &stubCatalog{
		books: []models.BookSummary{{ID: "A1", Title: "Foo", Authors: []string{"X"}}},
		details: map[string]models.BookDetails{
			"A1": {ID: "A1", Title: "Foo", Authors: []string{"X"}, Thumbnail: "https://img/a1.jpg"},
			"B2": {ID: "B2", Title: "Bar"},
		},
	}
	hub := NewHub(zap.NewNop())
	t.Cleanup(hub.Close)
	registry := favorites.NewRegistry(storage.NewMemoryKV(), hub, zap.NewNop())
	opts.Logger = zap.NewNop()
	srv := New(catalog, registry, hub, opts)
	return &fixture{server: srv, handler: srv.Handler(), registry: registry, hub: hub, catalog: catalog}
}

func (f *fixture) do(t *testing.T, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeCollection(t *testing.T, rec *httptest.ResponseRecorder) models.Collection {
	t.Helper()
	var c models.Collection
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))
	return c
}

func TestHealthAndRequestID(t *testing.T) {
	f := newFixture(t, Options{})

	rec := f.do(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec = f.do(t, http.MethodGet, "/api/health", "", map[string]string{"X-Request-Id": "abc"})
	assert.Equal(t, "abc", rec.Header().Get("X-Request-Id"))
}

func TestIndexPage(t *testing.T) {
	f := newFixture(t, Options{})

	rec := f.do(t, http.MethodGet, "/", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), `id="favorites"`)
	assert.Contains(t, rec.Body.String(), "/ws/favorites")

	rec = f.do(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSearchAPI(t *testing.T) {
	f := newFixture(t, Options{})

	rec := f.do(t, http.MethodGet, "/api/search?q=foo", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"query":"foo","items":[{"id":"A1","title":"Foo","authors":["X"]}]}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/search?q=+", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.catalog.books = nil
	rec = f.do(t, http.MethodGet, "/api/search?q=zzz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"query":"zzz","items":[]}`, rec.Body.String())

	f.catalog.searchErr = &service.CatalogError{Op: "search", Kind: service.KindTransport, Err: errors.New("dial")}
	rec = f.do(t, http.MethodGet, "/api/search?q=foo", "", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), render.SearchFailed)
}

func TestBookAPI(t *testing.T) {
	f := newFixture(t, Options{})

	rec := f.do(t, http.MethodGet, "/api/books/A1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var d models.BookDetails
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.Equal(t, "Foo", d.Title)

	rec = f.do(t, http.MethodGet, "/api/books/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), render.DetailsFailed)
}

func TestFavoritesLifecycle(t *testing.T) {
	f := newFixture(t, Options{})

	rec := f.do(t, http.MethodGet, "/api/favorites", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/favorites", `{"id":"A1"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.Collection{{ID: "A1", Title: "Foo", Authors: []string{"X"}, Image: "https://img/a1.jpg"}}, decodeCollection(t, rec))

	// Adding again keeps one entry.
	rec = f.do(t, http.MethodPost, "/api/favorites", `{"id":"A1"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeCollection(t, rec), 1)

	rec = f.do(t, http.MethodPost, "/api/favorites", `{"id":"B2"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"A1", "B2"}, decodeCollection(t, rec).IDs())

	rec = f.do(t, http.MethodDelete, "/api/favorites/A1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"B2"}, decodeCollection(t, rec).IDs())

	assert.Equal(t, []string{"B2"}, f.registry.For(storage.FavoritesKey).List(context.Background()).IDs())
}

func TestAddFavoriteLookupFailure(t *testing.T) {
	f := newFixture(t, Options{})

	rec := f.do(t, http.MethodPost, "/api/favorites", `{"id":"missing"}`, nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), render.DetailsFailed)
	assert.Empty(t, f.registry.For(storage.FavoritesKey).List(context.Background()))
}

func TestAddFavoriteBadRequest(t *testing.T) {
	f := newFixture(t, Options{})

	rec := f.do(t, http.MethodPost, "/api/favorites", `{`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/favorites", `{"id":"  "}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFavoritesPerTelegramUser(t *testing.T) {
	f := newFixture(t, Options{BotToken: testToken})
	initData := buildSignedInitData(t, testToken, TelegramUser{ID: 42, Username: "reader"}, time.Now())
	auth := map[string]string{"X-Telegram-InitData": initData}

	rec := f.do(t, http.MethodPost, "/api/favorites", `{"id":"A1"}`, auth)
	require.Equal(t, http.StatusOK, rec.Code)

	ctx := context.Background()
	assert.Equal(t, []string{"A1"}, f.registry.For("favorites:42").List(ctx).IDs())
	assert.Empty(t, f.registry.For(storage.FavoritesKey).List(ctx))

	rec = f.do(t, http.MethodGet, "/api/favorites", "", map[string]string{"X-Telegram-InitData": "user=1&hash=bad"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuth(t *testing.T) {
	f := newFixture(t, Options{BotToken: testToken, RequireAuth: true})

	rec := f.do(t, http.MethodGet, "/api/favorites", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Catalog routes stay public.
	rec = f.do(t, http.MethodGet, "/api/search?q=foo", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestFragments(t *testing.T) {
	f := newFixture(t, Options{})

	rec := f.do(t, http.MethodGet, "/fragments/results?q=foo", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), `data-action="details"`)
	assert.Contains(t, rec.Body.String(), `data-id="A1"`)

	rec = f.do(t, http.MethodGet, "/fragments/results?q=", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.catalog.searchErr = &service.CatalogError{Op: "search", Kind: service.KindStatus, Status: 500, Err: errors.New("500")}
	rec = f.do(t, http.MethodGet, "/fragments/results?q=foo", "", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), render.SearchFailed)

	rec = f.do(t, http.MethodGet, "/fragments/books/A1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `id="details"`)
	assert.Contains(t, rec.Body.String(), "Foo")

	rec = f.do(t, http.MethodGet, "/fragments/books/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), render.DetailsFailed)

	rec = f.do(t, http.MethodGet, "/fragments/favorites", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `data-state="empty"`)
	assert.Contains(t, rec.Body.String(), render.EmptyPanel)
}

func TestFavoritesSocket(t *testing.T) {
	f := newFixture(t, Options{})
	srv := httptest.NewServer(f.handler)
	t.Cleanup(srv.Close)

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/favorites", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	read := func() string {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		return string(msg)
	}

	initial := read()
	assert.Contains(t, initial, `data-state="empty"`)
	assert.Equal(t, 1, f.hub.Subscribers(storage.FavoritesKey))

	rec := f.do(t, http.MethodPost, "/api/favorites", `{"id":"A1"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	update := read()
	assert.Contains(t, update, `data-state="populated"`)
	assert.Contains(t, update, "Foo")

	rec = f.do(t, http.MethodDelete, "/api/favorites/A1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, read(), `data-state="empty"`)
}

func TestFavoritesSocketRefusedAfterClose(t *testing.T) {
	f := newFixture(t, Options{})
	srv := httptest.NewServer(f.handler)
	t.Cleanup(srv.Close)

	f.hub.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/favorites", nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Zero(t, f.hub.Subscribers(storage.FavoritesKey))
}

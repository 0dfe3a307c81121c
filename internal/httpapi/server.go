package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"bookshelf/internal/favorites"
	"bookshelf/internal/models"
	"bookshelf/internal/render"
	"bookshelf/internal/service"
	"bookshelf/internal/storage"
)

const (
	requestIDHeader = "X-Request-Id"
	maxBodyBytes    = 64 << 10
)

type ctxKey int

const requestIDKey ctxKey = iota

// Catalog is the part of the catalog client the server needs.
type Catalog interface {
	Search(ctx context.Context, query string) ([]models.BookSummary, error)
	FetchDetails(ctx context.Context, id string) (models.BookDetails, error)
}

type Options struct {
	// BotToken validates Telegram initData. Without it every request uses
	// the shared favorites key.
	BotToken    string
	RequireAuth bool
	Logger      *zap.Logger
}

type Server struct {
	catalog     Catalog
	favorites   *favorites.Registry
	hub         *Hub
	botToken    string
	requireAuth bool
	logger      *zap.Logger
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrader take over the connection.
func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := sr.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	sr.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func New(catalog Catalog, registry *favorites.Registry, hub *Hub, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if hub == nil {
		hub = NewHub(logger)
	}
	return &Server{
		catalog:     catalog,
		favorites:   registry,
		hub:         hub,
		botToken:    opts.BotToken,
		requireAuth: opts.RequireAuth,
		logger:      logger,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/search", s.handleSearch)
	mux.HandleFunc("GET /api/books/{id}", s.handleBook)
	mux.HandleFunc("GET /api/favorites", s.handleListFavorites)
	mux.HandleFunc("POST /api/favorites", s.handleAddFavorite)
	mux.HandleFunc("DELETE /api/favorites/{id}", s.handleRemoveFavorite)
	mux.HandleFunc("GET /fragments/results", s.handleResultsFragment)
	mux.HandleFunc("GET /fragments/books/{id}", s.handleBookFragment)
	mux.HandleFunc("GET /fragments/favorites", s.handleFavoritesFragment)
	mux.HandleFunc("GET /ws/favorites", s.handleFavoritesSocket)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set(requestIDHeader, requestID)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey, requestID))

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		mux.ServeHTTP(rec, r)
		s.logger.Info("http",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// RequestID returns the id assigned to the request carried by ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexPage))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	books, err := s.catalog.Search(r.Context(), query)
	if err != nil {
		writeJSON(w, catalogStatus(err), map[string]string{"error": searchMessage(err)})
		return
	}
	if books == nil {
		books = []models.BookSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": query, "items": books})
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	details, err := s.catalog.FetchDetails(r.Context(), r.PathValue("id"))
	if err != nil {
		writeJSON(w, catalogStatus(err), map[string]string{"error": render.DetailsFailed})
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (s *Server) handleListFavorites(w http.ResponseWriter, r *http.Request) {
	s.withUser(w, r, func(ctx context.Context, key string) {
		writeJSON(w, http.StatusOK, nonNil(s.favorites.For(key).List(ctx)))
	})
}

func (s *Server) handleAddFavorite(w http.ResponseWriter, r *http.Request) {
	s.withUser(w, r, func(ctx context.Context, key string) {
		var body struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
			return
		}
		body.ID = strings.TrimSpace(body.ID)
		if body.ID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "id is required"})
			return
		}

		list, err := favorites.AddFromCatalog(ctx, s.favorites.For(key), s.catalog, body.ID)
		if err != nil {
			s.logger.Warn("add favorite failed",
				zap.String("request_id", RequestID(ctx)), zap.String("key", key), zap.String("id", body.ID), zap.Error(err))
			if service.KindOf(err) != "" {
				writeJSON(w, catalogStatus(err), map[string]string{"error": render.DetailsFailed})
				return
			}
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not save favorites"})
			return
		}
		writeJSON(w, http.StatusOK, nonNil(list))
	})
}

func (s *Server) handleRemoveFavorite(w http.ResponseWriter, r *http.Request) {
	s.withUser(w, r, func(ctx context.Context, key string) {
		list, err := s.favorites.For(key).Remove(ctx, r.PathValue("id"))
		if err != nil {
			s.logger.Warn("remove favorite failed",
				zap.String("request_id", RequestID(ctx)), zap.String("key", key), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not save favorites"})
			return
		}
		writeJSON(w, http.StatusOK, nonNil(list))
	})
}

func (s *Server) handleResultsFragment(w http.ResponseWriter, r *http.Request) {
	books, err := s.catalog.Search(r.Context(), r.URL.Query().Get("q"))
	switch {
	case errors.Is(err, service.ErrEmptyQuery):
		writeHTML(w, http.StatusBadRequest, render.Results(nil))
	case err != nil:
		writeHTML(w, catalogStatus(err), render.SearchError())
	default:
		writeHTML(w, http.StatusOK, render.Results(books))
	}
}

func (s *Server) handleBookFragment(w http.ResponseWriter, r *http.Request) {
	details, err := s.catalog.FetchDetails(r.Context(), r.PathValue("id"))
	if err != nil {
		writeHTML(w, catalogStatus(err), render.DetailsError())
		return
	}
	writeHTML(w, http.StatusOK, render.Details(details))
}

func (s *Server) handleFavoritesFragment(w http.ResponseWriter, r *http.Request) {
	s.withUser(w, r, func(ctx context.Context, key string) {
		writeHTML(w, http.StatusOK, render.Panel(s.favorites.For(key).List(ctx)))
	})
}

func (s *Server) handleFavoritesSocket(w http.ResponseWriter, r *http.Request) {
	s.withUser(w, r, func(_ context.Context, key string) {
		s.hub.Serve(w, r, key, s.favorites.For(key).List)
	})
}

// withUser resolves the favorites key of the caller. Valid initData selects
// the per-user key; no initData selects the shared key unless auth is
// required.
func (s *Server) withUser(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, key string)) {
	ctx := r.Context()
	initData := extractInitData(r)

	if initData == "" || s.botToken == "" {
		if s.requireAuth {
			s.logger.Info("auth: initData missing",
				zap.String("request_id", RequestID(ctx)), zap.String("remote", r.RemoteAddr))
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "initData required"})
			return
		}
		fn(ctx, storage.FavoritesKey)
		return
	}

	user, err := ValidateInitData(initData, s.botToken)
	if err != nil {
		s.logger.Info("auth: initData invalid",
			zap.String("request_id", RequestID(ctx)), zap.Int("len", len(initData)), zap.Error(err))
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid initData"})
		return
	}

	s.logger.Debug("auth: ok", zap.Int64("user_id", user.ID), zap.String("username", user.Username))
	fn(ctx, storage.UserFavoritesKey(user.ID))
}

func catalogStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrEmptyQuery):
		return http.StatusBadRequest
	case service.KindOf(err) == service.KindNotFound:
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func searchMessage(err error) string {
	if errors.Is(err, service.ErrEmptyQuery) {
		return "query is required"
	}
	return render.SearchFailed
}

func nonNil(c models.Collection) models.Collection {
	if c == nil {
		return models.Collection{}
	}
	return c
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeHTML(w http.ResponseWriter, status int, n *html.Node) {
	page, err := render.HTML(n)
	if err != nil {
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(page))
}

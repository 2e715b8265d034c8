// Package boardhttp serves the shared leaderboard over HTTP. Clients
// increment player documents and list a collection; the server never
// decrements or deletes.
package boardhttp

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/rockpaperscissors-desktop/internal/docstore"
	"github.com/MJE43/rockpaperscissors-desktop/internal/ledger"
)

// maxBody bounds increment request bodies.
const maxBody = 4 << 10

// Config for the HTTP server.
type Config struct {
	// Addr to listen on, e.g. ":17890". Port 0 picks a free port.
	Addr string

	// APIKey, when set, must be sent as X-API-Key on every /v1 request.
	APIKey string

	Logger *log.Logger
}

// Server handles leaderboard requests.
type Server struct {
	store      *docstore.Store
	cfg        Config
	logger     *log.Logger
	startTime  time.Time
	httpServer *http.Server
	addr       string
}

// New builds a server over store.
func New(store *docstore.Store, cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":17890"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[BOARD] ", log.LstdFlags)
	}
	return &Server{store: store, cfg: cfg, logger: logger, startTime: time.Now(), addr: cfg.Addr}
}

// Routes sets up the router with middleware.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequest)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)

	r.Route("/v1/projects/{project}/collections/{collection}/documents", func(r chi.Router) {
		r.Use(s.requireAPIKey)
		r.Get("/", s.handleList)
		r.Get("/{name}", s.handleGet)
		r.Post("/{name}/increment", s.handleIncrement)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errObj("NOT_FOUND", "no such route", ""))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errObj("METHOD_NOT_ALLOWED", "method not allowed", ""))
	})
	return r
}

// Start begins listening in a goroutine. It returns when the socket is bound.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.addr = ln.Addr().String()
	s.httpServer = &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      35 * time.Second,
	}
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("serve: %v", err)
		}
	}()
	s.logger.Printf("listening on %s (api key required: %v, db: %s)", s.addr, s.cfg.APIKey != "", s.store.Dialect())
	return nil
}

// Addr is the bound address once Start has returned.
func (s *Server) Addr() string { return s.addr }

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// ========== Handlers ==========

// GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "healthy", http.StatusOK
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Printf("health: database ping failed: %v", err)
		status, code = "unhealthy", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":     status,
		"database":   s.store.Dialect(),
		"uptime":     time.Since(s.startTime).Round(time.Second).String(),
		"request_id": middleware.GetReqID(r.Context()),
	})
}

// GET /v1/projects/{project}/collections/{collection}/documents
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	project, collection := chi.URLParam(r, "project"), chi.URLParam(r, "collection")
	docs, err := s.store.List(r.Context(), project, collection)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

// GET /v1/projects/{project}/collections/{collection}/documents/{name}
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	name, ok := nameParam(w, r)
	if !ok {
		return
	}
	doc, found, err := s.store.Get(r.Context(), chi.URLParam(r, "project"), chi.URLParam(r, "collection"), name)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, errObj("NOT_FOUND", "document not found", "name"))
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

type incrementPayload struct {
	Wins   int `json:"wins"`
	Losses int `json:"losses"`
	Ties   int `json:"ties"`
}

// POST /v1/projects/{project}/collections/{collection}/documents/{name}/increment
func (s *Server) handleIncrement(w http.ResponseWriter, r *http.Request) {
	name, ok := nameParam(w, r)
	if !ok {
		return
	}

	var p incrementPayload
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errObj("VALIDATION_ERROR", "invalid JSON", ""))
		return
	}
	d := ledger.Delta{Wins: p.Wins, Losses: p.Losses, Ties: p.Ties}
	if !d.Valid() {
		writeJSON(w, http.StatusUnprocessableEntity, errObj("VALIDATION_ERROR", "counters must be non-negative", "wins/losses/ties"))
		return
	}

	doc, err := s.store.Increment(r.Context(), chi.URLParam(r, "project"), chi.URLParam(r, "collection"), name, d)
	if errors.Is(err, ledger.ErrInvalidName) {
		writeJSON(w, http.StatusUnprocessableEntity, errObj("VALIDATION_ERROR", "name is required", "name"))
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// ========== Helpers ==========

// nameParam decodes the {name} segment. chi matches on the escaped path
// when one exists, so percent-encoded names arrive still encoded.
func nameParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := chi.URLParam(r, "name")
	name := raw
	if r.URL.RawPath != "" {
		var err error
		if name, err = url.PathUnescape(raw); err != nil {
			writeJSON(w, http.StatusBadRequest, errObj("VALIDATION_ERROR", "malformed name", "name"))
			return "", false
		}
	}
	name, err := ledger.NormalizeName(name)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errObj("VALIDATION_ERROR", "name is required", "name"))
		return "", false
	}
	return name, true
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIKey != "" {
			got := r.Header.Get("X-API-Key")
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.APIKey)) != 1 {
				writeJSON(w, http.StatusUnauthorized, errObj("UNAUTHORIZED", "missing or invalid X-API-Key", ""))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Printf("request %s: %v", middleware.GetReqID(r.Context()), err)
	writeJSON(w, http.StatusInternalServerError, errObj("INTERNAL", "storage error", ""))
}

func (s *Server) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Printf("%s %s %d %dms", r.Method, r.URL.Path, ww.Status(), time.Since(start).Milliseconds())
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func errObj(code, msg, field string) map[string]any {
	e := map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": msg,
		},
	}
	if field != "" {
		e["error"].(map[string]any)["field"] = field
	}
	return e
}

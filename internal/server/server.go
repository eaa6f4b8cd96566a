// Package server exposes the resolution engine over HTTP: a webhook for CRM
// change events, an ad-hoc lookup endpoint and the review queue.
package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/registry-link/internal/crm"
	"github.com/sells-group/registry-link/internal/resolve"
	"github.com/sells-group/registry-link/internal/store"
)

// Resolver is the part of the engine the server drives.
type Resolver interface {
	ResolveBatch(ctx context.Context, reqs []resolve.Request, concurrency int) []resolve.Result
	Lookup(ctx context.Context, q resolve.Query) resolve.Outcome
}

// Options tune request handling.
type Options struct {
	BatchConcurrency int
	MaxBatchSize     int
	AllowedOrigins   []string
}

// Server holds handler dependencies.
type Server struct {
	resolver  Resolver
	store     store.Store
	projector *crm.Projector
	opts      Options
}

// New creates a Server. projector may be nil.
func New(resolver Resolver, st store.Store, projector *crm.Projector, opts Options) *Server {
	if opts.BatchConcurrency <= 0 {
		opts.BatchConcurrency = 5
	}
	if opts.MaxBatchSize <= 0 {
		opts.MaxBatchSize = 500
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &Server{resolver: resolver, store: st, projector: projector, opts: opts}
}

// Routes builds the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	s.Register(r)
	return r
}

// Register mounts the resolution endpoints on the router.
func (s *Server) Register(r chi.Router) {
	r.Post("/webhook/company", s.handleWebhook)
	r.Get("/resolve", s.handleResolve)
	r.Get("/reviews", s.handleListReviews)
	r.Post("/reviews/{id}/link", s.handleLinkReview)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("server: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, errorResponse{Error: code, Description: description})
}

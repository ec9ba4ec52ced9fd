// Package server exposes the segment membership routes over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Sternrassler/cio-segment-proxy/pkg/logging"
	"github.com/Sternrassler/cio-segment-proxy/pkg/metrics"
	"github.com/Sternrassler/cio-segment-proxy/pkg/pagination"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/zerolog"
)

// Aggregator fetches every member of a segment. *pagination.Aggregator implements it.
type Aggregator interface {
	FetchAll(ctx context.Context, segmentID, startCursor string, limit int) ([]json.RawMessage, error)
}

// Pager fetches one page of a segment. *pagination.Pager implements it.
type Pager interface {
	FetchPage(ctx context.Context, req pagination.PageRequest) (*pagination.PageResult, error)
}

// Authenticator gates the segment routes. *auth.APIKey implements it.
type Authenticator interface {
	Middleware(next http.Handler) http.Handler
}

// ReadyFunc reports whether dependencies are reachable.
type ReadyFunc func(ctx context.Context) error

// Options wires the server's collaborators.
type Options struct {
	Aggregator Aggregator
	Pager      Pager
	Auth       Authenticator
	Logger     zerolog.Logger

	// Ready is optional; nil means always ready.
	Ready ReadyFunc
}

// Server is the proxy's HTTP surface.
type Server struct {
	r          *chi.Mux
	aggregator Aggregator
	pager      Pager
	auth       Authenticator
	ready      ReadyFunc
	logger     zerolog.Logger
}

// New creates the server and registers its routes.
func New(opts Options) *Server {
	s := &Server{
		r:          chi.NewRouter(),
		aggregator: opts.Aggregator,
		pager:      opts.Pager,
		auth:       opts.Auth,
		ready:      opts.Ready,
		logger:     opts.Logger,
	}

	s.r.Use(middleware.RequestID)
	s.r.Use(logging.Middleware(s.logger))
	s.r.Use(metrics.Middleware)
	s.r.Use(middleware.Recoverer)

	s.routes()
	return s
}

func (s *Server) routes() {
	s.r.Get("/health", s.health)
	s.r.Get("/ready", s.readiness)
	s.r.Handle("/metrics", metrics.Handler())

	s.r.Group(func(r chi.Router) {
		r.Use(s.auth.Middleware)
		r.Get("/segments/{id}/members", s.getMembers)
		r.Get("/segments/{id}/members/paginated", s.getMembersPaginated)
	})
}

// Handler returns the root handler with response compression.
func (s *Server) Handler() http.Handler {
	return gzhttp.GzipHandler(s.r)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) readiness(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Msg("Readiness check failed")
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

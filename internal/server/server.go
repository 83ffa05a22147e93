// Package server assembles the HTTP surface of livescribe: the streaming
// WebSocket endpoint, service status and configuration discovery, the
// transcript journal lookup, health probes and Prometheus metrics.
package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/MrWong99/livescribe/internal/capability"
	"github.com/MrWong99/livescribe/internal/health"
	"github.com/MrWong99/livescribe/internal/observe"
	"github.com/MrWong99/livescribe/internal/resilience"
	"github.com/MrWong99/livescribe/internal/session"
	"github.com/MrWong99/livescribe/internal/transport"
	"github.com/MrWong99/livescribe/pkg/journal"
)

// Server routes HTTP requests. It implements [http.Handler].
type Server struct {
	router chi.Router

	controller     *session.Controller
	caps           *capability.Set
	defaults       func() session.Config
	journal        journal.Store
	metrics        *observe.Metrics
	metricsHandler http.Handler
	checkers       []health.Checker
	origins        []string
	readLimit      int64
	base           context.Context
	providerStatus func() []resilience.ProviderStatus
	degraded       func() bool
}

// Option configures a [Server].
type Option func(*Server)

// WithDefaults sets the session defaults reported by /config. It should be
// the same function the controller uses.
func WithDefaults(fn func() session.Config) Option {
	return func(s *Server) { s.defaults = fn }
}

// WithJournal enables GET /sessions/{sessionID}/transcripts.
func WithJournal(j journal.Store) Option {
	return func(s *Server) { s.journal = j }
}

// WithMetrics sets the metrics used by the request middleware.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithMetricsHandler mounts h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// WithReadinessChecks adds checks evaluated by /readyz.
func WithReadinessChecks(checks ...health.Checker) Option {
	return func(s *Server) { s.checkers = append(s.checkers, checks...) }
}

// WithAllowedOrigins restricts CORS and WebSocket upgrades to the given
// origins (e.g. "https://app.example.com"). Empty allows any origin.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) { s.origins = origins }
}

// WithReadLimit caps inbound WebSocket messages. Zero keeps the transport
// default.
func WithReadLimit(n int64) Option {
	return func(s *Server) { s.readLimit = n }
}

// WithBaseContext ends every open WebSocket session when ctx is cancelled.
func WithBaseContext(ctx context.Context) Option {
	return func(s *Server) { s.base = ctx }
}

// WithProviderStatus adds the transcription backends' breaker states to
// /health.
func WithProviderStatus(fn func() []resilience.ProviderStatus) Option {
	return func(s *Server) { s.providerStatus = fn }
}

// WithJournalDegraded adds the journal health flag to /health.
func WithJournalDegraded(fn func() bool) Option {
	return func(s *Server) { s.degraded = fn }
}

// New builds the router. ctrl serves /ws and caps backs /health.
func New(ctrl *session.Controller, caps *capability.Set, opts ...Option) *Server {
	s := &Server{
		controller: ctrl,
		caps:       caps,
		defaults:   session.DefaultConfig,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	s.router = s.routes()
	return s
}

// ServeHTTP implements [http.Handler].
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(observe.Recoverer)
	r.Use(observe.Middleware(s.metrics))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins(s.origins),
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))

	wsOpts := []transport.Option{transport.WithOriginPatterns(originPatterns(s.origins)...)}
	if s.readLimit > 0 {
		wsOpts = append(wsOpts, transport.WithReadLimit(s.readLimit))
	}
	if s.base != nil {
		wsOpts = append(wsOpts, transport.WithBaseContext(s.base))
	}
	r.Method(http.MethodGet, "/ws", transport.NewHandler(func(ctx context.Context, conn *transport.Conn) error {
		return s.controller.Run(ctx, conn)
	}, wsOpts...))

	r.Get("/health", s.handleHealth)
	r.Get("/config", s.handleConfig)
	if s.journal != nil {
		r.Get("/sessions/{sessionID}/transcripts", s.handleTranscripts)
	}
	health.New(s.checkers).Register(r)
	if s.metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", s.metricsHandler)
	}
	return r
}

func corsOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

// originPatterns turns configured origins into the host patterns the
// WebSocket handshake matches against.
func originPatterns(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if strings.Contains(o, "://") {
			if u, err := url.Parse(o); err == nil && u.Host != "" {
				o = u.Host
			}
		}
		out = append(out, o)
	}
	return out
}

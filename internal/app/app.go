// Package app wires the livescribe subsystems into a running service.
//
// The App struct owns the full lifecycle: New builds the capabilities, the
// transcript journal and the HTTP surface from a config, Run serves until its
// context is cancelled, and Shutdown releases everything in order.
//
// For testing, inject doubles via functional options (WithJournalStore,
// WithMetrics, etc.). When an option is not provided, New creates the real
// implementation from the config.
package app

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/livescribe/internal/capability"
	"github.com/MrWong99/livescribe/internal/config"
	"github.com/MrWong99/livescribe/internal/health"
	"github.com/MrWong99/livescribe/internal/observe"
	"github.com/MrWong99/livescribe/internal/resilience"
	"github.com/MrWong99/livescribe/internal/server"
	"github.com/MrWong99/livescribe/internal/session"
	"github.com/MrWong99/livescribe/pkg/journal"
	"github.com/MrWong99/livescribe/pkg/journal/postgres"
	"github.com/MrWong99/livescribe/pkg/provider/stt"
	"github.com/MrWong99/livescribe/pkg/provider/vad"
)

// DefaultDrainTimeout bounds how long Run waits for in-flight HTTP requests
// once its context is cancelled.
const DefaultDrainTimeout = 10 * time.Second

// App owns all subsystem lifetimes of a livescribe server.
type App struct {
	cfg *config.Config
	reg *config.Registry

	level    *slog.LevelVar
	defaults atomic.Pointer[session.Config]

	caps     *capability.Set
	fallback atomic.Pointer[resilience.STTFallback]
	store    journal.Store
	guard    *journal.Guard
	checkers []health.Checker

	metrics        *observe.Metrics
	metricsHandler http.Handler

	handler http.Handler
	httpSrv *http.Server
	watcher *config.Watcher

	watchPath string
	watchOpts []config.WatcherOption

	// sessions is the base context of every WebSocket session. Cancelling
	// it closes open connections with status 1001.
	sessions       context.Context
	cancelSessions context.CancelFunc
	drainTimeout   time.Duration

	mu      sync.Mutex
	addr    net.Addr
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithJournalStore injects a transcript store instead of creating one from
// config. The store is still wrapped in a [journal.Guard].
func WithJournalStore(s journal.Store) Option {
	return func(a *App) { a.store = s }
}

// WithLevelVar lets config reloads change the level of the process logger.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithMetrics sets the instruments used by sessions and HTTP middleware.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler mounts h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithConfigWatch polls the config file at path and applies session
// defaults and the log level from every valid edit.
func WithConfigWatch(path string, opts ...config.WatcherOption) Option {
	return func(a *App) {
		a.watchPath = path
		a.watchOpts = opts
	}
}

// WithDrainTimeout overrides [DefaultDrainTimeout].
func WithDrainTimeout(d time.Duration) Option {
	return func(a *App) { a.drainTimeout = d }
}

// New creates an App by wiring all subsystems together. Providers are looked
// up in reg by the names in cfg.Providers but constructed lazily, on the
// first session that needs them.
func New(ctx context.Context, cfg *config.Config, reg *config.Registry, opts ...Option) (*App, error) {
	a := &App{
		cfg:          cfg,
		reg:          reg,
		drainTimeout: DefaultDrainTimeout,
	}
	for _, o := range opts {
		o(a)
	}

	defaults := sessionDefaults(cfg.Session)
	a.defaults.Store(&defaults)
	a.initCapabilities()

	if err := a.initJournal(ctx); err != nil {
		return nil, fmt.Errorf("app: init journal: %w", err)
	}

	if a.watchPath != "" {
		w, err := config.NewWatcher(a.watchPath, a.applyConfig, a.watchOpts...)
		if err != nil {
			a.closeAll()
			return nil, fmt.Errorf("app: init watcher: %w", err)
		}
		a.watcher = w
	}

	a.sessions, a.cancelSessions = context.WithCancel(context.Background())

	ctrl := session.NewController(a.caps,
		session.WithDefaults(a.sessionDefaults),
		session.WithMetrics(a.metrics),
		session.WithJournal(a.guard),
		session.WithTimeout(cfg.Session.TranscribeTimeout),
	)
	a.handler = server.New(ctrl, a.caps,
		server.WithDefaults(a.sessionDefaults),
		server.WithJournal(a.guard),
		server.WithMetrics(a.metrics),
		server.WithMetricsHandler(a.metricsHandler),
		server.WithReadinessChecks(a.checkers...),
		server.WithAllowedOrigins(cfg.Server.AllowedOrigins),
		server.WithReadLimit(cfg.Server.ReadLimitBytes),
		server.WithBaseContext(a.sessions),
		server.WithProviderStatus(a.providerStatus),
		server.WithJournalDegraded(a.guard.IsDegraded),
	)
	a.httpSrv = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn),
	}
	return a, nil
}

// initCapabilities sets up the lazily built transcriber and VAD engine.
func (a *App) initCapabilities() {
	model := a.cfg.Providers.STT.Model
	if model == "" {
		model = a.cfg.Providers.STT.Name
	}
	a.caps = &capability.Set{
		Transcriber: capability.NewLazy("transcriber", a.buildTranscriber),
		Model:       model,
	}
	if a.cfg.Providers.VAD.Name != "" {
		a.caps.VAD = capability.NewLazy("vad", a.buildVAD)
	}
	a.checkers = append(a.checkers, health.Checker{Name: "transcriber", Check: a.transcriberReady})
}

// buildTranscriber creates the primary STT provider and its fallbacks. A
// fallback that cannot be created is skipped; the primary is required.
func (a *App) buildTranscriber(context.Context) (stt.Provider, error) {
	entry := a.cfg.Providers.STT
	primary, err := a.reg.CreateSTT(entry)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", entry.Name, err)
	}
	a.closeLater(primary)

	fb := resilience.NewSTTFallback(primary, entry.Name, resilience.FallbackConfig{})
	for _, fe := range a.cfg.Providers.STTFallbacks {
		p, err := a.reg.CreateSTT(fe)
		if err != nil {
			slog.Warn("skipping stt fallback", "name", fe.Name, "err", err)
			continue
		}
		a.closeLater(p)
		fb.AddFallback(fe.Name, p)
	}
	a.fallback.Store(fb)
	slog.Info("provider created", "kind", "stt", "name", entry.Name, "fallbacks", len(fb.Status())-1)
	return fb, nil
}

func (a *App) buildVAD(context.Context) (vad.Engine, error) {
	entry := a.cfg.Providers.VAD
	e, err := a.reg.CreateVAD(entry)
	if err != nil {
		return nil, fmt.Errorf("create vad provider %q: %w", entry.Name, err)
	}
	a.closeLater(e)
	slog.Info("provider created", "kind", "vad", "name", entry.Name)
	return e, nil
}

// transcriberReady reports ready once the transcriber is built. The first
// probe starts construction in the background so a fresh instance warms up
// before it takes traffic.
func (a *App) transcriberReady(context.Context) error {
	if a.caps.Transcriber.Loaded() {
		return nil
	}
	go func() {
		if _, err := a.caps.Transcriber.Get(context.Background()); err != nil {
			slog.Warn("transcriber warm-up failed", "err", err)
		}
	}()
	return errors.New("transcriber not loaded yet")
}

// initJournal opens the transcript store: the injected one, PostgreSQL when
// a DSN is configured, or an in-memory ring otherwise.
func (a *App) initJournal(ctx context.Context) error {
	if a.store == nil {
		if dsn := a.cfg.Journal.PostgresDSN; dsn != "" {
			pg, err := postgres.NewStore(ctx, dsn)
			if err != nil {
				return err
			}
			a.store = pg
			a.closers = append(a.closers, func() error { pg.Close(); return nil })
			a.checkers = append(a.checkers, health.Checker{Name: "journal", Check: pg.Ping})
			slog.Info("journal connected", "backend", "postgres")
		} else {
			a.store = journal.NewMemoryStore(a.cfg.Journal.MemoryLimit)
			slog.Info("journal ready", "backend", "memory", "limit", a.cfg.Journal.MemoryLimit)
		}
	}
	a.guard = journal.NewGuard(a.store)
	return nil
}

// closeLater registers v for Shutdown if it holds resources.
func (a *App) closeLater(v any) {
	c, ok := v.(io.Closer)
	if !ok {
		return
	}
	a.mu.Lock()
	a.closers = append(a.closers, c.Close)
	a.mu.Unlock()
}

// Handler returns the HTTP handler serving every route.
func (a *App) Handler() http.Handler { return a.handler }

// Addr returns the address Run is listening on, or nil before it listens.
func (a *App) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addr
}

// SessionDefaults returns the defaults new sessions start with.
func (a *App) SessionDefaults() session.Config { return a.sessionDefaults() }

func (a *App) sessionDefaults() session.Config { return *a.defaults.Load() }

// providerStatus reports breaker states once the transcriber exists.
func (a *App) providerStatus() []resilience.ProviderStatus {
	if fb := a.fallback.Load(); fb != nil {
		return fb.Status()
	}
	return nil
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run listens on the configured address and serves until ctx is cancelled or
// the listener fails. On cancellation it ends open sessions, drains HTTP
// requests and returns ctx.Err().
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen: %w", err)
	}
	a.mu.Lock()
	a.addr = ln.Addr()
	a.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})
	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(gctx) })
	}
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-a.sessions.Done():
		}
		a.cancelSessions()
		drainCtx, cancel := context.WithTimeout(context.Background(), a.drainTimeout)
		defer cancel()
		if err := a.httpSrv.Shutdown(drainCtx); err != nil {
			slog.Warn("http drain incomplete", "err", err)
		}
		return nil
	})

	slog.Info("app running", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (a *App) serve(ln net.Listener) error {
	t := a.cfg.Server.TLS
	if t == nil {
		return a.httpSrv.Serve(ln)
	}
	a.httpSrv.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	return a.httpSrv.ServeTLS(ln, t.CertFile, t.KeyFile)
}

// applyConfig is the watcher callback. Session defaults and the log level
// take effect immediately; everything else needs a restart.
func (a *App) applyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.Level())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.SessionChanged {
		defaults := sessionDefaults(new.Session)
		a.defaults.Store(&defaults)
		slog.Info("session defaults updated",
			"language", defaults.Language,
			"silence_threshold", defaults.SilenceThreshold,
			"min_speech_duration", defaults.MinSpeechDuration,
			"vad_threshold", defaults.VADThreshold,
			"vad_filter", defaults.VADFilter,
		)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart to take effect", "sections", d.RestartRequired)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the watcher, ends open sessions and releases providers and
// the journal. It respects the context deadline: if ctx expires before all
// closers finish, remaining closers are skipped and the context error is
// returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		if a.watcher != nil {
			a.watcher.Stop()
		}
		a.cancelSessions()
		if err := a.httpSrv.Shutdown(ctx); err != nil {
			slog.Warn("http shutdown error", "err", err)
		}

		a.mu.Lock()
		closers := a.closers
		a.closers = nil
		a.mu.Unlock()

		slog.Info("shutting down", "closers", len(closers))
		for i, closer := range closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll releases what New opened before it failed.
func (a *App) closeAll() {
	for _, c := range a.closers {
		_ = c()
	}
	a.closers = nil
}

// sessionDefaults overlays the configured session defaults on the built-in
// ones.
func sessionDefaults(sc config.SessionConfig) session.Config {
	d := session.DefaultConfig()
	if sc.Language != "" {
		d.Language = sc.Language
	}
	if sc.SilenceThreshold != nil {
		d.SilenceThreshold = seconds(*sc.SilenceThreshold)
	}
	if sc.MinSpeechDuration != nil {
		d.MinSpeechDuration = seconds(*sc.MinSpeechDuration)
	}
	if sc.VADThreshold != nil {
		d.VADThreshold = *sc.VADThreshold
	}
	if sc.VADFilter != nil {
		d.VADFilter = *sc.VADFilter
	}
	return d
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

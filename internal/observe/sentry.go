package observe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
)

// SentryConfig configures error reporting. An empty DSN disables it.
type SentryConfig struct {
	DSN         string
	Environment string
	Release     string
}

// InitSentry initialises the global Sentry client. The returned flush
// function waits up to two seconds for buffered events and should be
// deferred from main(). With an empty DSN it is a no-op.
func InitSentry(cfg SentryConfig) (flush func(), err error) {
	if cfg.DSN == "" {
		return func() {}, nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     cfg.Release,
	}); err != nil {
		return func() {}, fmt.Errorf("observe: sentry init: %w", err)
	}
	return func() { sentry.Flush(2 * time.Second) }, nil
}

// ReportError sends err to Sentry with the session and trace IDs from ctx and
// the given tags. Does nothing when Sentry is not initialised or err is nil.
// Cancellation errors are never reported.
func ReportError(ctx context.Context, err error, tags map[string]string) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	hub := sentry.CurrentHub()
	if hub.Client() == nil {
		return
	}
	hub = hub.Clone()
	hub.WithScope(func(scope *sentry.Scope) {
		if id := SessionID(ctx); id != "" {
			scope.SetTag("session_id", id)
		}
		if cid := CorrelationID(ctx); cid != "" {
			scope.SetTag("trace_id", cid)
		}
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		hub.CaptureException(err)
	})
}

// Recoverer returns middleware that turns a handler panic into a 500,
// logs it, and reports it to Sentry when initialised.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			Logger(r.Context()).Error("handler panic", "panic", rec, "path", r.URL.Path)
			if hub := sentry.CurrentHub(); hub.Client() != nil {
				hub = hub.Clone()
				hub.Scope().SetRequest(r)
				hub.RecoverWithContext(r.Context(), rec)
			}
			http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		}()
		next.ServeHTTP(w, r)
	})
}

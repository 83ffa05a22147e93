package journal

import (
	"context"
	"log/slog"
	"sync/atomic"
)

var _ Store = (*Guard)(nil)

// Guard wraps a [Store] and makes writes non-fatal. A failing backend is
// logged and marks the guard degraded; the next successful call clears the
// flag.
//
// Reads are passed through unchanged so that HTTP lookups can report the
// failure to their caller.
type Guard struct {
	store    Store
	degraded atomic.Bool
}

// NewGuard returns a Guard around store.
func NewGuard(store Store) *Guard {
	return &Guard{store: store}
}

// Record writes e and always returns nil.
func (g *Guard) Record(ctx context.Context, e Entry) error {
	if err := g.store.Record(ctx, e); err != nil {
		g.degraded.Store(true)
		slog.Warn("journal guard: record failed, dropping entry",
			"session_id", e.SessionID,
			"seq", e.Seq,
			"error", err,
		)
		return nil
	}
	g.degraded.Store(false)
	return nil
}

// List delegates to the wrapped store.
func (g *Guard) List(ctx context.Context, sessionID string) ([]Entry, error) {
	entries, err := g.store.List(ctx, sessionID)
	if err != nil {
		g.degraded.Store(true)
		return nil, err
	}
	g.degraded.Store(false)
	return entries, nil
}

// IsDegraded reports whether the most recent backend call failed.
func (g *Guard) IsDegraded() bool {
	return g.degraded.Load()
}

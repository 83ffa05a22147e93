// Package transport adapts WebSocket connections to the frame-oriented
// interface the session engine reads from and writes to.
package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/livescribe/internal/observe"
)

// DefaultReadLimit caps a single inbound frame. Ten seconds of 16 kHz PCM16
// is 320 KiB before base64, so 1 MiB leaves plenty of headroom.
const DefaultReadLimit = 1 << 20

// Conn is a server-side WebSocket connection carrying JSON text frames.
// Read and Write may be called concurrently with each other but Read must not
// be called concurrently with itself.
type Conn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
}

// Read returns the next text frame. Binary frames are skipped. A normal
// close by the peer is reported as io.EOF.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway, websocket.StatusNoStatusRcvd:
				return nil, io.EOF
			}
			return nil, fmt.Errorf("transport: read: %w", err)
		}
		if typ == websocket.MessageText {
			return data, nil
		}
	}
}

// Write sends data as one text frame.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	if c.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.writeTimeout)
		defer cancel()
	}
	if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("transport: write: %w", err)
	}
	return nil
}

// Close closes the connection with the given status and reason.
func (c *Conn) Close(code websocket.StatusCode, reason string) error {
	return c.ws.Close(code, reason)
}

// RunFunc serves one accepted connection. Returning nil closes the
// connection normally; an error closes it with an internal-error status.
type RunFunc func(ctx context.Context, conn *Conn) error

// Handler upgrades HTTP requests to WebSocket connections and runs a
// RunFunc on each.
type Handler struct {
	run            RunFunc
	originPatterns []string
	readLimit      int64
	writeTimeout   time.Duration
	base           context.Context
}

// Option configures a Handler.
type Option func(*Handler)

// WithOriginPatterns allows cross-origin upgrades from hosts matching any of
// patterns (path.Match syntax, e.g. "*.example.com"). A single "*" allows
// every origin.
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Handler) { h.originPatterns = patterns }
}

// WithReadLimit overrides DefaultReadLimit.
func WithReadLimit(n int64) Option {
	return func(h *Handler) { h.readLimit = n }
}

// WithWriteTimeout bounds every frame write. Zero means no limit.
func WithWriteTimeout(d time.Duration) Option {
	return func(h *Handler) { h.writeTimeout = d }
}

// WithBaseContext ties every connection to ctx. Cancelling it ends all open
// sessions, which http.Server.Shutdown does not do for upgraded connections.
func WithBaseContext(ctx context.Context) Option {
	return func(h *Handler) { h.base = ctx }
}

// NewHandler returns a Handler that calls run for every connection.
func NewHandler(run RunFunc, opts ...Option) *Handler {
	h := &Handler{run: run, readLimit: DefaultReadLimit, writeTimeout: 10 * time.Second}
	for _, o := range opts {
		o(h)
	}
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		// Accept has already written the HTTP error response.
		observe.Logger(r.Context()).Debug("transport: websocket accept failed", "err", err, "remote", r.RemoteAddr)
		return
	}
	ws.SetReadLimit(h.readLimit)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	if h.base != nil {
		stop := context.AfterFunc(h.base, cancel)
		defer stop()
	}

	conn := &Conn{ws: ws, writeTimeout: h.writeTimeout}
	err = h.run(ctx, conn)
	switch {
	case h.base != nil && h.base.Err() != nil:
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
	case err == nil:
		_ = conn.Close(websocket.StatusNormalClosure, "")
	default:
		slog.Warn("transport: session ended with error", "err", err, "remote", r.RemoteAddr)
		_ = conn.Close(websocket.StatusInternalError, "internal error")
	}
}

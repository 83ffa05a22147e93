package transport_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/livescribe/internal/transport"
)

// wsURL converts an httptest server HTTP URL to a WebSocket URL.
func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, srv *httptest.Server, opts *websocket.DialOptions) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL(srv), opts)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

// echoRun echoes text frames until the peer closes and reports the terminal
// read error on done.
func echoRun(done chan<- error) transport.RunFunc {
	return func(ctx context.Context, c *transport.Conn) error {
		for {
			data, err := c.Read(ctx)
			if err != nil {
				done <- err
				if errors.Is(err, io.EOF) {
					return nil
				}
				return err
			}
			if err := c.Write(ctx, data); err != nil {
				done <- err
				return err
			}
		}
	}
}

func TestHandler_EchoAndNormalClose(t *testing.T) {
	done := make(chan error, 1)
	srv := httptest.NewServer(transport.NewHandler(echoRun(done)))
	t.Cleanup(srv.Close)

	conn := dial(t, srv, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	// Binary frames are skipped by the server.
	if err := conn.Write(ctx, websocket.MessageBinary, []byte{1, 2, 3}); err != nil {
		t.Fatalf("write binary: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"commit"}`)); err != nil {
		t.Fatalf("write text: %v", err)
	}
	typ, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if typ != websocket.MessageText || string(data) != `{"type":"commit"}` {
		t.Errorf("echo = %v %q", typ, data)
	}

	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	select {
	case err := <-done:
		if !errors.Is(err, io.EOF) {
			t.Errorf("server read error = %v, want io.EOF", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server did not observe the close")
	}
}

func TestHandler_ReadLimit(t *testing.T) {
	done := make(chan error, 1)
	srv := httptest.NewServer(transport.NewHandler(echoRun(done), transport.WithReadLimit(64)))
	t.Cleanup(srv.Close)

	conn := dial(t, srv, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = conn.Write(ctx, websocket.MessageText, []byte(strings.Repeat("a", 1024)))

	select {
	case err := <-done:
		if err == nil || errors.Is(err, io.EOF) {
			t.Errorf("server read error = %v, want a read limit failure", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("oversized frame was not rejected")
	}
}

func TestHandler_RejectsForeignOrigin(t *testing.T) {
	srv := httptest.NewServer(transport.NewHandler(func(context.Context, *transport.Conn) error { return nil },
		transport.WithOriginPatterns("app.example.com"),
	))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, wsURL(srv), &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"https://evil.example.org"}},
	})
	if err == nil {
		t.Fatal("expected handshake to fail for a foreign origin")
	}
	if resp != nil && resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
}

func TestHandler_BaseContextCancelsSessions(t *testing.T) {
	base, cancelBase := context.WithCancel(context.Background())
	started := make(chan struct{})
	srv := httptest.NewServer(transport.NewHandler(func(ctx context.Context, _ *transport.Conn) error {
		close(started)
		<-ctx.Done()
		return nil
	}, transport.WithBaseContext(base)))
	t.Cleanup(srv.Close)

	conn := dial(t, srv, nil)
	<-started
	cancelBase()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	if got := websocket.CloseStatus(err); got != websocket.StatusGoingAway {
		t.Errorf("close status = %v (err %v), want StatusGoingAway", got, err)
	}
}

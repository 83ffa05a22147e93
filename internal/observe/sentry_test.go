package observe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestInitSentry_EmptyDSN(t *testing.T) {
	flush, err := InitSentry(SentryConfig{})
	if err != nil {
		t.Fatalf("InitSentry: %v", err)
	}
	flush()
}

func TestInitSentry_InvalidDSN(t *testing.T) {
	if _, err := InitSentry(SentryConfig{DSN: "not a dsn"}); err == nil {
		t.Fatal("expected error for malformed DSN")
	}
}

func TestReportError_NoClient(t *testing.T) {
	// Without an initialised client this must be a silent no-op.
	ReportError(WithSessionID(context.Background(), "s1"), errors.New("boom"), map[string]string{"capability": "stt"})
	ReportError(context.Background(), nil, nil)
}

func TestRecoverer(t *testing.T) {
	h := Recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/config", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestRecoverer_PassThrough(t *testing.T) {
	h := Recoverer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want 418", rec.Code)
	}
}

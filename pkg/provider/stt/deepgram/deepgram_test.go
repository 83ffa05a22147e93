package deepgram

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/MrWong99/livescribe/pkg/provider/stt"
)

// ---- URL / query-param tests ----

func TestBuildURL_Defaults(t *testing.T) {
	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.Request{Language: "en"})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	q := u.Query()

	assertEqual(t, "host", "api.deepgram.com", u.Host)
	assertEqual(t, "path", "/v1/listen", u.Path)
	assertEqual(t, "model", "nova-3", q.Get("model"))
	assertEqual(t, "language", "en", q.Get("language"))
	assertEqual(t, "punctuate", "true", q.Get("punctuate"))
	assertEqual(t, "detect_language", "", q.Get("detect_language"))
}

func TestBuildURL_AutoDetect(t *testing.T) {
	p, _ := New("key", WithModel("base"))

	rawURL, err := p.buildURL(stt.Request{})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, _ := url.Parse(rawURL)
	q := u.Query()

	assertEqual(t, "model", "base", q.Get("model"))
	assertEqual(t, "language", "", q.Get("language"))
	assertEqual(t, "detect_language", "true", q.Get("detect_language"))
}

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

// ---- response handling ----

func TestTranscribe_ParsesResponse(t *testing.T) {
	var gotAuth, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		_, _ = io.Copy(io.Discard, r.Body)
		_, _ = io.WriteString(w, `{
			"results": {"channels": [{
				"detected_language": "de",
				"alternatives": [{
					"transcript": "guten morgen",
					"confidence": 0.98,
					"words": [
						{"word": "guten", "punctuated_word": "Guten", "start": 0.1, "end": 0.4, "confidence": 0.99},
						{"word": "morgen", "punctuated_word": "Morgen.", "start": 0.45, "end": 0.9, "confidence": 0.97}
					]
				}]
			}]}
		}`)
	}))
	defer srv.Close()

	p, _ := New("secret", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	got, err := p.Transcribe(context.Background(), stt.Request{Samples: make([]float32, 1600), SampleRate: 16000})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	assertEqual(t, "authorization", "Token secret", gotAuth)
	assertEqual(t, "content-type", "audio/wav", gotType)
	assertEqual(t, "text", "guten morgen", got.Text)
	assertEqual(t, "language", "de", got.Language)
	if len(got.Words) != 2 {
		t.Fatalf("len(Words) = %d, want 2", len(got.Words))
	}
	assertEqual(t, "word", "Morgen.", got.Words[1].Text)
	if got.Words[1].End != 900*time.Millisecond {
		t.Errorf("Words[1].End = %v, want 900ms", got.Words[1].End)
	}
}

func TestTranscribe_EmptyResults_KeepsRequestedLanguage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"results":{"channels":[]}}`)
	}))
	defer srv.Close()

	p, _ := New("k", WithBaseURL(srv.URL))
	got, err := p.Transcribe(context.Background(), stt.Request{Samples: make([]float32, 160), Language: "fr"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	assertEqual(t, "text", "", got.Text)
	assertEqual(t, "language", "fr", got.Language)
}

func TestTranscribe_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"err_msg":"invalid credentials"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	p, _ := New("k", WithBaseURL(srv.URL))
	if _, err := p.Transcribe(context.Background(), stt.Request{Samples: make([]float32, 160)}); err == nil {
		t.Fatal("expected error for HTTP 401")
	}
}

// ---- helpers ----

func assertEqual(t *testing.T, field, want, got string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: want %q, got %q", field, want, got)
	}
}

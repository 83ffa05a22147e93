package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MrWong99/livescribe/internal/health"
	"github.com/MrWong99/livescribe/internal/observe"
	"github.com/MrWong99/livescribe/internal/protocol"
	"github.com/MrWong99/livescribe/internal/resilience"
	"github.com/MrWong99/livescribe/internal/session"
	"github.com/MrWong99/livescribe/pkg/journal"
)

// ModelInfo describes a selectable whisper model size.
type ModelInfo struct {
	Value       string `json:"value"`
	Name        string `json:"name"`
	Speed       string `json:"speed"`
	Quality     string `json:"quality"`
	Recommended bool   `json:"recommended,omitempty"`
}

// LanguageInfo is a language a client may request.
type LanguageInfo struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Models lists the whisper model sizes offered to clients.
var Models = []ModelInfo{
	{Value: "tiny", Name: "Tiny (~75MB)", Speed: "fastest", Quality: "low"},
	{Value: "base", Name: "Base (~150MB)", Speed: "fast", Quality: "medium"},
	{Value: "small", Name: "Small (~500MB)", Speed: "balanced", Quality: "good", Recommended: true},
	{Value: "medium", Name: "Medium (~1.5GB)", Speed: "slow", Quality: "high"},
	{Value: "large-v3", Name: "Large-v3 (~3GB)", Speed: "slowest", Quality: "highest"},
}

// Languages lists the languages offered to clients, auto-detection first.
var Languages = []LanguageInfo{
	{Code: session.LanguageAuto, Name: "Auto-detect"},
	{Code: "tr", Name: "Türkçe"},
	{Code: "en", Name: "English"},
	{Code: "de", Name: "Deutsch"},
	{Code: "fr", Name: "Français"},
	{Code: "es", Name: "Español"},
	{Code: "pt", Name: "Português"},
	{Code: "it", Name: "Italiano"},
	{Code: "ar", Name: "العربية"},
	{Code: "zh", Name: "中文"},
	{Code: "ja", Name: "日本語"},
}

// chunkLength is the fallback flush duration advertised to clients.
const chunkLength = 3

type healthResponse struct {
	Status          string                      `json:"status"`
	Model           string                      `json:"model"`
	ModelLoaded     bool                        `json:"model_loaded"`
	VADLoaded       bool                        `json:"vad_loaded"`
	Providers       []resilience.ProviderStatus `json:"providers,omitempty"`
	JournalDegraded *bool                       `json:"journal_degraded,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	res := healthResponse{
		Status:      "ok",
		Model:       s.caps.Model,
		ModelLoaded: s.caps.Transcriber != nil && s.caps.Transcriber.Loaded(),
		VADLoaded:   s.caps.VADLoaded(),
	}
	if s.providerStatus != nil {
		res.Providers = s.providerStatus()
	}
	if s.degraded != nil {
		d := s.degraded()
		res.JournalDegraded = &d
	}
	health.WriteJSON(w, http.StatusOK, res)
}

type defaultConfig struct {
	ChunkLengthS int  `json:"chunk_length_s"`
	VADFilter    bool `json:"vad_filter"`
	SampleRate   int  `json:"sample_rate"`
}

type configResponse struct {
	Models        []ModelInfo            `json:"models"`
	Languages     []LanguageInfo         `json:"languages"`
	DefaultConfig defaultConfig          `json:"default_config"`
	Session       protocol.SessionConfig `json:"session"`
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	cfg := s.defaults()
	health.WriteJSON(w, http.StatusOK, configResponse{
		Models:    Models,
		Languages: Languages,
		DefaultConfig: defaultConfig{
			ChunkLengthS: chunkLength,
			VADFilter:    cfg.VADFilter,
			SampleRate:   session.DefaultSampleRate,
		},
		Session: cfg.View(),
	})
}

type transcriptView struct {
	Seq            int            `json:"seq"`
	Text           string         `json:"text"`
	Language       string         `json:"language"`
	LatencyMS      int64          `json:"latency_ms"`
	BufferDuration float64        `json:"buffer_duration"`
	Words          []journal.Word `json:"words"`
	CreatedAt      time.Time      `json:"created_at"`
}

type transcriptsResponse struct {
	SessionID   string           `json:"session_id"`
	Transcripts []transcriptView `json:"transcripts"`
}

func (s *Server) handleTranscripts(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	entries, err := s.journal.List(r.Context(), id)
	if err != nil {
		observe.Logger(r.Context()).Warn("server: journal lookup failed", "session_id", id, "err", err)
		health.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "journal unavailable"})
		return
	}

	res := transcriptsResponse{SessionID: id, Transcripts: make([]transcriptView, len(entries))}
	for i, e := range entries {
		words := e.Words
		if words == nil {
			words = []journal.Word{}
		}
		res.Transcripts[i] = transcriptView{
			Seq:            e.Seq,
			Text:           e.Text,
			Language:       e.Language,
			LatencyMS:      e.LatencyMS,
			BufferDuration: protocol.Round2(e.BufferDuration.Seconds()),
			Words:          words,
			CreatedAt:      e.CreatedAt,
		}
	}
	health.WriteJSON(w, http.StatusOK, res)
}

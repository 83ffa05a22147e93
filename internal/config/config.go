// Package config provides the configuration schema, loader, watcher and
// provider registry for the livescribe server.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity for the server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level returns the slog level for l. Unknown values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Session   SessionConfig   `yaml:"session"`
	Journal   JournalConfig   `yaml:"journal"`
	Observe   ObserveConfig   `yaml:"observe"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8000").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`

	// AllowedOrigins lists the origins accepted by CORS and by the WebSocket
	// origin check. Empty allows any origin.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// ReadLimitBytes caps a single inbound WebSocket message.
	// Zero selects the transport default.
	ReadLimitBytes int64 `yaml:"read_limit_bytes"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig selects the transcription and voice-activity backends.
type ProvidersConfig struct {
	// STT is the primary transcription backend. Required.
	STT ProviderEntry `yaml:"stt"`

	// STTFallbacks are tried in order when the primary fails or its circuit
	// breaker is open.
	STTFallbacks []ProviderEntry `yaml:"stt_fallbacks"`

	// VAD is the voice activity detector. Leave the name empty to run every
	// session without VAD.
	VAD ProviderEntry `yaml:"vad"`
}

// ProviderEntry is the common configuration block shared by all provider types.
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "whisper", "openai").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint. For the whisper
	// HTTP backend this is the whisper.cpp server URL.
	BaseURL string `yaml:"base_url"`

	// Model selects a model within the provider (e.g., "whisper-1", "nova-2")
	// or, for whisper-native, the path to a GGML model file.
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above.
	Options map[string]any `yaml:"options"`
}

// SessionConfig holds the defaults every new connection starts with. Unset
// fields keep the built-in defaults.
type SessionConfig struct {
	// Language is an ISO 639-1 code or "auto".
	Language string `yaml:"language"`

	// SilenceThreshold is in seconds.
	SilenceThreshold *float64 `yaml:"silence_threshold"`

	// MinSpeechDuration is in seconds.
	MinSpeechDuration *float64 `yaml:"min_speech_duration"`

	VADThreshold *float64 `yaml:"vad_threshold"`
	VADFilter    *bool    `yaml:"vad_filter"`

	// TranscribeTimeout bounds a single transcription call. Zero means no limit.
	TranscribeTimeout time.Duration `yaml:"transcribe_timeout"`
}

// JournalConfig configures the transcript journal.
type JournalConfig struct {
	// PostgresDSN selects the PostgreSQL journal. When empty an in-memory
	// journal is used.
	PostgresDSN string `yaml:"postgres_dsn"`

	// MemoryLimit caps the entries kept per session by the in-memory journal.
	MemoryLimit int `yaml:"memory_limit"`
}

// ObserveConfig configures error reporting and telemetry identity.
type ObserveConfig struct {
	// SentryDSN enables Sentry error reporting when set.
	SentryDSN string `yaml:"sentry_dsn"`

	// Environment is reported to Sentry.
	Environment string `yaml:"environment"`

	// ServiceName is the OpenTelemetry service.name. Defaults to "livescribe".
	ServiceName string `yaml:"service_name"`
}

// optionString returns opts[key] as a string, or "" when missing or not a string.
func optionString(opts map[string]any, key string) string {
	if v, ok := opts[key].(string); ok {
		return v
	}
	return ""
}

// OptionString returns the string option key of e, or def when unset.
func (e ProviderEntry) OptionString(key, def string) string {
	if v := optionString(e.Options, key); v != "" {
		return v
	}
	return def
}

// OptionFloat returns the numeric option key of e, or def when unset or not
// a number. YAML integers are accepted.
func (e ProviderEntry) OptionFloat(key string, def float64) float64 {
	switch v := e.Options[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return def
}

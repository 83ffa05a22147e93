package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [LoadFromReader] to fields left empty.
const (
	DefaultListenAddr  = ":8000"
	DefaultServiceName = "livescribe"
	DefaultMemoryLimit = 1000
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"whisper", "whisper-native", "openai", "deepgram", "mock"},
	"vad": {"energy", "mock"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills in defaults and
// validates the result. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills the zero-valued server, journal and observe fields of
// cfg. Session fields are left alone; unset ones keep the session package
// defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Journal.MemoryLimit == 0 {
		cfg.Journal.MemoryLimit = DefaultMemoryLimit
	}
	if cfg.Observe.ServiceName == "" {
		cfg.Observe.ServiceName = DefaultServiceName
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}
	if cfg.Server.ReadLimitBytes < 0 {
		errs = append(errs, fmt.Errorf("server.read_limit_bytes %d must not be negative", cfg.Server.ReadLimitBytes))
	}
	for i, origin := range cfg.Server.AllowedOrigins {
		if strings.TrimSpace(origin) == "" {
			errs = append(errs, fmt.Errorf("server.allowed_origins[%d] is empty", i))
		}
	}

	// Providers
	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt.name is required"))
	}
	validateProviderName("stt", cfg.Providers.STT.Name)
	for i, fb := range cfg.Providers.STTFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.stt_fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName("stt", fb.Name)
	}
	validateProviderName("vad", cfg.Providers.VAD.Name)
	if cfg.Providers.VAD.Name == "" {
		slog.Warn("providers.vad is not configured; sessions will flush on fixed-duration fallback only")
	}

	// Session defaults
	s := cfg.Session
	if s.Language != "" && strings.TrimSpace(s.Language) == "" {
		errs = append(errs, errors.New("session.language must not be blank"))
	}
	if err := validateSeconds("session.silence_threshold", s.SilenceThreshold); err != nil {
		errs = append(errs, err)
	}
	if err := validateSeconds("session.min_speech_duration", s.MinSpeechDuration); err != nil {
		errs = append(errs, err)
	}
	if s.VADThreshold != nil && (*s.VADThreshold < 0 || *s.VADThreshold > 1) {
		errs = append(errs, fmt.Errorf("session.vad_threshold %.2f is out of range [0, 1]", *s.VADThreshold))
	}
	if s.TranscribeTimeout < 0 {
		errs = append(errs, fmt.Errorf("session.transcribe_timeout %s must not be negative", s.TranscribeTimeout))
	}

	// Journal
	if cfg.Journal.MemoryLimit < 0 {
		errs = append(errs, fmt.Errorf("journal.memory_limit %d must not be negative", cfg.Journal.MemoryLimit))
	}
	if cfg.Journal.PostgresDSN == "" {
		slog.Debug("journal.postgres_dsn is empty; transcripts are kept in memory only")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

// maxSessionSeconds bounds the session duration defaults.
const maxSessionSeconds = 3600

func validateSeconds(field string, v *float64) error {
	switch {
	case v == nil:
		return nil
	case math.IsNaN(*v) || *v < 0:
		return fmt.Errorf("%s %.2f must not be negative", field, *v)
	case *v > maxSessionSeconds:
		return fmt.Errorf("%s %g must be at most %d seconds", field, *v, maxSessionSeconds)
	}
	return nil
}

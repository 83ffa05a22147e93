// Command livescribe is the entry point for the livescribe streaming
// transcription server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/MrWong99/livescribe/internal/app"
	"github.com/MrWong99/livescribe/internal/config"
	"github.com/MrWong99/livescribe/internal/observe"
	"github.com/MrWong99/livescribe/pkg/provider/stt"
	"github.com/MrWong99/livescribe/pkg/provider/stt/deepgram"
	sttmock "github.com/MrWong99/livescribe/pkg/provider/stt/mock"
	"github.com/MrWong99/livescribe/pkg/provider/stt/openai"
	"github.com/MrWong99/livescribe/pkg/provider/stt/whisper"
	"github.com/MrWong99/livescribe/pkg/provider/vad"
	"github.com/MrWong99/livescribe/pkg/provider/vad/energy"
	vadmock "github.com/MrWong99/livescribe/pkg/provider/vad/mock"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	watch := flag.Bool("watch", true, "reload session defaults and log level when the config file changes")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "livescribe: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "livescribe: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Level())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("livescribe starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Observe.ServiceName,
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	flush, err := observe.InitSentry(observe.SentryConfig{
		DSN:         cfg.Observe.SentryDSN,
		Environment: cfg.Observe.Environment,
		Release:     version,
	})
	if err != nil {
		// Error reporting is optional; keep serving without it.
		slog.Warn("sentry disabled", "err", err)
	}
	defer flush()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	opts := []app.Option{
		app.WithLevelVar(level),
		app.WithMetrics(metrics),
		app.WithMetricsHandler(tel.MetricsHandler),
	}
	if *watch {
		opts = append(opts, app.WithConfigWatch(*configPath))
	}
	application, err := app.New(ctx, cfg, reg, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		opts := []whisper.Option{
			whisper.WithTrimThreshold(entry.OptionFloat("trim_threshold", 0.005)),
		}
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.OptionString("model_path", entry.Model)
		opts := []whisper.NativeOption{
			whisper.WithNativeTrimThreshold(entry.OptionFloat("trim_threshold", 0.005)),
		}
		if threads := entry.OptionFloat("threads", 0); threads > 0 {
			opts = append(opts, whisper.WithNativeThreads(uint(threads)))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if timeout := entry.OptionFloat("timeout_seconds", 0); timeout > 0 {
			opts = append(opts, openai.WithTimeout(time.Duration(timeout*float64(time.Second))))
		}
		if retries := entry.OptionFloat("max_retries", -1); retries >= 0 {
			opts = append(opts, openai.WithMaxRetries(int(retries)))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		return deepgram.New(entry.APIKey,
			deepgram.WithModel(entry.Model),
			deepgram.WithBaseURL(entry.BaseURL),
		)
	})

	// mock answers every utterance with a fixed text; useful for exercising
	// clients without a model.
	reg.RegisterSTT("mock", func(entry config.ProviderEntry) (stt.Provider, error) {
		return &sttmock.Provider{Result: stt.Transcript{
			Text:     entry.OptionString("text", ""),
			Language: entry.OptionString("language", ""),
		}}, nil
	})

	// ── VAD ───────────────────────────────────────────────────────────────────

	reg.RegisterVAD("energy", func(entry config.ProviderEntry) (vad.Engine, error) {
		return energy.New(
			energy.WithMidpointDB(entry.OptionFloat("midpoint_db", -40)),
			energy.WithSteepness(entry.OptionFloat("steepness", 0.5)),
		), nil
	})

	reg.RegisterVAD("mock", func(config.ProviderEntry) (vad.Engine, error) {
		return &vadmock.Engine{}, nil
	})

	for _, name := range reg.STTNames() {
		slog.Debug("registered provider", "kind", "stt", "name", name)
	}
	for _, name := range reg.VADNames() {
		slog.Debug("registered provider", "kind", "vad", "name", name)
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║      livescribe startup summary       ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("STT", providerValue(cfg.Providers.STT))
	for _, fb := range cfg.Providers.STTFallbacks {
		printRow("STT fallback", providerValue(fb))
	}
	printRow("VAD", providerValue(cfg.Providers.VAD))
	journal := "memory"
	if cfg.Journal.PostgresDSN != "" {
		journal = "postgres"
	}
	printRow("Journal", journal)
	printRow("Language", sessionLanguage(cfg))
	printRow("TLS", onOff(cfg.Server.TLS != nil))
	printRow("Sentry", onOff(cfg.Observe.SentryDSN != ""))
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func providerValue(e config.ProviderEntry) string {
	switch {
	case e.Name == "":
		return "(not configured)"
	case e.Model != "":
		return e.Name + " / " + e.Model
	default:
		return e.Name
	}
}

func sessionLanguage(cfg *config.Config) string {
	if cfg.Session.Language == "" {
		return "(default)"
	}
	return cfg.Session.Language
}

func onOff(b bool) string {
	if b {
		return "enabled"
	}
	return "(disabled)"
}

func printRow(kind, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

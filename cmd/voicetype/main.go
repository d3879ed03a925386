package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rkmax/voicetype/internal/audio"
	"github.com/rkmax/voicetype/internal/capture"
	"github.com/rkmax/voicetype/internal/config"
	"github.com/rkmax/voicetype/internal/engine"
	"github.com/rkmax/voicetype/internal/inject"
	"github.com/rkmax/voicetype/internal/metrics"
	"github.com/rkmax/voicetype/internal/pipeline"
	"github.com/rkmax/voicetype/internal/server"
)

const (
	serviceName    = "voicetype"
	serviceVersion = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file")
	device := flag.String("device", "", "Input device (index or name substring, empty for default)")
	language := flag.String("language", "", "Language hint for the speech engine")
	chunkSeconds := flag.Float64("chunk-seconds", 0, "Window duration in seconds (overrides config)")
	rmsThreshold := flag.Float64("rms-threshold", -1, "Silence gate RMS threshold (overrides config)")
	minTextLen := flag.Int("min-text-len", -1, "Minimum transcript length in characters (overrides config)")
	engineBackend := flag.String("engine", "", "Speech engine backend: server or openai (overrides config)")
	listDevices := flag.Bool("list-devices", false, "List input devices and exit")
	flag.Parse()

	if *listDevices {
		if err := printDevices(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to list devices: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Load configuration
	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// Apply flag overrides
	if *device != "" {
		cfg.Capture.Device = *device
	}
	if *language != "" {
		cfg.Text.Language = *language
	}
	if *chunkSeconds > 0 {
		cfg.Audio.ChunkSeconds = *chunkSeconds
	}
	if *rmsThreshold >= 0 {
		cfg.Gate.RMSThreshold = *rmsThreshold
	}
	if *minTextLen >= 0 {
		cfg.Text.MinTextLen = *minTextLen
	}
	if *engineBackend != "" {
		cfg.Engine.Backend = *engineBackend
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
	)

	logger.Info("Configuration loaded",
		slog.String("device", cfg.Capture.Device),
		slog.Float64("chunk_seconds", cfg.Audio.ChunkSeconds),
		slog.Float64("rms_threshold", cfg.Gate.RMSThreshold),
		slog.Int("min_text_len", cfg.Text.MinTextLen),
		slog.String("engine_backend", cfg.Engine.Backend),
		slog.String("inject_backend", cfg.Inject.Backend),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()

	// Select the speech engine; falls back once at startup if the preferred
	// backend is unreachable.
	speechEngine, err := engine.Select(ctx, engine.Config{
		Backend:  cfg.Engine.Backend,
		Endpoint: cfg.Engine.Endpoint,
		APIKey:   cfg.Engine.APIKey,
		Model:    cfg.Engine.Model,
		Timeout:  cfg.Engine.GetTimeoutDuration(),
		Fallback: cfg.Engine.Fallback,
	}, logger)
	if err != nil {
		logger.Error("Failed to initialize speech engine", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer speechEngine.Close()
	logger.Info("Speech engine ready", slog.String("backend", speechEngine.Name()))

	// Initialize injection sink; a missing typing tool is fatal before
	// capture starts.
	sink, err := inject.New(inject.Config{
		Backend: cfg.Inject.Backend,
		Command: cfg.Inject.Command,
		Args:    cfg.Inject.Args,
	})
	if err != nil {
		logger.Error("Failed to initialize injection sink", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Injection sink ready", slog.String("backend", sink.Name()))

	// Optional window dumps for gate tuning
	var dumper *audio.Dumper
	if cfg.Audio.DumpDir != "" {
		dumper, err = audio.NewDumper(cfg.Audio.DumpDir)
		if err != nil {
			logger.Error("Failed to initialize window dumper", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("Window dumps enabled", slog.String("dir", cfg.Audio.DumpDir))
	}

	// Open the microphone last so every other component is known-good
	// before capture starts.
	source, err := capture.NewSource(capture.Config{
		Device:     cfg.Capture.Device,
		SampleRate: config.SampleRate,
		FrameSize:  cfg.Capture.FrameSize,
	})
	if err != nil {
		logger.Error("Failed to open capture device", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer source.Close()
	logger.Info("Capture device opened", slog.String("device", source.Device()))

	p, err := pipeline.New(pipeline.Config{
		SampleRate:    config.SampleRate,
		ChunkSeconds:  cfg.Audio.ChunkSeconds,
		RMSThreshold:  cfg.Gate.RMSThreshold,
		MinTextLen:    cfg.Text.MinTextLen,
		Language:      cfg.Text.Language,
		DrainTimeout:  cfg.Text.GetDrainTimeoutDuration(),
		EngineTimeout: cfg.Engine.GetTimeoutDuration(),
	}, pipeline.Deps{
		Source:  source,
		Engine:  speechEngine,
		Sink:    sink,
		Dumper:  dumper,
		Logger:  logger,
		Metrics: appMetrics,
	})
	if err != nil {
		logger.Error("Failed to create pipeline", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize status server (if enabled)
	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, p, appMetrics)
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start status server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("Listening, speak to type...")

	runErr := p.Run(ctx)

	// Stop status server
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping status server", slog.String("error", err.Error()))
		}
	}

	// Get final statistics
	stats := p.GetStats()
	logger.Info("Final pipeline statistics",
		slog.Uint64("windows_processed", stats.Gate.TotalWindows),
		slog.Uint64("windows_gated", stats.WindowsGated),
		slog.Uint64("engine_failures", stats.EngineFailures),
		slog.Uint64("fragments_typed", stats.FragmentsTyped),
		slog.Uint64("inject_failures", stats.InjectFailures),
	)

	if runErr != nil {
		logger.Error("Pipeline exited with error", slog.String("error", runErr.Error()))
		os.Exit(1)
	}

	logger.Info("Service stopped")
}

// printDevices lists capture devices on stdout.
func printDevices() error {
	devices, err := capture.ListDevices()
	if err != nil {
		return err
	}

	if len(devices) == 0 {
		fmt.Println("No input devices found")
		return nil
	}

	for _, d := range devices {
		marker := " "
		if d.IsDefault {
			marker = "*"
		}
		fmt.Printf("%s %3d  %s (%d ch, %.0f Hz)\n",
			marker, d.Index, d.Name, d.MaxInputChannels, d.DefaultSampleRate)
	}
	return nil
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	// Log to stderr by default: stdout stays clean for -list-devices and
	// the injected text goes to the focused window, not the terminal.
	var output *os.File
	switch cfg.Output {
	case "stdout":
		output = os.Stdout
	default:
		output = os.Stderr
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}

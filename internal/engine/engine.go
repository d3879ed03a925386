package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rkmax/voicetype/internal/audio"
)

// Backend identifiers accepted by New and Select.
const (
	BackendServer = "server"
	BackendOpenAI = "openai"
)

// Engine converts one audio window into text. Implementations perform a
// single blocking call per window; failures are per-window and must never be
// treated as fatal by the caller.
type Engine interface {
	// Transcribe converts the window's samples into text. The language hint
	// may be empty.
	Transcribe(ctx context.Context, w *audio.Window, language string) (string, error)
	// Name returns the backend name for logging.
	Name() string
	// Close releases backend resources.
	Close() error
}

// Config contains speech engine configuration.
type Config struct {
	Backend  string
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
	Fallback string
}

// New creates the engine for the configured backend.
func New(cfg Config) (Engine, error) {
	switch cfg.Backend {
	case BackendServer:
		return NewServerEngine(cfg)
	case BackendOpenAI:
		return NewOpenAIEngine(cfg)
	default:
		return nil, fmt.Errorf("unknown engine backend %q (supported: %s, %s)",
			cfg.Backend, BackendServer, BackendOpenAI)
	}
}

// Select builds the preferred backend and probes it once. If the probe fails
// and a fallback backend is configured, the fallback is built instead. This
// is a one-time selection step; per-window failures never trigger it again.
func Select(ctx context.Context, cfg Config, logger *slog.Logger) (Engine, error) {
	preferred, err := New(cfg)
	if err == nil {
		if perr := probe(ctx, preferred); perr == nil {
			return preferred, nil
		} else {
			err = perr
			_ = preferred.Close()
		}
	}

	if cfg.Fallback == "" || cfg.Fallback == cfg.Backend {
		return nil, fmt.Errorf("engine backend %q unavailable: %w", cfg.Backend, err)
	}

	logger.Warn("Preferred engine backend unavailable, falling back",
		slog.String("preferred", cfg.Backend),
		slog.String("fallback", cfg.Fallback),
		slog.String("error", err.Error()),
	)

	fbCfg := cfg
	fbCfg.Backend = cfg.Fallback
	fallback, err := New(fbCfg)
	if err != nil {
		return nil, fmt.Errorf("fallback engine backend %q: %w", cfg.Fallback, err)
	}

	return fallback, nil
}

// probe checks that a backend is reachable when it supports health checks.
func probe(ctx context.Context, e Engine) error {
	p, ok := e.(interface{ Ping(context.Context) error })
	if !ok {
		return nil
	}
	return p.Ping(ctx)
}

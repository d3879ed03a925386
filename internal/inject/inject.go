package inject

import (
	"context"
	"fmt"
)

// Backend identifiers accepted by New.
const (
	BackendCommand = "command"
	BackendPaste   = "paste"
)

// Sink accepts one UTF-8 string per call and injects it into the focused
// surface. Calls are synchronous; the sink performs no deduplication.
type Sink interface {
	// Type injects one text fragment.
	Type(ctx context.Context, text string) error
	// Name returns the backend name for logging.
	Name() string
}

// Config contains injection sink configuration.
type Config struct {
	Backend string
	Command string
	Args    []string
}

// New creates the sink for the configured backend.
func New(cfg Config) (Sink, error) {
	switch cfg.Backend {
	case BackendCommand, "":
		return NewCommandSink(cfg.Command, cfg.Args)
	case BackendPaste:
		return NewPasteSink()
	default:
		return nil, fmt.Errorf("unknown inject backend %q (supported: %s, %s)",
			cfg.Backend, BackendCommand, BackendPaste)
	}
}

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rkmax/voicetype/internal/engine"
	"github.com/rkmax/voicetype/internal/inject"
)

// SampleRate is the capture rate in Hz. Speech models expect 16 kHz mono
// PCM-16, so the rate is fixed rather than configurable.
const SampleRate = 16000

// Config represents the complete application configuration
type Config struct {
	Capture CaptureConfig `yaml:"capture"`
	Audio   AudioConfig   `yaml:"audio"`
	Gate    GateConfig    `yaml:"gate"`
	Text    TextConfig    `yaml:"text"`
	Engine  EngineConfig  `yaml:"engine"`
	Inject  InjectConfig  `yaml:"inject"`
	HTTP    HTTPConfig    `yaml:"http"`
	Logging LoggingConfig `yaml:"logging"`
}

// CaptureConfig contains microphone capture configuration
type CaptureConfig struct {
	Device    string `yaml:"device"`
	FrameSize int    `yaml:"frame_size"` // samples per frame
}

// AudioConfig contains audio windowing parameters
type AudioConfig struct {
	ChunkSeconds float64 `yaml:"chunk_seconds"` // window duration
	DumpDir      string  `yaml:"dump_dir"`      // empty disables window dumps
}

// GateConfig contains silence gate configuration
type GateConfig struct {
	RMSThreshold float64 `yaml:"rms_threshold"`
}

// TextConfig contains transcript filtering and delivery parameters
type TextConfig struct {
	MinTextLen   int     `yaml:"min_text_len"` // characters
	Language     string  `yaml:"language"`
	DrainTimeout float64 `yaml:"drain_timeout"` // seconds
}

// EngineConfig contains speech engine configuration
type EngineConfig struct {
	Backend  string  `yaml:"backend"`
	Endpoint string  `yaml:"endpoint"`
	APIKey   string  `yaml:"api_key"`
	Model    string  `yaml:"model"`
	Timeout  float64 `yaml:"timeout"` // seconds
	Fallback string  `yaml:"fallback"`
}

// InjectConfig contains text injection configuration
type InjectConfig struct {
	Backend string   `yaml:"backend"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// HTTPConfig contains the status server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Capture: CaptureConfig{
			FrameSize: 1024,
		},
		Audio: AudioConfig{
			ChunkSeconds: 1.5,
		},
		Gate: GateConfig{
			RMSThreshold: 0.01,
		},
		Text: TextConfig{
			MinTextLen:   3,
			DrainTimeout: 2.0,
		},
		Engine: EngineConfig{
			Backend:  engine.BackendServer,
			Endpoint: "http://localhost:8080/inference",
			Timeout:  30.0,
		},
		Inject: InjectConfig{
			Backend: inject.BackendCommand,
		},
		HTTP: HTTPConfig{
			Port:    9090,
			Address: "127.0.0.1",
			Enabled: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads and parses the configuration file. Fields absent from the file
// keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Gate.Validate(); err != nil {
		return fmt.Errorf("gate config: %w", err)
	}

	if err := c.Text.Validate(); err != nil {
		return fmt.Errorf("text config: %w", err)
	}

	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine config: %w", err)
	}

	if err := c.Inject.Validate(); err != nil {
		return fmt.Errorf("inject config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates capture configuration
func (c *CaptureConfig) Validate() error {
	if c.FrameSize < 0 {
		return fmt.Errorf("frame_size cannot be negative, got %d", c.FrameSize)
	}

	return nil
}

// Validate validates audio windowing configuration
func (a *AudioConfig) Validate() error {
	if a.ChunkSeconds <= 0 {
		return fmt.Errorf("chunk_seconds must be positive, got %f", a.ChunkSeconds)
	}

	if a.ChunkSeconds > 30 {
		return fmt.Errorf("chunk_seconds must not exceed 30, got %f", a.ChunkSeconds)
	}

	return nil
}

// Validate validates gate configuration
func (g *GateConfig) Validate() error {
	if g.RMSThreshold < 0 || g.RMSThreshold > 1 {
		return fmt.Errorf("rms_threshold must be between 0 and 1, got %f", g.RMSThreshold)
	}

	return nil
}

// Validate validates text configuration
func (t *TextConfig) Validate() error {
	if t.MinTextLen < 0 {
		return fmt.Errorf("min_text_len cannot be negative, got %d", t.MinTextLen)
	}

	if t.DrainTimeout < 0 {
		return fmt.Errorf("drain_timeout cannot be negative, got %f", t.DrainTimeout)
	}

	return nil
}

// Validate validates engine configuration
func (e *EngineConfig) Validate() error {
	switch e.Backend {
	case engine.BackendServer, engine.BackendOpenAI:
	default:
		return fmt.Errorf("backend must be %q or %q, got %q",
			engine.BackendServer, engine.BackendOpenAI, e.Backend)
	}

	if e.Backend == engine.BackendServer && e.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty for the server backend")
	}

	if e.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %f", e.Timeout)
	}

	switch e.Fallback {
	case "", engine.BackendServer, engine.BackendOpenAI:
	default:
		return fmt.Errorf("fallback must be %q or %q, got %q",
			engine.BackendServer, engine.BackendOpenAI, e.Fallback)
	}

	return nil
}

// Validate validates inject configuration
func (i *InjectConfig) Validate() error {
	switch i.Backend {
	case "", inject.BackendCommand, inject.BackendPaste:
	default:
		return fmt.Errorf("backend must be %q or %q, got %q",
			inject.BackendCommand, inject.BackendPaste, i.Backend)
	}

	return nil
}

// Validate validates HTTP server configuration
func (h *HTTPConfig) Validate() error {
	if !h.Enabled {
		return nil
	}

	if h.Port < 1 || h.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", h.Port)
	}

	if h.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("level must be one of debug, info, warn, error, got %q", l.Level)
	}

	switch l.Format {
	case "text", "json":
	default:
		return fmt.Errorf("format must be text or json, got %q", l.Format)
	}

	switch l.Output {
	case "stdout", "stderr":
	default:
		return fmt.Errorf("output must be stdout or stderr, got %q", l.Output)
	}

	return nil
}

// GetDrainTimeoutDuration returns the drain timeout as a time.Duration
func (t *TextConfig) GetDrainTimeoutDuration() time.Duration {
	return time.Duration(t.DrainTimeout * float64(time.Second))
}

// GetTimeoutDuration returns the engine timeout as a time.Duration
func (e *EngineConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(e.Timeout * float64(time.Second))
}

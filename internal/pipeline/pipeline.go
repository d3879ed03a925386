package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/rkmax/voicetype/internal/audio"
	"github.com/rkmax/voicetype/internal/delta"
	"github.com/rkmax/voicetype/internal/engine"
	"github.com/rkmax/voicetype/internal/inject"
	"github.com/rkmax/voicetype/internal/metrics"
	"github.com/rkmax/voicetype/internal/vad"
)

// Default queue and drain parameters.
const (
	DefaultAudioQueueSize = 64
	DefaultTextQueueSize  = 16
	DefaultDrainTimeout   = 2 * time.Second
	DefaultEngineTimeout  = 30 * time.Second
)

// FrameSource produces capture frames. Read blocks until one frame of raw
// PCM-16 little-endian bytes is available.
type FrameSource interface {
	Read() ([]byte, error)
}

// Config contains pipeline configuration.
type Config struct {
	SampleRate   int
	ChunkSeconds float64
	RMSThreshold float64
	// MinTextLen is the minimum transcript length in characters for a
	// transcript to be accepted.
	MinTextLen int
	// Language is an optional hint passed to the engine.
	Language string

	AudioQueueSize int
	TextQueueSize  int
	// DrainTimeout bounds how long Run waits for queued work after capture
	// stops.
	DrainTimeout time.Duration
	// EngineTimeout bounds each transcription call. Engine calls are not
	// preempted by shutdown; a call in flight always finishes or times out.
	EngineTimeout time.Duration
}

// Deps carries the pipeline's collaborators. Source, Engine and Sink are
// required; Dumper and Metrics are optional.
type Deps struct {
	Source  FrameSource
	Engine  engine.Engine
	Sink    inject.Sink
	Dumper  *audio.Dumper
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Pipeline runs the capture -> transcribe -> inject loop.
type Pipeline struct {
	config  Config
	source  FrameSource
	engine  engine.Engine
	sink    inject.Sink
	dumper  *audio.Dumper
	logger  *slog.Logger
	metrics *metrics.Metrics

	accumulator *audio.Accumulator
	gate        *vad.Gate

	audioQ chan []byte
	textQ  chan string

	state atomic.Int32

	// Statistics
	startTime        time.Time
	lastText         string
	windowsGated     uint64
	engineFailures   uint64
	fragmentsEmitted uint64
	fragmentsTyped   uint64
	injectFailures   uint64

	mu sync.RWMutex
}

// Stats represents a pipeline statistics snapshot.
type Stats struct {
	State            string                 `json:"state"`
	UptimeSeconds    float64                `json:"uptime_seconds"`
	LastText         string                 `json:"last_text"`
	WindowsGated     uint64                 `json:"windows_gated"`
	EngineFailures   uint64                 `json:"engine_failures"`
	FragmentsEmitted uint64                 `json:"fragments_emitted"`
	FragmentsTyped   uint64                 `json:"fragments_typed"`
	InjectFailures   uint64                 `json:"inject_failures"`
	Accumulator      audio.AccumulatorStats `json:"accumulator"`
	Gate             vad.GateStats          `json:"gate"`
}

// New creates a pipeline. It validates the window and gate parameters up
// front so a misconfiguration fails before capture starts.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	if deps.Source == nil {
		return nil, fmt.Errorf("frame source is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("speech engine is required")
	}
	if deps.Sink == nil {
		return nil, fmt.Errorf("injection sink is required")
	}
	if cfg.MinTextLen < 0 {
		return nil, fmt.Errorf("min text length cannot be negative, got %d", cfg.MinTextLen)
	}

	accumulator, err := audio.NewAccumulator(cfg.SampleRate, cfg.ChunkSeconds)
	if err != nil {
		return nil, fmt.Errorf("failed to create accumulator: %w", err)
	}

	gate, err := vad.NewGate(cfg.RMSThreshold)
	if err != nil {
		return nil, fmt.Errorf("failed to create energy gate: %w", err)
	}

	if cfg.AudioQueueSize <= 0 {
		cfg.AudioQueueSize = DefaultAudioQueueSize
	}
	if cfg.TextQueueSize <= 0 {
		cfg.TextQueueSize = DefaultTextQueueSize
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}
	if cfg.EngineTimeout <= 0 {
		cfg.EngineTimeout = DefaultEngineTimeout
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		config:      cfg,
		source:      deps.Source,
		engine:      deps.Engine,
		sink:        deps.Sink,
		dumper:      deps.Dumper,
		logger:      logger,
		metrics:     deps.Metrics,
		accumulator: accumulator,
		gate:        gate,
		audioQ:      make(chan []byte, cfg.AudioQueueSize),
		textQ:       make(chan string, cfg.TextQueueSize),
	}, nil
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

// Run starts all three stages and blocks until ctx is cancelled and queued
// work has drained. A pipeline runs at most once; calling Run again returns
// an error. The returned error is nil on a clean shutdown; a capture failure
// is returned after the drain completes.
func (p *Pipeline) Run(ctx context.Context) error {
	if !p.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return fmt.Errorf("pipeline already started (state: %s)", p.State())
	}

	p.mu.Lock()
	p.startTime = time.Now()
	p.mu.Unlock()

	p.logger.Info("Pipeline starting",
		slog.Int("sample_rate", p.config.SampleRate),
		slog.Float64("chunk_seconds", p.config.ChunkSeconds),
		slog.Float64("rms_threshold", p.config.RMSThreshold),
		slog.Int("min_text_len", p.config.MinTextLen),
		slog.String("engine", p.engine.Name()),
		slog.String("sink", p.sink.Name()),
	)

	captureErr := make(chan error, 1)
	emitDone := make(chan struct{})

	go func() {
		defer close(p.audioQ)
		captureErr <- p.captureLoop(ctx)
	}()

	go func() {
		defer close(p.textQ)
		p.transcribeLoop()
	}()

	go func() {
		defer close(emitDone)
		p.emitLoop()
	}()

	// Capture exits on cancellation or device failure; either way the
	// remaining stages drain what is already queued.
	err := <-captureErr
	p.state.Store(int32(StateDraining))
	p.logger.Info("Pipeline draining",
		slog.Int("audio_queued", len(p.audioQ)),
		slog.Int("text_queued", len(p.textQ)),
	)

	drainDeadline := time.NewTimer(p.config.DrainTimeout)
	defer drainDeadline.Stop()

	select {
	case <-emitDone:
	case <-drainDeadline.C:
		p.logger.Warn("Drain timeout exceeded, dropping queued work",
			slog.Duration("timeout", p.config.DrainTimeout),
		)
	}

	p.state.Store(int32(StateStopped))
	p.logger.Info("Pipeline stopped")

	return err
}

// captureLoop reads frames from the source and queues them until ctx is
// cancelled. A read failure stops capture; everything already queued still
// drains.
func (p *Pipeline) captureLoop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		frame, err := p.source.Read()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Error("Capture read failed, stopping",
				slog.String("error", err.Error()),
			)
			return fmt.Errorf("capture failed: %w", err)
		}

		p.metrics.RecordFrameCaptured(len(frame))

		// A frame already read is enqueued whenever there is room, even
		// during cancellation; blocking on a full queue is what yields to
		// shutdown.
		select {
		case p.audioQ <- frame:
		default:
			select {
			case p.audioQ <- frame:
			case <-ctx.Done():
				return nil
			}
		}
		p.metrics.SetAudioQueueSize(len(p.audioQ))
	}
}

// transcribeLoop accumulates frames into windows and processes each window
// through the gate, the engine and the delta step. It exits when the audio
// queue is closed and fully consumed.
func (p *Pipeline) transcribeLoop() {
	for frame := range p.audioQ {
		p.metrics.SetAudioQueueSize(len(p.audioQ))

		window := p.accumulator.Add(frame)
		if window == nil {
			continue
		}

		p.processWindow(window)
	}
}

// processWindow runs one window through gate, engine and delta extraction,
// queuing the resulting fragment for injection. Engine failures drop the
// window and leave the transcript history untouched.
func (p *Pipeline) processWindow(w *audio.Window) {
	result := p.gate.Process(w.Samples())
	p.metrics.RecordWindowEmitted(w.Duration().Seconds(), result.RMS)

	if !result.Active {
		p.mu.Lock()
		p.windowsGated++
		p.mu.Unlock()
		p.metrics.RecordWindowGated()
		p.logger.Debug("Window below energy threshold, skipping",
			slog.String("window_id", w.ID),
			slog.Float64("rms", result.RMS),
		)
		return
	}
	p.metrics.RecordWindowAccepted()

	if p.dumper != nil {
		if path, err := p.dumper.Dump(w); err != nil {
			p.logger.Warn("Failed to dump window",
				slog.String("window_id", w.ID),
				slog.String("error", err.Error()),
			)
		} else {
			p.logger.Debug("Window dumped", slog.String("path", path))
		}
	}

	// Engine calls are not preemptible mid-request, so they run against
	// their own timeout rather than the run context.
	engineCtx, cancel := context.WithTimeout(context.Background(), p.config.EngineTimeout)
	defer cancel()

	p.metrics.RecordEngineRequest()
	startTime := time.Now()
	text, err := p.engine.Transcribe(engineCtx, w, p.config.Language)
	elapsed := time.Since(startTime)

	if err != nil {
		p.mu.Lock()
		p.engineFailures++
		p.mu.Unlock()
		p.metrics.RecordEngineFailure(elapsed.Seconds())
		p.logger.Warn("Transcription failed, dropping window",
			slog.String("window_id", w.ID),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()),
		)
		return
	}
	p.metrics.RecordEngineSuccess(elapsed.Seconds())

	p.handleTranscript(w.ID, text)
}

// handleTranscript applies the acceptance filter and delta extraction to one
// engine transcript and queues the newly spoken fragment.
func (p *Pipeline) handleTranscript(windowID, text string) {
	current := strings.TrimSpace(text)

	// Empty transcripts are rejected even when min_text_len is zero; they
	// must never enter the incremental history.
	if current == "" || utf8.RuneCountInString(current) < p.config.MinTextLen {
		p.metrics.RecordFragmentDropped()
		p.logger.Debug("Transcript below minimum length, skipping",
			slog.String("window_id", windowID),
			slog.String("text", current),
		)
		return
	}

	p.mu.Lock()
	previous := p.lastText
	p.mu.Unlock()

	var fragment string
	if current == previous {
		// The engine heard the same utterance again; keep the cursor
		// moving without repeating the words.
		fragment = " "
	} else {
		// current is non-empty and differs from previous, so the delta is
		// never empty: either a non-whitespace remainder or the full
		// re-emit on divergence.
		fragment = delta.Extract(current, previous)
		if r, _ := utf8.DecodeLastRuneInString(fragment); !unicode.IsSpace(r) {
			fragment += " "
		}
	}

	p.setLastText(current)

	p.textQ <- fragment
	p.mu.Lock()
	p.fragmentsEmitted++
	p.mu.Unlock()
	p.metrics.RecordFragmentEmitted(utf8.RuneCountInString(fragment))
	p.metrics.SetTextQueueSize(len(p.textQ))

	p.logger.Info("Fragment queued",
		slog.String("window_id", windowID),
		slog.Int("length", utf8.RuneCountInString(fragment)),
	)
}

func (p *Pipeline) setLastText(text string) {
	p.mu.Lock()
	p.lastText = text
	p.mu.Unlock()
}

// emitLoop injects fragments strictly in queue order. A failed injection
// drops that fragment and continues with the next one.
func (p *Pipeline) emitLoop() {
	for fragment := range p.textQ {
		p.metrics.SetTextQueueSize(len(p.textQ))

		if err := p.sink.Type(context.Background(), fragment); err != nil {
			p.mu.Lock()
			p.injectFailures++
			p.mu.Unlock()
			p.metrics.RecordInjection(false)
			p.logger.Warn("Injection failed, dropping fragment",
				slog.String("sink", p.sink.Name()),
				slog.String("error", err.Error()),
			)
			continue
		}

		p.mu.Lock()
		p.fragmentsTyped++
		p.mu.Unlock()
		p.metrics.RecordInjection(true)
	}
}

// GetStats returns a snapshot of pipeline statistics.
func (p *Pipeline) GetStats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	uptime := float64(0)
	if !p.startTime.IsZero() {
		uptime = time.Since(p.startTime).Seconds()
	}

	return Stats{
		State:            p.State().String(),
		UptimeSeconds:    uptime,
		LastText:         p.lastText,
		WindowsGated:     p.windowsGated,
		EngineFailures:   p.engineFailures,
		FragmentsEmitted: p.fragmentsEmitted,
		FragmentsTyped:   p.fragmentsTyped,
		InjectFailures:   p.injectFailures,
		Accumulator:      p.accumulator.GetStats(),
		Gate:             p.gate.GetStats(),
	}
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/rkmax/voicetype/internal/audio"
)

// fakeSource replays queued frames and fails once its done channel closes.
type fakeSource struct {
	frames chan []byte
	done   chan struct{}
}

func newFakeSource(capacity int) *fakeSource {
	return &fakeSource{
		frames: make(chan []byte, capacity),
		done:   make(chan struct{}),
	}
}

func (s *fakeSource) Read() ([]byte, error) {
	select {
	case f := <-s.frames:
		return f, nil
	case <-s.done:
		return nil, errors.New("capture closed")
	}
}

// fakeEngine returns scripted transcripts in call order. A nil entry in the
// script produces an error for that call.
type fakeEngine struct {
	mu     sync.Mutex
	script []*string
	calls  int
}

func transcript(s string) *string { return &s }

func (e *fakeEngine) Transcribe(ctx context.Context, w *audio.Window, language string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := e.calls
	e.calls++

	if n >= len(e.script) {
		return "", fmt.Errorf("unexpected call %d", n)
	}
	if e.script[n] == nil {
		return "", fmt.Errorf("scripted failure on call %d", n)
	}
	return *e.script[n], nil
}

func (e *fakeEngine) Name() string { return "fake" }

func (e *fakeEngine) Close() error { return nil }

func (e *fakeEngine) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// fakeSink records typed fragments; indices listed in failOn are rejected.
type fakeSink struct {
	mu       sync.Mutex
	typed    []string
	failOn   map[int]bool
	attempts int
}

func (s *fakeSink) Type(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.attempts
	s.attempts++

	if s.failOn[n] {
		return errors.New("injection rejected")
	}
	s.typed = append(s.typed, text)
	return nil
}

func (s *fakeSink) Name() string { return "fake" }

func (s *fakeSink) fragments() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.typed))
	copy(out, s.typed)
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	return Config{
		SampleRate:   16000,
		ChunkSeconds: 0.01, // 320 byte windows keep tests fast
		RMSThreshold: 0.01,
		MinTextLen:   3,
	}
}

// loudFrame fills one whole window with constant amplitude 3277, which is
// 0.1 RMS after normalization.
func loudFrame() []byte {
	frame := make([]byte, 320)
	for i := 0; i < len(frame); i += 2 {
		frame[i] = 0xCD
		frame[i+1] = 0x0C
	}
	return frame
}

func silentFrame() []byte {
	return make([]byte, 320)
}

// runPipeline feeds the frames through a pipeline built around the fakes and
// returns after a full drain.
func runPipeline(t *testing.T, cfg Config, frames [][]byte, eng *fakeEngine, sink *fakeSink) error {
	t.Helper()

	source := newFakeSource(len(frames))
	for _, f := range frames {
		source.frames <- f
	}

	p, err := New(cfg, Deps{
		Source: source,
		Engine: eng,
		Sink:   sink,
		Logger: testLogger(),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- p.Run(ctx) }()

	// Wait until every queued frame has been consumed, then stop.
	deadline := time.After(5 * time.Second)
	for len(source.frames) > 0 {
		select {
		case <-deadline:
			t.Fatal("Frames not consumed in time")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	close(source.done)

	select {
	case err := <-runDone:
		if p.State() != StateStopped {
			t.Errorf("State after Run = %s, want stopped", p.State())
		}
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

func TestPipelineEndToEnd(t *testing.T) {
	eng := &fakeEngine{script: []*string{
		transcript("hello world"),
		transcript("hello world there"),
		transcript("hello world there"),
	}}
	sink := &fakeSink{}

	frames := [][]byte{loudFrame(), loudFrame(), loudFrame()}
	if err := runPipeline(t, testConfig(), frames, eng, sink); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	want := []string{"hello world ", "there ", " "}
	got := sink.fragments()
	if len(got) != len(want) {
		t.Fatalf("Typed %d fragments %q, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Fragment %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestPipelineSilenceSkipsEngine(t *testing.T) {
	eng := &fakeEngine{}
	sink := &fakeSink{}

	frames := [][]byte{silentFrame(), silentFrame()}
	if err := runPipeline(t, testConfig(), frames, eng, sink); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if eng.callCount() != 0 {
		t.Errorf("Engine called %d times for silence, want 0", eng.callCount())
	}
	if got := sink.fragments(); len(got) != 0 {
		t.Errorf("Typed %q for silence, want nothing", got)
	}
}

func TestPipelineEngineFailureContinues(t *testing.T) {
	eng := &fakeEngine{script: []*string{
		nil, // first window fails
		transcript("hello"),
	}}
	sink := &fakeSink{}

	frames := [][]byte{loudFrame(), loudFrame()}
	if err := runPipeline(t, testConfig(), frames, eng, sink); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	got := sink.fragments()
	if len(got) != 1 || got[0] != "hello " {
		t.Errorf("Typed %q, want [\"hello \"]", got)
	}
}

func TestPipelineMinTextLenFilter(t *testing.T) {
	eng := &fakeEngine{script: []*string{
		transcript("hi"), // below the 3 character minimum
		transcript("hi there"),
	}}
	sink := &fakeSink{}

	frames := [][]byte{loudFrame(), loudFrame()}
	if err := runPipeline(t, testConfig(), frames, eng, sink); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	// The rejected transcript must not enter the incremental history, so
	// the second one is entirely new text.
	got := sink.fragments()
	if len(got) != 1 || got[0] != "hi there " {
		t.Errorf("Typed %q, want [\"hi there \"]", got)
	}
}

func TestPipelineEmptyTranscriptIgnored(t *testing.T) {
	eng := &fakeEngine{script: []*string{
		transcript(""),            // empty before any history
		transcript("hello world"),
		transcript("   "),         // whitespace-only, trims to empty
		transcript("hello world"), // history intact, exact repeat
	}}
	sink := &fakeSink{}

	cfg := testConfig()
	cfg.MinTextLen = 0 // zero minimum must still reject empty transcripts

	frames := [][]byte{loudFrame(), loudFrame(), loudFrame(), loudFrame()}
	if err := runPipeline(t, cfg, frames, eng, sink); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	// The empty transcripts produce nothing and leave the incremental
	// history untouched, so the final window is an exact repeat.
	want := []string{"hello world ", " "}
	got := sink.fragments()
	if len(got) != len(want) {
		t.Fatalf("Typed %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Fragment %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestPipelineDivergenceReEmits(t *testing.T) {
	eng := &fakeEngine{script: []*string{
		transcript("hello world"),
		transcript("help word"), // engine revised itself, no prefix match
	}}
	sink := &fakeSink{}

	frames := [][]byte{loudFrame(), loudFrame()}
	if err := runPipeline(t, testConfig(), frames, eng, sink); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	want := []string{"hello world ", "help word "}
	got := sink.fragments()
	if len(got) != len(want) {
		t.Fatalf("Typed %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Fragment %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestPipelineInjectFailureContinues(t *testing.T) {
	eng := &fakeEngine{script: []*string{
		transcript("hello world"),
		transcript("hello world there"),
	}}
	sink := &fakeSink{failOn: map[int]bool{0: true}}

	frames := [][]byte{loudFrame(), loudFrame()}
	if err := runPipeline(t, testConfig(), frames, eng, sink); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	// The first fragment is lost, the second still goes through.
	got := sink.fragments()
	if len(got) != 1 || got[0] != "there " {
		t.Errorf("Typed %q, want [\"there \"]", got)
	}
}

func TestPipelineRunsOnce(t *testing.T) {
	source := newFakeSource(1)
	eng := &fakeEngine{}
	sink := &fakeSink{}

	p, err := New(testConfig(), Deps{
		Source: source,
		Engine: eng,
		Sink:   sink,
		Logger: testLogger(),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if p.State() != StateIdle {
		t.Errorf("Initial state = %s, want idle", p.State())
	}

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- p.Run(ctx) }()

	// Give Run a moment to take the state, then a second Run must refuse.
	time.Sleep(10 * time.Millisecond)
	if err := p.Run(ctx); err == nil {
		t.Error("Second Run succeeded, want error")
	}

	cancel()
	close(source.done)
	<-runDone
}

func TestPipelineCaptureFailureDrains(t *testing.T) {
	source := newFakeSource(1)
	source.frames <- loudFrame()

	eng := &fakeEngine{script: []*string{transcript("hello world")}}
	sink := &fakeSink{}

	p, err := New(testConfig(), Deps{
		Source: source,
		Engine: eng,
		Sink:   sink,
		Logger: testLogger(),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	// Closing the source without cancelling makes Read fail, which stops
	// capture; queued audio still drains into typed text.
	go func() {
		time.Sleep(10 * time.Millisecond)
		close(source.done)
	}()

	runErr := p.Run(context.Background())
	if runErr == nil {
		t.Fatal("Run returned nil for a capture failure")
	}

	got := sink.fragments()
	if len(got) != 1 || got[0] != "hello world " {
		t.Errorf("Typed %q, want [\"hello world \"]", got)
	}
}

func TestPipelineStats(t *testing.T) {
	eng := &fakeEngine{script: []*string{
		nil,
		transcript("hello world"),
	}}
	sink := &fakeSink{}

	frames := [][]byte{silentFrame(), loudFrame(), loudFrame()}

	cfg := testConfig()
	source := newFakeSource(len(frames))
	for _, f := range frames {
		source.frames <- f
	}

	p, err := New(cfg, Deps{
		Source: source,
		Engine: eng,
		Sink:   sink,
		Logger: testLogger(),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- p.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for len(source.frames) > 0 {
		select {
		case <-deadline:
			t.Fatal("Frames not consumed in time")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	close(source.done)
	<-runDone

	stats := p.GetStats()
	if stats.WindowsGated != 1 {
		t.Errorf("WindowsGated = %d, want 1", stats.WindowsGated)
	}
	if stats.EngineFailures != 1 {
		t.Errorf("EngineFailures = %d, want 1", stats.EngineFailures)
	}
	if stats.FragmentsTyped != 1 {
		t.Errorf("FragmentsTyped = %d, want 1", stats.FragmentsTyped)
	}
	if stats.LastText != "hello world" {
		t.Errorf("LastText = %q, want %q", stats.LastText, "hello world")
	}
	if stats.State != "stopped" {
		t.Errorf("State = %q, want stopped", stats.State)
	}
}

func TestNewValidation(t *testing.T) {
	valid := testConfig()
	deps := Deps{
		Source: newFakeSource(1),
		Engine: &fakeEngine{},
		Sink:   &fakeSink{},
		Logger: testLogger(),
	}

	tests := []struct {
		name   string
		mutate func(*Config, *Deps)
	}{
		{"missing source", func(c *Config, d *Deps) { d.Source = nil }},
		{"missing engine", func(c *Config, d *Deps) { d.Engine = nil }},
		{"missing sink", func(c *Config, d *Deps) { d.Sink = nil }},
		{"bad sample rate", func(c *Config, d *Deps) { c.SampleRate = 0 }},
		{"bad chunk seconds", func(c *Config, d *Deps) { c.ChunkSeconds = -1 }},
		{"bad threshold", func(c *Config, d *Deps) { c.RMSThreshold = 2 }},
		{"negative min text len", func(c *Config, d *Deps) { c.MinTextLen = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			d := deps
			tt.mutate(&cfg, &d)
			if _, err := New(cfg, d); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

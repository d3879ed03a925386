package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// BytesPerSample is the size of one PCM-16 sample.
const BytesPerSample = 2

// Window represents a fixed-duration block of PCM-16 mono audio handed to the
// speech engine as one unit. Windows are disjoint: audio is never shared
// between consecutive windows.
type Window struct {
	ID         string
	PCM        []byte
	SampleRate int
	CreatedAt  time.Time
}

// Samples decodes the window's raw bytes into little-endian PCM-16 samples.
func (w *Window) Samples() []int16 {
	samples := make([]int16, len(w.PCM)/BytesPerSample)
	for i := range samples {
		samples[i] = int16(w.PCM[i*2]) | int16(w.PCM[i*2+1])<<8
	}
	return samples
}

// Duration returns the playback duration of the window.
func (w *Window) Duration() time.Duration {
	if w.SampleRate <= 0 {
		return 0
	}
	samples := len(w.PCM) / BytesPerSample
	return time.Duration(samples) * time.Second / time.Duration(w.SampleRate)
}

// Accumulator buffers capture frames until enough audio for one window has
// arrived. It is owned by a single consumer; the mutex only guards the stats
// snapshot read by the status server.
type Accumulator struct {
	sampleRate     int
	thresholdBytes int
	buf            []byte

	// Statistics
	framesAdded    uint64
	bytesAdded     uint64
	windowsEmitted uint64

	mu sync.RWMutex
}

// AccumulatorStats represents accumulator statistics for monitoring.
type AccumulatorStats struct {
	FramesAdded    uint64 `json:"frames_added"`
	BytesAdded     uint64 `json:"bytes_added"`
	WindowsEmitted uint64 `json:"windows_emitted"`
	PendingBytes   int    `json:"pending_bytes"`
	ThresholdBytes int    `json:"threshold_bytes"`
}

// NewAccumulator creates an accumulator that emits one window per
// chunkSeconds of buffered audio.
func NewAccumulator(sampleRate int, chunkSeconds float64) (*Accumulator, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	if chunkSeconds <= 0 {
		return nil, fmt.Errorf("chunk duration must be positive, got %f", chunkSeconds)
	}

	threshold := int(float64(sampleRate) * chunkSeconds * BytesPerSample)

	return &Accumulator{
		sampleRate:     sampleRate,
		thresholdBytes: threshold,
		buf:            make([]byte, 0, threshold),
	}, nil
}

// Add appends one capture frame. When the buffered length reaches the window
// threshold it returns a window carrying the entire buffered content and
// clears the buffer; otherwise it returns nil.
func (a *Accumulator) Add(frame []byte) *Window {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.buf = append(a.buf, frame...)
	a.framesAdded++
	a.bytesAdded += uint64(len(frame))

	if len(a.buf) < a.thresholdBytes {
		return nil
	}

	// Emit everything buffered, not just the threshold-sized prefix.
	pcm := make([]byte, len(a.buf))
	copy(pcm, a.buf)
	a.buf = a.buf[:0]
	a.windowsEmitted++

	return &Window{
		ID:         uuid.NewString(),
		PCM:        pcm,
		SampleRate: a.sampleRate,
		CreatedAt:  time.Now(),
	}
}

// Reset discards any buffered audio without emitting a window.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.buf = a.buf[:0]
}

// ThresholdBytes returns the byte length that triggers window emission.
func (a *Accumulator) ThresholdBytes() int {
	return a.thresholdBytes
}

// Pending returns the number of buffered bytes not yet emitted.
func (a *Accumulator) Pending() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.buf)
}

// GetStats returns current accumulator statistics.
func (a *Accumulator) GetStats() AccumulatorStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return AccumulatorStats{
		FramesAdded:    a.framesAdded,
		BytesAdded:     a.bytesAdded,
		WindowsEmitted: a.windowsEmitted,
		PendingBytes:   len(a.buf),
		ThresholdBytes: a.thresholdBytes,
	}
}

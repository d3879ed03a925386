package capture

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// DefaultFrameSize is the number of samples delivered per Read call.
const DefaultFrameSize = 1024

// Config contains capture configuration.
type Config struct {
	// Device selects the input device: empty for the system default, a
	// number for a device index, anything else for a name substring.
	Device string
	// SampleRate is the capture rate in Hz.
	SampleRate int
	// FrameSize is the number of samples per frame. Zero means
	// DefaultFrameSize.
	FrameSize int
}

// Source is a blocking microphone capture stream. Read returns one frame of
// raw PCM-16 little-endian bytes per call. A Source is owned by a single
// goroutine; only Close and GetStats may be called concurrently with Read.
type Source struct {
	stream  *portaudio.Stream
	samples []int16
	device  string

	// Statistics
	framesRead uint64
	bytesRead  uint64

	closeOnce sync.Once
	mu        sync.RWMutex
}

// SourceStats represents capture statistics for monitoring.
type SourceStats struct {
	Device     string `json:"device"`
	FramesRead uint64 `json:"frames_read"`
	BytesRead  uint64 `json:"bytes_read"`
}

// NewSource opens the selected input device and starts capturing. Failures
// here are fatal to the caller: capture must be working before any other
// stage starts.
func NewSource(cfg Config) (*Source, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", cfg.SampleRate)
	}

	frameSize := cfg.FrameSize
	if frameSize == 0 {
		frameSize = DefaultFrameSize
	}
	if frameSize < 0 {
		return nil, fmt.Errorf("frame size must be positive, got %d", frameSize)
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize audio runtime: %w", err)
	}

	info, err := selectDevice(cfg.Device)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	samples := make([]int16, frameSize)

	params := portaudio.LowLatencyParameters(info, nil)
	params.Input.Channels = 1
	params.SampleRate = float64(cfg.SampleRate)
	params.FramesPerBuffer = frameSize

	stream, err := portaudio.OpenStream(params, samples)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open stream on %q: %w", info.Name, err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to start stream on %q: %w", info.Name, err)
	}

	return &Source{
		stream:  stream,
		samples: samples,
		device:  info.Name,
	}, nil
}

// Device returns the name of the opened input device.
func (s *Source) Device() string {
	return s.device
}

// Read blocks until one frame of audio has been captured and returns it as
// little-endian PCM-16 bytes. The returned slice is freshly allocated and
// safe to retain.
func (s *Source) Read() ([]byte, error) {
	if err := s.stream.Read(); err != nil {
		return nil, fmt.Errorf("failed to read capture frame: %w", err)
	}

	frame := make([]byte, len(s.samples)*2)
	for i, v := range s.samples {
		frame[i*2] = byte(v)
		frame[i*2+1] = byte(v >> 8)
	}

	s.mu.Lock()
	s.framesRead++
	s.bytesRead += uint64(len(frame))
	s.mu.Unlock()

	return frame, nil
}

// Close stops the stream and releases the audio runtime. Safe to call more
// than once.
func (s *Source) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if serr := s.stream.Stop(); serr != nil {
			err = fmt.Errorf("failed to stop stream: %w", serr)
		}
		if cerr := s.stream.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close stream: %w", cerr)
		}
		portaudio.Terminate()
	})
	return err
}

// GetStats returns current capture statistics.
func (s *Source) GetStats() SourceStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return SourceStats{
		Device:     s.device,
		FramesRead: s.framesRead,
		BytesRead:  s.bytesRead,
	}
}

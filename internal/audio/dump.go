package audio

import (
	"fmt"
	"os"
	"path/filepath"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Dumper writes accepted windows to a directory as WAV files. It is used to
// inspect what the gate let through when tuning thresholds.
type Dumper struct {
	dir string
}

// NewDumper creates the dump directory if needed and returns a dumper.
func NewDumper(dir string) (*Dumper, error) {
	if dir == "" {
		return nil, fmt.Errorf("dump directory cannot be empty")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create dump directory %s: %w", dir, err)
	}

	return &Dumper{dir: dir}, nil
}

// Dump writes one window as window_<id>.wav inside the dump directory.
func (d *Dumper) Dump(w *Window) (string, error) {
	path := filepath.Join(d.dir, fmt.Sprintf("window_%s.wav", w.ID))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create dump file: %w", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, w.SampleRate, 16, 1, 1)

	samples := w.Samples()
	buf := &gaudio.IntBuffer{
		Format: &gaudio.Format{
			NumChannels: 1,
			SampleRate:  w.SampleRate,
		},
		Data:           make([]int, len(samples)),
		SourceBitDepth: 16,
	}
	for i := range samples {
		buf.Data[i] = int(samples[i])
	}

	if err := enc.Write(buf); err != nil {
		enc.Close()
		return "", fmt.Errorf("failed to write dump samples: %w", err)
	}

	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize dump file: %w", err)
	}

	return path, nil
}

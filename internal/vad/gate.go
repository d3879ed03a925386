package vad

import (
	"fmt"
	"math"
	"sync"
)

// Gate decides whether a window contains enough energy to be worth
// transcribing. Windows below the threshold are treated as silence.
type Gate struct {
	threshold float64

	// Statistics
	totalWindows  uint64
	activeWindows uint64

	mu sync.RWMutex
}

// Result represents the outcome of gating one window.
type Result struct {
	RMS    float64 `json:"rms"`
	Active bool    `json:"active"`
}

// GateStats represents gate statistics for monitoring.
type GateStats struct {
	Threshold        float64 `json:"threshold"`
	TotalWindows     uint64  `json:"total_windows"`
	ActiveWindows    uint64  `json:"active_windows"`
	ActivePercentage float64 `json:"active_percentage"`
}

// NewGate creates a gate with the given RMS threshold in [0, 1].
func NewGate(threshold float64) (*Gate, error) {
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("threshold must be between 0 and 1, got %f", threshold)
	}

	return &Gate{threshold: threshold}, nil
}

// Process computes the RMS amplitude of the samples and reports whether the
// window meets the threshold. Samples are scaled to [-1, 1] before squaring.
func (g *Gate) Process(samples []int16) Result {
	g.mu.Lock()
	defer g.mu.Unlock()

	rms := 0.0
	if len(samples) > 0 {
		var sum float64
		for _, s := range samples {
			v := float64(s) / 32768.0
			sum += v * v
		}
		rms = math.Sqrt(sum / float64(len(samples)))
	}

	active := rms >= g.threshold

	g.totalWindows++
	if active {
		g.activeWindows++
	}

	return Result{RMS: rms, Active: active}
}

// Threshold returns the configured RMS threshold.
func (g *Gate) Threshold() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.threshold
}

// GetStats returns current gate statistics.
func (g *Gate) GetStats() GateStats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	activePct := float64(0)
	if g.totalWindows > 0 {
		activePct = float64(g.activeWindows) / float64(g.totalWindows) * 100
	}

	return GateStats{
		Threshold:        g.threshold,
		TotalWindows:     g.totalWindows,
		ActiveWindows:    g.activeWindows,
		ActivePercentage: activePct,
	}
}

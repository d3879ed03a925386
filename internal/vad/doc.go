// Package vad provides energy-based voice activity detection.
// It computes the RMS amplitude of a window over samples normalized to
// [-1, 1] and compares it against a configurable silence threshold.
package vad

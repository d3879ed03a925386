// Package capture provides continuous microphone capture. It enumerates
// PortAudio input devices, opens a mono PCM-16 stream on the selected one,
// and hands out fixed-size frames of raw little-endian bytes.
package capture

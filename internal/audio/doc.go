// Package audio handles PCM audio buffering and format conversion.
// It accumulates capture frames into fixed-duration windows for transcription
// and provides WAV encoding for engine uploads and on-disk capture dumps.
package audio

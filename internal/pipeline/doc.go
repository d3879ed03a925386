// Package pipeline coordinates the three stages of the typing loop: capture,
// transcription, and injection. Stages run as goroutines connected by
// bounded queues; stopping drains queued work before shutdown, bounded by a
// grace timeout.
package pipeline

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the typing pipeline. A nil
// *Metrics is valid: every Record method is a no-op, which keeps metrics
// optional in tests without re-registering collectors.
type Metrics struct {
	// Capture metrics
	FramesCaptured prometheus.Counter
	BytesCaptured  prometheus.Counter
	AudioQueueSize prometheus.Gauge

	// Window metrics
	WindowsEmitted  prometheus.Counter
	WindowsGated    prometheus.Counter
	WindowsAccepted prometheus.Counter
	WindowDuration  prometheus.Histogram
	WindowRMS       prometheus.Histogram

	// Engine metrics
	EngineRequests  prometheus.Counter
	EngineSuccesses prometheus.Counter
	EngineFailures  prometheus.Counter
	EngineDuration  prometheus.Histogram

	// Text metrics
	FragmentsEmitted prometheus.Counter
	FragmentsDropped prometheus.Counter
	FragmentLength   prometheus.Histogram

	// Injection metrics
	InjectionsDone    prometheus.Counter
	InjectionFailures prometheus.Counter
	TextQueueSize     prometheus.Gauge

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Capture metrics
		FramesCaptured: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicetype_frames_captured_total",
			Help: "Total number of capture frames read from the microphone",
		}),
		BytesCaptured: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicetype_bytes_captured_total",
			Help: "Total number of PCM bytes read from the microphone",
		}),
		AudioQueueSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "voicetype_audio_queue_size",
			Help: "Current number of frames waiting in the audio queue",
		}),

		// Window metrics
		WindowsEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicetype_windows_emitted_total",
			Help: "Total number of audio windows emitted by the accumulator",
		}),
		WindowsGated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicetype_windows_gated_total",
			Help: "Total number of windows dropped as silence by the energy gate",
		}),
		WindowsAccepted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicetype_windows_accepted_total",
			Help: "Total number of windows that passed the energy gate",
		}),
		WindowDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicetype_window_duration_seconds",
			Help:    "Playback duration of emitted audio windows",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s to ~2 minutes
		}),
		WindowRMS: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicetype_window_rms",
			Help:    "RMS amplitude of emitted audio windows",
			Buckets: prometheus.LinearBuckets(0, 0.05, 11), // 0.0 to 0.5
		}),

		// Engine metrics
		EngineRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicetype_engine_requests_total",
			Help: "Total number of transcription requests sent to the engine",
		}),
		EngineSuccesses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicetype_engine_successes_total",
			Help: "Total number of successful transcription requests",
		}),
		EngineFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicetype_engine_failures_total",
			Help: "Total number of failed transcription requests",
		}),
		EngineDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicetype_engine_duration_seconds",
			Help:    "Duration of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),

		// Text metrics
		FragmentsEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicetype_fragments_emitted_total",
			Help: "Total number of text fragments queued for injection",
		}),
		FragmentsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicetype_fragments_dropped_total",
			Help: "Total number of transcripts dropped by the acceptance filter",
		}),
		FragmentLength: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicetype_fragment_length_chars",
			Help:    "Length of emitted text fragments in characters",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1 to 512 chars
		}),

		// Injection metrics
		InjectionsDone: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicetype_injections_total",
			Help: "Total number of fragments injected into the focused window",
		}),
		InjectionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicetype_injection_failures_total",
			Help: "Total number of failed injection attempts",
		}),
		TextQueueSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "voicetype_text_queue_size",
			Help: "Current number of fragments waiting in the text queue",
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voicetype_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voicetype_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voicetype_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordFrameCaptured records one capture frame
func (m *Metrics) RecordFrameCaptured(sizeBytes int) {
	if m == nil {
		return
	}
	m.FramesCaptured.Inc()
	m.BytesCaptured.Add(float64(sizeBytes))
}

// SetAudioQueueSize sets the current audio queue depth
func (m *Metrics) SetAudioQueueSize(size int) {
	if m == nil {
		return
	}
	m.AudioQueueSize.Set(float64(size))
}

// RecordWindowEmitted records one window emitted by the accumulator
func (m *Metrics) RecordWindowEmitted(durationSeconds, rms float64) {
	if m == nil {
		return
	}
	m.WindowsEmitted.Inc()
	m.WindowDuration.Observe(durationSeconds)
	m.WindowRMS.Observe(rms)
}

// RecordWindowGated increments the silence-gated windows counter
func (m *Metrics) RecordWindowGated() {
	if m == nil {
		return
	}
	m.WindowsGated.Inc()
}

// RecordWindowAccepted increments the accepted windows counter
func (m *Metrics) RecordWindowAccepted() {
	if m == nil {
		return
	}
	m.WindowsAccepted.Inc()
}

// RecordEngineRequest increments the engine requests counter
func (m *Metrics) RecordEngineRequest() {
	if m == nil {
		return
	}
	m.EngineRequests.Inc()
}

// RecordEngineSuccess records a successful transcription
func (m *Metrics) RecordEngineSuccess(durationSeconds float64) {
	if m == nil {
		return
	}
	m.EngineSuccesses.Inc()
	m.EngineDuration.Observe(durationSeconds)
}

// RecordEngineFailure records a failed transcription
func (m *Metrics) RecordEngineFailure(durationSeconds float64) {
	if m == nil {
		return
	}
	m.EngineFailures.Inc()
	m.EngineDuration.Observe(durationSeconds)
}

// RecordFragmentEmitted records one fragment queued for injection
func (m *Metrics) RecordFragmentEmitted(lengthChars int) {
	if m == nil {
		return
	}
	m.FragmentsEmitted.Inc()
	m.FragmentLength.Observe(float64(lengthChars))
}

// RecordFragmentDropped increments the dropped transcripts counter
func (m *Metrics) RecordFragmentDropped() {
	if m == nil {
		return
	}
	m.FragmentsDropped.Inc()
}

// RecordInjection records one injection attempt
func (m *Metrics) RecordInjection(success bool) {
	if m == nil {
		return
	}
	if success {
		m.InjectionsDone.Inc()
	} else {
		m.InjectionFailures.Inc()
	}
}

// SetTextQueueSize sets the current text queue depth
func (m *Metrics) SetTextQueueSize(size int) {
	if m == nil {
		return
	}
	m.TextQueueSize.Set(float64(size))
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}

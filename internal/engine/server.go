package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sync"
	"time"

	"github.com/rkmax/voicetype/internal/audio"
)

// ServerEngine sends windows to a self-hosted transcription server speaking
// the multipart transcription API (whisper-server and compatible services).
// One request is issued per window; a failed window is never retried, and
// the next window is an independent attempt.
type ServerEngine struct {
	config     Config
	httpClient *http.Client

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// serverResponse is the JSON body returned by the transcription server.
type serverResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// EngineStats represents per-backend request statistics.
type EngineStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
}

// NewServerEngine creates an HTTP client for a transcription server.
func NewServerEngine(cfg Config) (*ServerEngine, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	httpClient := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &ServerEngine{
		config:     cfg,
		httpClient: httpClient,
	}, nil
}

// Name returns the backend name.
func (e *ServerEngine) Name() string { return BackendServer }

// Ping checks that the endpoint is reachable. Any HTTP response counts as
// reachable; only transport failures are reported.
func (e *ServerEngine) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.Endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create probe request: %w", err)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("transcription server unreachable: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return nil
}

// Transcribe uploads one window as multipart WAV and returns the transcript.
func (e *ServerEngine) Transcribe(ctx context.Context, w *audio.Window, language string) (string, error) {
	startTime := time.Now()
	e.incrementTotalRequests()

	body, contentType, err := e.createMultipartRequest(w, language)
	if err != nil {
		e.incrementFailedRequests()
		return "", fmt.Errorf("failed to create multipart request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.Endpoint, body)
	if err != nil {
		e.incrementFailedRequests()
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	if e.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.config.APIKey)
	}

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		e.incrementFailedRequests()
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		e.incrementFailedRequests()
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		e.incrementFailedRequests()
		return "", fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed serverResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		e.incrementFailedRequests()
		return "", fmt.Errorf("failed to parse response JSON: %w", err)
	}

	e.recordSuccess(time.Since(startTime))
	return parsed.Text, nil
}

// createMultipartRequest builds a multipart/form-data body with the window
// encoded as a WAV file plus transcription parameters.
func (e *ServerEngine) createMultipartRequest(w *audio.Window, language string) (io.Reader, string, error) {
	wavData, err := audio.EncodeWAV(w.PCM, w.SampleRate)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode window: %w", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fileWriter, err := writer.CreateFormFile("file", fmt.Sprintf("%s.wav", w.ID))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := fileWriter.Write(wavData); err != nil {
		return nil, "", fmt.Errorf("failed to write audio data: %w", err)
	}

	fields := map[string]string{
		"response_format": "json",
	}
	if e.config.Model != "" {
		fields["model"] = e.config.Model
	}
	if language != "" {
		fields["language"] = language
	}

	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", key, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return &buf, writer.FormDataContentType(), nil
}

// Close shuts down idle connections.
func (e *ServerEngine) Close() error {
	e.httpClient.CloseIdleConnections()
	return nil
}

func (e *ServerEngine) incrementTotalRequests() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.totalRequests++
}

func (e *ServerEngine) incrementFailedRequests() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failedRequests++
}

func (e *ServerEngine) recordSuccess(responseTime time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.successRequests++

	// Simple moving average
	if e.avgResponseTime == 0 {
		e.avgResponseTime = responseTime
	} else {
		e.avgResponseTime = (e.avgResponseTime + responseTime) / 2
	}
}

// GetStats returns current request statistics.
func (e *ServerEngine) GetStats() EngineStats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	successRate := float64(0)
	if e.totalRequests > 0 {
		successRate = float64(e.successRequests) / float64(e.totalRequests) * 100
	}

	return EngineStats{
		TotalRequests:   e.totalRequests,
		SuccessRequests: e.successRequests,
		FailedRequests:  e.failedRequests,
		SuccessRate:     successRate,
		AvgResponseTime: e.avgResponseTime,
	}
}

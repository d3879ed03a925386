package engine

import (
	"bytes"
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/rkmax/voicetype/internal/audio"
)

const defaultOpenAIModel = openai.Whisper1

// OpenAIEngine transcribes windows with the hosted OpenAI transcription API.
type OpenAIEngine struct {
	client *openai.Client
	model  string
}

// NewOpenAIEngine creates the hosted API backend.
func NewOpenAIEngine(cfg Config) (*OpenAIEngine, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key cannot be empty")
	}

	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientCfg.BaseURL = cfg.Endpoint
	}

	return &OpenAIEngine{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
	}, nil
}

// Name returns the backend name.
func (e *OpenAIEngine) Name() string { return BackendOpenAI }

// Transcribe uploads one window as an in-memory WAV file.
func (e *OpenAIEngine) Transcribe(ctx context.Context, w *audio.Window, language string) (string, error) {
	wavData, err := audio.EncodeWAV(w.PCM, w.SampleRate)
	if err != nil {
		return "", fmt.Errorf("failed to encode window: %w", err)
	}

	req := openai.AudioRequest{
		Model:    e.model,
		FilePath: fmt.Sprintf("%s.wav", w.ID),
		Reader:   bytes.NewReader(wavData),
		Language: language,
	}

	resp, err := e.client.CreateTranscription(ctx, req)
	if err != nil {
		return "", fmt.Errorf("transcription request failed: %w", err)
	}

	return resp.Text, nil
}

// Close is a no-op; the API client holds no persistent resources.
func (e *OpenAIEngine) Close() error { return nil }

package engine

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rkmax/voicetype/internal/audio"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testWindow() *audio.Window {
	return &audio.Window{
		ID:         "test-window",
		PCM:        make([]byte, 3200),
		SampleRate: 16000,
		CreatedAt:  time.Now(),
	}
}

func TestNewServerEngine(t *testing.T) {
	if _, err := NewServerEngine(Config{}); err == nil {
		t.Error("Expected error for empty endpoint")
	}

	e, err := NewServerEngine(Config{Endpoint: "http://localhost:9000/"})
	if err != nil {
		t.Fatalf("NewServerEngine failed: %v", err)
	}
	defer e.Close()

	if e.Name() != BackendServer {
		t.Errorf("Name = %q, want %q", e.Name(), BackendServer)
	}
}

func TestServerEngineTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Method = %s, want POST", r.Method)
		}

		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Fatalf("Failed to parse multipart form: %v", err)
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("Missing file field: %v", err)
		}
		defer file.Close()

		if header.Filename != "test-window.wav" {
			t.Errorf("Filename = %q, want test-window.wav", header.Filename)
		}
		if got := r.FormValue("language"); got != "en" {
			t.Errorf("language field = %q, want en", got)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("model field = %q, want whisper-1", got)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("Authorization = %q, want Bearer secret", auth)
		}

		json.NewEncoder(w).Encode(map[string]string{"text": "hello world"})
	}))
	defer srv.Close()

	e, err := NewServerEngine(Config{
		Endpoint: srv.URL,
		APIKey:   "secret",
		Model:    "whisper-1",
	})
	if err != nil {
		t.Fatalf("NewServerEngine failed: %v", err)
	}
	defer e.Close()

	text, err := e.Transcribe(context.Background(), testWindow(), "en")
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if text != "hello world" {
		t.Errorf("Transcribe = %q, want %q", text, "hello world")
	}

	stats := e.GetStats()
	if stats.TotalRequests != 1 || stats.SuccessRequests != 1 {
		t.Errorf("Stats = %+v, want 1 total / 1 success", stats)
	}
}

func TestServerEngineHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	e, err := NewServerEngine(Config{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("NewServerEngine failed: %v", err)
	}
	defer e.Close()

	if _, err := e.Transcribe(context.Background(), testWindow(), ""); err == nil {
		t.Fatal("Expected error for HTTP 503")
	}

	stats := e.GetStats()
	if stats.FailedRequests != 1 {
		t.Errorf("FailedRequests = %d, want 1", stats.FailedRequests)
	}
}

func TestServerEngineNoRetry(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		http.Error(w, "fail", http.StatusInternalServerError)
	}))
	defer srv.Close()

	e, err := NewServerEngine(Config{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("NewServerEngine failed: %v", err)
	}
	defer e.Close()

	e.Transcribe(context.Background(), testWindow(), "")

	// A failed window is dropped, never retried.
	if requests != 1 {
		t.Errorf("Server saw %d requests, want 1", requests)
	}
}

func TestServerEngineBadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	e, err := NewServerEngine(Config{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("NewServerEngine failed: %v", err)
	}
	defer e.Close()

	if _, err := e.Transcribe(context.Background(), testWindow(), ""); err == nil {
		t.Fatal("Expected error for invalid JSON body")
	}
}

func TestServerEnginePing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Any response, even an error status, means the server is there.
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	e, err := NewServerEngine(Config{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("NewServerEngine failed: %v", err)
	}
	defer e.Close()

	if err := e.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed against a responding server: %v", err)
	}

	unreachable, err := NewServerEngine(Config{
		Endpoint: "http://127.0.0.1:1/",
		Timeout:  500 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewServerEngine failed: %v", err)
	}
	defer unreachable.Close()

	if err := unreachable.Ping(context.Background()); err == nil {
		t.Error("Ping succeeded against an unreachable endpoint")
	}
}

func TestNewUnknownBackend(t *testing.T) {
	if _, err := New(Config{Backend: "bogus"}); err == nil {
		t.Error("Expected error for unknown backend")
	}
}

func TestSelectFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	// Preferred backend reachable: it is used as-is.
	e, err := Select(context.Background(), Config{
		Backend:  BackendServer,
		Endpoint: srv.URL,
	}, discardLogger())
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	defer e.Close()

	if e.Name() != BackendServer {
		t.Errorf("Selected backend = %q, want %q", e.Name(), BackendServer)
	}
}

func TestSelectFallsBackWhenUnreachable(t *testing.T) {
	e, err := Select(context.Background(), Config{
		Backend:  BackendServer,
		Endpoint: "http://127.0.0.1:1/",
		Timeout:  500 * time.Millisecond,
		APIKey:   "sk-test",
		Fallback: BackendOpenAI,
	}, discardLogger())
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	defer e.Close()

	if e.Name() != BackendOpenAI {
		t.Errorf("Selected backend = %q, want %q", e.Name(), BackendOpenAI)
	}
}

func TestSelectNoFallback(t *testing.T) {
	_, err := Select(context.Background(), Config{
		Backend:  BackendServer,
		Endpoint: "http://127.0.0.1:1/",
		Timeout:  500 * time.Millisecond,
	}, discardLogger())
	if err == nil {
		t.Fatal("Expected error with no fallback configured")
	}
}

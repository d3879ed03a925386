// Command stub-engine is a local fake transcription server for exercising
// the typing pipeline without a real speech model. It accepts the multipart
// transcription API and replies with a canned transcript that grows with
// every request, which drives the incremental delta path end to end.
package main

import (
	"encoding/json"
	"flag"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"
)

var phrases = []string{
	"hello",
	"hello world",
	"hello world this",
	"hello world this is",
	"hello world this is a test",
}

type transcriptionResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
}

type stubServer struct {
	delay time.Duration

	mu       sync.Mutex
	requests int
}

func (s *stubServer) transcribeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(10 << 20); err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	language := r.FormValue("language")
	model := r.FormValue("model")

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Error getting audio file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	audioData, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Error reading audio file", http.StatusInternalServerError)
		return
	}

	s.mu.Lock()
	n := s.requests
	s.requests++
	s.mu.Unlock()

	text := phrases[n%len(phrases)]

	log.Printf("request %d: file=%s size=%d model=%q language=%q -> %q",
		n, header.Filename, len(audioData), model, language, text)

	// Simulate model latency
	time.Sleep(s.delay)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(transcriptionResponse{
		Text:     text,
		Language: language,
		Duration: float64(len(audioData)) / 32000.0, // 16 kHz PCM-16
	})
}

func main() {
	addr := flag.String("addr", ":9000", "Listen address")
	delay := flag.Duration("delay", 200*time.Millisecond, "Simulated model latency")
	flag.Parse()

	srv := &stubServer{delay: *delay}

	http.HandleFunc("/", srv.transcribeHandler)

	endpoint := *addr
	if strings.HasPrefix(endpoint, ":") {
		endpoint = "localhost" + endpoint
	}
	log.Printf("Stub transcription server listening on %s", *addr)
	log.Printf("Point the engine endpoint at: http://%s/", endpoint)

	if err := http.ListenAndServe(*addr, nil); err != nil {
		log.Fatal("Server failed to start:", err)
	}
}

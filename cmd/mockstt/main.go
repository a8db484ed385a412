package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync/atomic"
	"time"
)

// Canned fragments cycle per request so a live session shows a growing,
// varied transcript.
var fragments = []string{
	"today we will cover the fundamentals of signal processing",
	"the discrete Fourier transform maps samples into the frequency domain",
	"note how the window length trades time resolution for frequency resolution",
	"let us walk through a worked example on the board",
	"any questions before we move on to the next section",
}

var (
	requestCount atomic.Uint64
	delay        time.Duration
)

type transcriptionResponse struct {
	Text        string    `json:"text"`
	ProcessedAt time.Time `json:"processed_at"`
}

func transcribeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Parse multipart form
	err := r.ParseMultipartForm(10 << 20) // 10 MB
	if err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	requestID := r.FormValue("request_id")
	sampleRate := r.FormValue("sample_rate")
	language := r.FormValue("language")
	model := r.FormValue("model")
	prompt := r.FormValue("prompt")

	// Get audio file
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

	log.Printf("🎤 TRANSCRIPTION REQUEST RECEIVED:")
	log.Printf("    Request ID: %s", requestID)
	log.Printf("    Filename: %s", header.Filename)
	log.Printf("    Audio Size: %d bytes", len(audioData))
	log.Printf("    Sample Rate: %s Hz", sampleRate)
	log.Printf("    Language: %s", language)
	log.Printf("    Model: %s", model)
	if prompt != "" {
		log.Printf("    Prompt: %q", prompt)
	}

	// Simulate processing time
	if delay > 0 {
		time.Sleep(delay)
	}

	n := requestCount.Add(1)
	response := transcriptionResponse{
		Text:        fragments[(n-1)%uint64(len(fragments))],
		ProcessedAt: time.Now(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)

	log.Printf("✅ TRANSCRIPTION RESPONSE SENT: '%s'", response.Text)
	log.Println("---")
}

func main() {
	port := flag.Int("port", 9000, "Port to listen on")
	flag.DurationVar(&delay, "delay", 200*time.Millisecond, "Simulated processing time per request")
	flag.Parse()

	http.HandleFunc("/transcribe", transcribeHandler)

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("🚀 Mock Transcription Server starting on %s", addr)
	log.Printf("📡 Endpoint: http://localhost%s/transcribe", addr)
	log.Println("💡 Point transcription.endpoint at it and set transcription.backend to http")

	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatal("Server failed to start:", err)
	}
}

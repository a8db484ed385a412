package transcribe

import (
	"context"
	"fmt"
	"time"
)

// Supported backend names for Config.Backend.
const (
	BackendHTTP   = "http"
	BackendOpenAI = "openai"
)

// Request carries one chunk's audio to a transcription backend.
type Request struct {
	// Audio is a complete WAV file (16-bit mono PCM).
	Audio      []byte
	SampleRate int
	// Language is an optional ISO 639-1 hint for the recognizer.
	Language string
	// Prompt is optional context text that biases the recognizer, typically
	// the tail of the transcript so far.
	Prompt string
}

// Result is the text a backend produced for one request.
type Result struct {
	Text string
}

// Transcriber converts recorded audio to text. Implementations must be
// safe for concurrent use; the dispatcher calls Transcribe from multiple
// goroutines.
type Transcriber interface {
	Transcribe(ctx context.Context, request Request) (Result, error)
}

// Config selects and tunes a transcription backend.
type Config struct {
	// Backend is one of BackendHTTP or BackendOpenAI.
	Backend string
	// Endpoint is the service URL for the HTTP backend, or an alternative
	// base URL for the OpenAI backend (empty means api.openai.com).
	Endpoint string
	APIKey   string
	// Model names the recognition model for the OpenAI backend.
	Model   string
	Timeout time.Duration
}

// New creates the transcriber named by config.Backend.
func New(config Config) (Transcriber, error) {
	switch config.Backend {
	case BackendHTTP:
		return NewHTTPTranscriber(config)
	case BackendOpenAI:
		return NewOpenAITranscriber(config)
	default:
		return nil, fmt.Errorf("unknown transcription backend %q", config.Backend)
	}
}

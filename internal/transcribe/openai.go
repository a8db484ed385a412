package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAITranscriber sends chunk audio to the OpenAI transcription API or
// any service speaking the same protocol.
type OpenAITranscriber struct {
	client *openai.Client
	model  string
}

// NewOpenAITranscriber creates an OpenAI-backed transcriber.
func NewOpenAITranscriber(config Config) (*OpenAITranscriber, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key cannot be empty")
	}

	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	model := config.Model
	if model == "" {
		model = openai.Whisper1
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.Endpoint != "" {
		clientConfig.BaseURL = config.Endpoint
	}
	clientConfig.HTTPClient = &http.Client{Timeout: config.Timeout}

	return &OpenAITranscriber{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
	}, nil
}

// Transcribe submits the request's audio and returns the recognized text.
func (o *OpenAITranscriber) Transcribe(ctx context.Context, request Request) (Result, error) {
	resp, err := o.client.CreateTranscription(ctx, openai.AudioRequest{
		Model: o.model,
		// FilePath only names the upload; the audio comes from Reader.
		FilePath: "chunk.wav",
		Reader:   bytes.NewReader(request.Audio),
		Language: request.Language,
		Prompt:   request.Prompt,
	})
	if err != nil {
		return Result{}, fmt.Errorf("openai transcription failed: %w", err)
	}

	return Result{Text: strings.TrimSpace(resp.Text)}, nil
}

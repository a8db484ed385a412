package transcribe

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewHTTPTranscriberValidation(t *testing.T) {
	if _, err := NewHTTPTranscriber(Config{Backend: BackendHTTP}); err == nil {
		t.Error("Expected error for empty endpoint")
	}
}

func TestHTTPTranscriberSuccess(t *testing.T) {
	audio := []byte("RIFF fake wav payload")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret-key" {
			t.Errorf("Authorization header = %q, want bearer token", got)
		}

		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Errorf("Failed to parse multipart form: %v", err)
			return
		}

		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("Missing file field: %v", err)
			return
		}
		defer file.Close()

		uploaded, err := io.ReadAll(file)
		if err != nil {
			t.Errorf("Failed to read uploaded file: %v", err)
			return
		}
		if !bytes.Equal(uploaded, audio) {
			t.Errorf("Uploaded audio does not match: got %d bytes, want %d", len(uploaded), len(audio))
		}

		if got := r.FormValue("sample_rate"); got != "16000" {
			t.Errorf("sample_rate field = %q, want 16000", got)
		}
		if got := r.FormValue("language"); got != "en" {
			t.Errorf("language field = %q, want en", got)
		}
		if got := r.FormValue("prompt"); got != "previous words" {
			t.Errorf("prompt field = %q, want previous words", got)
		}
		if got := r.FormValue("response_format"); got != "json" {
			t.Errorf("response_format field = %q, want json", got)
		}
		if got := r.FormValue("request_id"); got == "" {
			t.Error("request_id field is empty")
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text": "  hello from the lecture  "}`))
	}))
	defer server.Close()

	transcriber, err := NewHTTPTranscriber(Config{
		Backend:  BackendHTTP,
		Endpoint: server.URL,
		APIKey:   "secret-key",
	})
	if err != nil {
		t.Fatalf("Failed to create transcriber: %v", err)
	}

	result, err := transcriber.Transcribe(context.Background(), Request{
		Audio:      audio,
		SampleRate: 16000,
		Language:   "en",
		Prompt:     "previous words",
	})
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}

	if result.Text != "hello from the lecture" {
		t.Errorf("Text = %q, want trimmed response text", result.Text)
	}
}

func TestHTTPTranscriberOmitsAuthWithoutKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "" {
			t.Errorf("Authorization header = %q, want empty", got)
		}
		w.Write([]byte(`{"text": "ok"}`))
	}))
	defer server.Close()

	transcriber, err := NewHTTPTranscriber(Config{Backend: BackendHTTP, Endpoint: server.URL})
	if err != nil {
		t.Fatalf("Failed to create transcriber: %v", err)
	}

	if _, err := transcriber.Transcribe(context.Background(), Request{Audio: []byte{1}}); err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
}

func TestHTTPTranscriberStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "service overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	transcriber, err := NewHTTPTranscriber(Config{Backend: BackendHTTP, Endpoint: server.URL})
	if err != nil {
		t.Fatalf("Failed to create transcriber: %v", err)
	}

	_, err = transcriber.Transcribe(context.Background(), Request{Audio: []byte{1}})
	if err == nil {
		t.Fatal("Expected error for 503 response")
	}

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Expected StatusError, got %T: %v", err, err)
	}
	if statusErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d, want 503", statusErr.StatusCode)
	}
	if statusErr.Body != "service overloaded" {
		t.Errorf("Body = %q, want response body", statusErr.Body)
	}
}

func TestHTTPTranscriberInvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json at all"))
	}))
	defer server.Close()

	transcriber, err := NewHTTPTranscriber(Config{Backend: BackendHTTP, Endpoint: server.URL})
	if err != nil {
		t.Fatalf("Failed to create transcriber: %v", err)
	}

	if _, err := transcriber.Transcribe(context.Background(), Request{Audio: []byte{1}}); err == nil {
		t.Error("Expected error for unparseable response")
	}
}

func TestHTTPTranscriberContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer server.Close()

	transcriber, err := NewHTTPTranscriber(Config{Backend: BackendHTTP, Endpoint: server.URL})
	if err != nil {
		t.Fatalf("Failed to create transcriber: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := transcriber.Transcribe(ctx, Request{Audio: []byte{1}}); err == nil {
		t.Error("Expected error after context deadline")
	}
}

func TestHTTPTranscriberStats(t *testing.T) {
	failNext := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failNext {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"text": "ok"}`))
	}))
	defer server.Close()

	transcriber, err := NewHTTPTranscriber(Config{Backend: BackendHTTP, Endpoint: server.URL})
	if err != nil {
		t.Fatalf("Failed to create transcriber: %v", err)
	}

	if _, err := transcriber.Transcribe(context.Background(), Request{Audio: []byte{1}}); err != nil {
		t.Fatalf("First request failed: %v", err)
	}

	failNext = true
	if _, err := transcriber.Transcribe(context.Background(), Request{Audio: []byte{1}}); err == nil {
		t.Fatal("Expected second request to fail")
	}

	stats := transcriber.Stats()
	if stats.TotalRequests != 2 {
		t.Errorf("TotalRequests = %d, want 2", stats.TotalRequests)
	}
	if stats.SuccessRequests != 1 {
		t.Errorf("SuccessRequests = %d, want 1", stats.SuccessRequests)
	}
	if stats.FailedRequests != 1 {
		t.Errorf("FailedRequests = %d, want 1", stats.FailedRequests)
	}
	if stats.SuccessRate != 50 {
		t.Errorf("SuccessRate = %f, want 50", stats.SuccessRate)
	}
}

func TestNewTranscriberFactory(t *testing.T) {
	transcriber, err := New(Config{Backend: BackendHTTP, Endpoint: "http://localhost:9000/transcribe"})
	if err != nil {
		t.Fatalf("Failed to create http backend: %v", err)
	}
	if _, ok := transcriber.(*HTTPTranscriber); !ok {
		t.Errorf("Backend %q produced %T, want *HTTPTranscriber", BackendHTTP, transcriber)
	}

	transcriber, err = New(Config{Backend: BackendOpenAI, APIKey: "key"})
	if err != nil {
		t.Fatalf("Failed to create openai backend: %v", err)
	}
	if _, ok := transcriber.(*OpenAITranscriber); !ok {
		t.Errorf("Backend %q produced %T, want *OpenAITranscriber", BackendOpenAI, transcriber)
	}

	if _, err := New(Config{Backend: "carrier-pigeon"}); err == nil {
		t.Error("Expected error for unknown backend")
	}
}

func TestNewOpenAITranscriberValidation(t *testing.T) {
	if _, err := NewOpenAITranscriber(Config{Backend: BackendOpenAI}); err == nil {
		t.Error("Expected error for empty API key")
	}
}

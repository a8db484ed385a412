package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// StatusError is returned when the transcription service answers with a
// non-2xx status. Callers can errors.As on it to inspect the code.
type StatusError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("transcription service returned HTTP %d: %s", e.StatusCode, e.Body)
}

// HTTPTranscriber sends chunk audio to a Whisper-style multipart endpoint.
// It performs exactly one attempt per request; a failed chunk is reported,
// not retried, so a slow service cannot back the pipeline up behind
// redelivery of stale audio.
type HTTPTranscriber struct {
	config     Config
	httpClient *http.Client

	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// HTTPStats reports request counters for monitoring.
type HTTPStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
}

// httpResponse is the JSON body a Whisper-compatible service returns.
type httpResponse struct {
	Text string `json:"text"`
}

// NewHTTPTranscriber creates an HTTP multipart transcriber.
func NewHTTPTranscriber(config Config) (*HTTPTranscriber, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &HTTPTranscriber{
		config:     config,
		httpClient: httpClient,
	}, nil
}

// Transcribe posts the request's audio as multipart form data and returns
// the recognized text.
func (t *HTTPTranscriber) Transcribe(ctx context.Context, request Request) (Result, error) {
	startTime := time.Now()
	t.incrementTotalRequests()

	result, err := t.doRequest(ctx, request)
	if err != nil {
		t.incrementFailedRequests()
		return Result{}, err
	}

	t.incrementSuccessRequests()
	t.updateAvgResponseTime(time.Since(startTime))
	return result, nil
}

// doRequest performs a single HTTP request to the transcription service.
func (t *HTTPTranscriber) doRequest(ctx context.Context, request Request) (Result, error) {
	body, contentType, err := t.createMultipartRequest(request)
	if err != nil {
		return Result{}, fmt.Errorf("failed to create multipart request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.config.Endpoint, body)
	if err != nil {
		return Result{}, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "lecturescript/1.0")
	if t.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+t.config.APIKey)
	}

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	var parsed httpResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return Result{}, fmt.Errorf("failed to parse response JSON: %w", err)
	}

	return Result{Text: strings.TrimSpace(parsed.Text)}, nil
}

// createMultipartRequest builds the multipart/form-data body.
func (t *HTTPTranscriber) createMultipartRequest(request Request) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	requestID := uuid.NewString()

	if len(request.Audio) > 0 {
		fileWriter, err := writer.CreateFormFile("file", requestID+".wav")
		if err != nil {
			return nil, "", fmt.Errorf("failed to create form file: %w", err)
		}
		if _, err := fileWriter.Write(request.Audio); err != nil {
			return nil, "", fmt.Errorf("failed to write audio data: %w", err)
		}
	}

	fields := map[string]string{
		"sample_rate":       fmt.Sprintf("%d", request.SampleRate),
		"response_format":   "json",
		"request_id":        requestID,
		"request_timestamp": time.Now().Format(time.RFC3339),
	}

	if request.Language != "" {
		fields["language"] = request.Language
	}
	if request.Prompt != "" {
		fields["prompt"] = request.Prompt
	}
	if t.config.Model != "" {
		fields["model"] = t.config.Model
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

func (t *HTTPTranscriber) incrementTotalRequests() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totalRequests++
}

func (t *HTTPTranscriber) incrementSuccessRequests() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.successRequests++
}

func (t *HTTPTranscriber) incrementFailedRequests() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failedRequests++
}

func (t *HTTPTranscriber) updateAvgResponseTime(responseTime time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Simple moving average
	if t.avgResponseTime == 0 {
		t.avgResponseTime = responseTime
	} else {
		t.avgResponseTime = (t.avgResponseTime + responseTime) / 2
	}
}

// Stats returns current request counters.
func (t *HTTPTranscriber) Stats() HTTPStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	successRate := float64(0)
	if t.totalRequests > 0 {
		successRate = float64(t.successRequests) / float64(t.totalRequests) * 100
	}

	return HTTPStats{
		TotalRequests:   t.totalRequests,
		SuccessRequests: t.successRequests,
		FailedRequests:  t.failedRequests,
		SuccessRate:     successRate,
		AvgResponseTime: t.avgResponseTime,
	}
}

package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Soniccccccccxman/lecturescript-engine/internal/audio"
	"github.com/Soniccccccccxman/lecturescript-engine/internal/segment"
	"github.com/Soniccccccccxman/lecturescript-engine/internal/transcribe"
)

// Status is the terminal outcome of one submitted chunk.
type Status int

const (
	// StatusCompleted means the backend returned text for the chunk.
	StatusCompleted Status = iota
	// StatusFailed means the transcription attempt errored. The chunk is
	// not retried.
	StatusFailed
	// StatusSkipped means the chunk was dropped before submission, below
	// the viable duration or containing no speech.
	StatusSkipped
)

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Event reports the outcome of one submitted chunk. Events arrive in
// completion order, not submission order.
type Event struct {
	Index  int
	Status Status
	// Text is the recognized text for a completed chunk.
	Text string
	// Err is set for failed chunks.
	Err error
	// SkipReason names why a skipped chunk was dropped.
	SkipReason string
	// Elapsed is the transcription round-trip time for completed and
	// failed chunks.
	Elapsed time.Duration
}

// Config contains dispatcher tuning parameters.
type Config struct {
	// MaxConcurrent bounds how many transcription requests run at once.
	MaxConcurrent int
	// RequestTimeout bounds a single transcription round trip.
	RequestTimeout time.Duration
	// MinViableDuration is the shortest chunk worth a network round trip;
	// shorter chunks are skipped.
	MinViableDuration time.Duration
	// Language is an optional recognition language hint.
	Language string
}

// Dispatcher submits closed chunks for transcription on their own
// goroutines. A failure affects only its chunk: no retry, no effect on
// other in-flight work or on capture.
type Dispatcher struct {
	config      Config
	transcriber transcribe.Transcriber
	logger      *slog.Logger

	semaphore chan struct{}
	events    chan Event
	wg        sync.WaitGroup

	mu           sync.RWMutex
	promptSource func() string
	submitted    uint64
	completed    uint64
	failed       uint64
	skipped      uint64
	inFlight     int
}

// Stats reports dispatcher counters for monitoring.
type Stats struct {
	Submitted uint64 `json:"submitted"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
	Skipped   uint64 `json:"skipped"`
	InFlight  int    `json:"in_flight"`
}

// NewDispatcher creates a dispatcher sending chunks to the given backend.
func NewDispatcher(config Config, transcriber transcribe.Transcriber, logger *slog.Logger) (*Dispatcher, error) {
	if transcriber == nil {
		return nil, fmt.Errorf("transcriber cannot be nil")
	}

	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 4
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 30 * time.Second
	}
	if config.MinViableDuration <= 0 {
		config.MinViableDuration = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		config:      config,
		transcriber: transcriber,
		logger:      logger,
		semaphore:   make(chan struct{}, config.MaxConcurrent),
		events:      make(chan Event, 128),
	}, nil
}

// SetPromptSource registers a callback supplying recognition context for
// each request, typically the tail of the merged transcript so far.
func (d *Dispatcher) SetPromptSource(source func() string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.promptSource = source
}

// Events returns the outcome channel. It is closed by Close after the
// last in-flight chunk has reported.
func (d *Dispatcher) Events() <-chan Event {
	return d.events
}

// Submit accepts a closed chunk and returns immediately. Viable chunks
// move to Dispatched and are transcribed off the caller's goroutine;
// skipped chunks stay Closed and only produce a skip event. The context
// bounds the wait for a free transcription slot.
func (d *Dispatcher) Submit(ctx context.Context, chunk *segment.Chunk) {
	d.mu.Lock()
	d.submitted++
	d.mu.Unlock()

	if reason := d.skipReason(chunk); reason != "" {
		d.mu.Lock()
		d.skipped++
		d.mu.Unlock()

		d.logger.Debug("Skipping chunk before dispatch",
			slog.Int("chunk_index", chunk.Index),
			slog.String("reason", reason),
			slog.Float64("duration", chunk.EndTime.Sub(chunk.StartTime).Seconds()),
		)

		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.events <- Event{Index: chunk.Index, Status: StatusSkipped, SkipReason: reason}
		}()
		return
	}

	if err := chunk.Advance(segment.StateDispatched); err != nil {
		d.logger.Warn("Chunk state advance failed",
			slog.Int("chunk_index", chunk.Index),
			slog.String("error", err.Error()),
		)
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.transcribeChunk(ctx, chunk)
	}()
}

// skipReason returns why the chunk should not be dispatched, or "" when
// it is viable.
func (d *Dispatcher) skipReason(chunk *segment.Chunk) string {
	if !chunk.SpeechDetected {
		return "no_speech"
	}
	if chunk.EndTime.Sub(chunk.StartTime) < d.config.MinViableDuration {
		return "below_min_duration"
	}
	return ""
}

// transcribeChunk runs one transcription round trip and reports the
// outcome on the event channel.
func (d *Dispatcher) transcribeChunk(ctx context.Context, chunk *segment.Chunk) {
	select {
	case d.semaphore <- struct{}{}:
		defer func() { <-d.semaphore }()
	case <-ctx.Done():
		d.finishChunk(chunk, Event{
			Index:  chunk.Index,
			Status: StatusFailed,
			Err:    fmt.Errorf("chunk %d abandoned waiting for transcription slot: %w", chunk.Index, ctx.Err()),
		})
		return
	}

	d.mu.Lock()
	d.inFlight++
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.inFlight--
		d.mu.Unlock()
	}()

	samples := audio.SamplesFromBytes(chunk.PCM)
	wav, err := audio.EncodeWAV(samples, chunk.SampleRate)
	if err != nil {
		d.finishChunk(chunk, Event{
			Index:  chunk.Index,
			Status: StatusFailed,
			Err:    fmt.Errorf("chunk %d WAV encoding failed: %w", chunk.Index, err),
		})
		return
	}

	d.logger.Info("Dispatching chunk for transcription",
		slog.Int("chunk_index", chunk.Index),
		slog.String("close_reason", chunk.Reason.String()),
		slog.Float64("duration", chunk.EndTime.Sub(chunk.StartTime).Seconds()),
		slog.Int("audio_bytes", len(wav)),
	)

	requestCtx, cancel := context.WithTimeout(ctx, d.config.RequestTimeout)
	defer cancel()

	startTime := time.Now()
	result, err := d.transcriber.Transcribe(requestCtx, transcribe.Request{
		Audio:      wav,
		SampleRate: chunk.SampleRate,
		Language:   d.config.Language,
		Prompt:     d.prompt(),
	})
	elapsed := time.Since(startTime)

	if err != nil {
		d.finishChunk(chunk, Event{
			Index:   chunk.Index,
			Status:  StatusFailed,
			Err:     fmt.Errorf("chunk %d transcription failed: %w", chunk.Index, err),
			Elapsed: elapsed,
		})
		return
	}

	d.finishChunk(chunk, Event{
		Index:   chunk.Index,
		Status:  StatusCompleted,
		Text:    result.Text,
		Elapsed: elapsed,
	})
}

// finishChunk records the outcome, advances the chunk lifecycle, and
// emits the event.
func (d *Dispatcher) finishChunk(chunk *segment.Chunk, event Event) {
	target := segment.StateCompleted
	if event.Status == StatusFailed {
		target = segment.StateFailed
	}
	if err := chunk.Advance(target); err != nil {
		d.logger.Warn("Chunk state advance failed",
			slog.Int("chunk_index", chunk.Index),
			slog.String("error", err.Error()),
		)
	}

	d.mu.Lock()
	switch event.Status {
	case StatusCompleted:
		d.completed++
	case StatusFailed:
		d.failed++
	}
	d.mu.Unlock()

	if event.Err != nil {
		d.logger.Error("Chunk transcription failed",
			slog.Int("chunk_index", chunk.Index),
			slog.String("error", event.Err.Error()),
			slog.Float64("elapsed", event.Elapsed.Seconds()),
		)
	} else {
		d.logger.Info("Chunk transcription completed",
			slog.Int("chunk_index", chunk.Index),
			slog.Int("text_length", len(event.Text)),
			slog.Float64("elapsed", event.Elapsed.Seconds()),
		)
	}

	d.events <- event
}

// prompt returns the current recognition context, if a source is set.
func (d *Dispatcher) prompt() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.promptSource == nil {
		return ""
	}
	return d.promptSource()
}

// Drain blocks until every submitted chunk has reported an outcome, or
// the context expires.
func (d *Dispatcher) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		d.mu.RLock()
		inFlight := d.inFlight
		d.mu.RUnlock()
		return fmt.Errorf("dispatcher drain interrupted with %d requests in flight: %w", inFlight, ctx.Err())
	}
}

// Close closes the event channel. Call only after submissions have
// stopped; Close waits for in-flight work before closing.
func (d *Dispatcher) Close() {
	d.wg.Wait()
	close(d.events)
}

// Stats returns current dispatcher counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return Stats{
		Submitted: d.submitted,
		Completed: d.completed,
		Failed:    d.failed,
		Skipped:   d.skipped,
		InFlight:  d.inFlight,
	}
}

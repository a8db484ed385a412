package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Soniccccccccxman/lecturescript-engine/internal/audio"
	"github.com/Soniccccccccxman/lecturescript-engine/internal/capture"
	"github.com/Soniccccccccxman/lecturescript-engine/internal/config"
	"github.com/Soniccccccccxman/lecturescript-engine/internal/dispatch"
	"github.com/Soniccccccccxman/lecturescript-engine/internal/merge"
	"github.com/Soniccccccccxman/lecturescript-engine/internal/metrics"
	"github.com/Soniccccccccxman/lecturescript-engine/internal/quality"
	"github.com/Soniccccccccxman/lecturescript-engine/internal/segment"
	"github.com/Soniccccccccxman/lecturescript-engine/internal/session"
	"github.com/Soniccccccccxman/lecturescript-engine/internal/transcribe"
	"github.com/Soniccccccccxman/lecturescript-engine/internal/vad"
)

// ErrSessionConflict is returned from Start while another session holds
// the capture register. Unwrap with errors.As to *session.ConflictError
// for the active session id.
var ErrSessionConflict = errors.New("capture session already active")

// gapFlushInterval is how often the merger is checked for fragments stuck
// behind a missing predecessor.
const gapFlushInterval = time.Second

// SourceFactory opens a fresh capture source. Sources are single-use:
// every session consumes one and closes it on stop.
type SourceFactory func() (capture.Source, error)

// Engine wires the capture pipeline together: source buffers are cut into
// fixed analysis windows, each window becomes one tick through the
// classifier, segmenter and quality monitor, closed chunks go to the
// dispatcher, and dispatcher events feed the transcript merger.
//
// Tick timestamps advance on the sample clock (one window of samples per
// tick) rather than the wall clock, so boundary decisions depend only on
// the audio itself. Merge-side waiting uses the wall clock, since it
// measures network arrival, not audio time.
type Engine struct {
	config      *config.Config
	newSource   SourceFactory
	transcriber transcribe.Transcriber
	guard       *session.Guard
	metrics     *metrics.Metrics
	logger      *slog.Logger

	mu             sync.RWMutex
	run            *run
	last           *Stats
	lastTranscript string
	lastSpans      []merge.Span
	lastSession    *session.Info

	onChunkReady       func(*segment.Chunk)
	onMetricsTick      func(MetricsTick)
	onTranscriptUpdate func(TranscriptUpdate)
}

// Stats is a full pipeline telemetry snapshot. While a session runs it
// reflects live state; after a stop it is the final snapshot of the last
// session.
type Stats struct {
	Session    session.Info   `json:"session"`
	Classifier vad.Stats      `json:"classifier"`
	Segmenter  segment.Stats  `json:"segmenter"`
	Quality    quality.Stats  `json:"quality"`
	Dispatcher dispatch.Stats `json:"dispatcher"`
	Merger     merge.Stats    `json:"merger"`
}

// Handle identifies one started session. Stop accepts only the handle
// returned by the matching Start.
type Handle struct {
	r *run
}

// SessionID returns the session token this handle belongs to.
func (h *Handle) SessionID() string {
	return h.r.sess.ID
}

// run holds the per-session pipeline. A fresh one is built for every
// Start; nothing is reused between sessions.
type run struct {
	sess       *session.Session
	source     capture.Source
	windower   *audio.Windower
	classifier *vad.Classifier
	segmenter  *segment.Segmenter
	monitor    *quality.Monitor
	merger     *merge.Merger
	dispatcher *dispatch.Dispatcher

	ctx    context.Context
	cancel context.CancelFunc

	// Sample clock state, owned by the tick loop.
	baseTime time.Time
	tickSize time.Duration
	ticks    int

	loopWG  sync.WaitGroup
	eventWG sync.WaitGroup

	drainTimeout time.Duration
	stopping     bool

	metrics *metrics.Metrics
	logger  *slog.Logger

	onChunkReady       func(*segment.Chunk)
	onMetricsTick      func(MetricsTick)
	onTranscriptUpdate func(TranscriptUpdate)
}

// NewEngine creates an engine. A nil guard uses the process-wide default
// register; a nil logger uses slog.Default().
func NewEngine(cfg *config.Config, newSource SourceFactory, transcriber transcribe.Transcriber,
	guard *session.Guard, m *metrics.Metrics, logger *slog.Logger) (*Engine, error) {

	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if newSource == nil {
		return nil, fmt.Errorf("source factory must not be nil")
	}
	if transcriber == nil {
		return nil, fmt.Errorf("transcriber must not be nil")
	}
	if m == nil {
		return nil, fmt.Errorf("metrics must not be nil")
	}
	if guard == nil {
		guard = session.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		config:      cfg,
		newSource:   newSource,
		transcriber: transcriber,
		guard:       guard,
		metrics:     m,
		logger:      logger,
	}, nil
}

// OnChunkReady registers f to run synchronously from the capture loop
// each time a chunk closes, before the dispatcher takes ownership.
// Callbacks apply to sessions started after registration.
func (e *Engine) OnChunkReady(f func(*segment.Chunk)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onChunkReady = f
}

// OnMetricsTick registers f to run synchronously from the capture loop
// once per analysis tick.
func (e *Engine) OnMetricsTick(f func(MetricsTick)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onMetricsTick = f
}

// OnTranscriptUpdate registers f to run after every merge decision that
// touches the running transcript.
func (e *Engine) OnTranscriptUpdate(f func(TranscriptUpdate)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onTranscriptUpdate = f
}

// Start claims the session register, opens the capture source and starts
// the pipeline. The returned handle is required to stop the session.
// Canceling ctx aborts capture abruptly; Stop is the orderly path.
func (e *Engine) Start(ctx context.Context) (*Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.run != nil {
		e.metrics.RecordSessionConflict()
		return nil, fmt.Errorf("%w: %w", ErrSessionConflict, &session.ConflictError{ActiveID: e.run.sess.ID})
	}

	cfg := e.config

	classifier, err := vad.NewClassifier(vad.Config{
		Threshold:       cfg.VAD.SilenceThreshold,
		SilenceDuration: cfg.VAD.GetSilenceDuration(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create classifier: %w", err)
	}

	monitor, err := quality.NewMonitor(quality.Config{
		WindowTicks:   cfg.Quality.WindowTicks,
		PoorBelow:     cfg.Quality.PoorBelow,
		FairBelow:     cfg.Quality.FairBelow,
		GoodBelow:     cfg.Quality.GoodBelow,
		AlertAfter:    cfg.Quality.AlertAfter,
		AlertCooldown: cfg.Quality.GetAlertCooldown(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create quality monitor: %w", err)
	}

	merger, err := merge.NewMerger(merge.Config{
		TailWindow:         cfg.Merger.TailWindow,
		DuplicateThreshold: cfg.Merger.DuplicateThreshold,
		MaxGapWait:         cfg.Merger.GetMaxGapWait(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create merger: %w", err)
	}

	dispatcher, err := dispatch.NewDispatcher(dispatch.Config{
		MaxConcurrent:     cfg.Transcription.MaxConcurrent,
		RequestTimeout:    cfg.Transcription.GetTimeoutDuration(),
		MinViableDuration: cfg.Transcription.GetMinViableDuration(),
		Language:          cfg.Transcription.Language,
	}, e.transcriber, e.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}

	segmenter := segment.NewSegmenter(segment.Config{
		MinDuration:     cfg.Segmenter.GetMinChunkDuration(),
		MaxDuration:     cfg.Segmenter.GetMaxChunkDuration(),
		SilenceDuration: cfg.VAD.GetSilenceDuration(),
		SampleRate:      cfg.Audio.SampleRate,
	})

	sess := session.New(session.Config{
		SilenceThreshold: cfg.VAD.SilenceThreshold,
		SilenceDuration:  cfg.VAD.GetSilenceDuration(),
		MinChunkDuration: cfg.Segmenter.GetMinChunkDuration(),
		MaxChunkDuration: cfg.Segmenter.GetMaxChunkDuration(),
		SampleRate:       cfg.Audio.SampleRate,
	})

	if !e.guard.Start(sess) {
		activeID := ""
		if active, ok := e.guard.Active(); ok {
			activeID = active.ID
		}
		e.metrics.RecordSessionConflict()
		return nil, fmt.Errorf("%w: %w", ErrSessionConflict, &session.ConflictError{ActiveID: activeID})
	}

	source, err := e.newSource()
	if err != nil {
		e.guard.End(sess.ID)
		return nil, fmt.Errorf("failed to open capture source: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := source.Start(runCtx); err != nil {
		cancel()
		e.guard.End(sess.ID)
		return nil, fmt.Errorf("failed to start capture source: %w", err)
	}

	r := &run{
		sess:       sess,
		source:     source,
		windower:   audio.NewWindower(cfg.Audio.WindowSize),
		classifier: classifier,
		segmenter:  segmenter,
		monitor:    monitor,
		merger:     merger,
		dispatcher: dispatcher,

		ctx:    runCtx,
		cancel: cancel,

		baseTime: time.Now(),
		tickSize: cfg.Audio.GetWindowDuration(),

		drainTimeout: cfg.Transcription.GetTimeoutDuration() + 5*time.Second,

		metrics: e.metrics,
		logger:  e.logger,

		onChunkReady:       e.onChunkReady,
		onMetricsTick:      e.onMetricsTick,
		onTranscriptUpdate: e.onTranscriptUpdate,
	}
	dispatcher.SetPromptSource(merger.Tail)

	r.loopWG.Add(1)
	go r.tickLoop()
	r.eventWG.Add(1)
	go r.eventLoop()
	r.eventWG.Add(1)
	go r.flushLoop()

	e.run = r
	e.metrics.RecordSessionStarted()
	e.logger.Info("Capture session started",
		slog.String("session_id", sess.ID),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Int("window_samples", cfg.Audio.WindowSize),
		slog.String("backend", cfg.Transcription.Backend),
	)

	return &Handle{r: r}, nil
}

// Stop shuts the session down in order: the source is released so the
// tick loop drains remaining audio and flushes the open chunk, in-flight
// transcriptions finish and merge, then the session register is freed.
func (e *Engine) Stop(handle *Handle) error {
	if handle == nil || handle.r == nil {
		return fmt.Errorf("nil session handle")
	}

	e.mu.Lock()
	r := e.run
	if r == nil || r != handle.r {
		e.mu.Unlock()
		return fmt.Errorf("session %s is not active", handle.r.sess.ID)
	}
	if r.stopping {
		e.mu.Unlock()
		return fmt.Errorf("session %s is already stopping", r.sess.ID)
	}
	r.stopping = true
	e.mu.Unlock()

	e.logger.Info("Stopping capture session", slog.String("session_id", r.sess.ID))

	// Closing the source closes the buffer channel; the tick loop drains
	// what is queued, flushes the final chunk and exits.
	if err := r.source.Close(); err != nil {
		e.logger.Warn("Error closing capture source", slog.String("error", err.Error()))
	}
	r.loopWG.Wait()

	// Let in-flight transcriptions finish so their fragments still merge.
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), r.drainTimeout)
	if err := r.dispatcher.Drain(drainCtx); err != nil {
		e.logger.Warn("Transcription drain incomplete", slog.String("error", err.Error()))
	}
	cancelDrain()

	r.cancel()
	r.dispatcher.Close()
	r.eventWG.Wait()

	e.guard.End(r.sess.ID)

	duration := r.sess.EndedAt().Sub(r.sess.StartedAt())
	e.metrics.RecordSessionEnded(duration.Seconds())

	snap := r.snapshot()
	e.logger.Info("Capture session stopped",
		slog.String("session_id", r.sess.ID),
		slog.Duration("duration", duration),
		slog.Uint64("chunks_closed", snap.Segmenter.ChunksClosed),
		slog.Int("transcript_words", snap.Merger.Words),
	)

	e.mu.Lock()
	e.last = &snap
	e.lastTranscript = r.merger.Transcript()
	e.lastSpans = r.merger.Spans()
	info := snap.Session
	e.lastSession = &info
	e.run = nil
	e.mu.Unlock()

	return nil
}

// RunningTranscript returns the merged transcript. During a session it is
// the live snapshot; after a stop it is the final text of the last
// session.
func (e *Engine) RunningTranscript() string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.run != nil {
		return e.run.merger.Transcript()
	}
	return e.lastTranscript
}

// Spans returns the accepted transcript spans in chunk order.
func (e *Engine) Spans() []merge.Span {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.run != nil {
		return e.run.merger.Spans()
	}
	spans := make([]merge.Span, len(e.lastSpans))
	copy(spans, e.lastSpans)
	return spans
}

// Session returns the active session's snapshot, or the last session's if
// none is active. ok is false before the first Start.
func (e *Engine) Session() (session.Info, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.run != nil {
		return e.run.sess.Info(), true
	}
	if e.lastSession != nil {
		return *e.lastSession, true
	}
	return session.Info{}, false
}

// Stats returns the pipeline telemetry snapshot.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.run != nil {
		return e.run.snapshot()
	}
	if e.last != nil {
		return *e.last
	}
	return Stats{}
}

func (r *run) snapshot() Stats {
	return Stats{
		Session:    r.sess.Info(),
		Classifier: r.classifier.Stats(),
		Segmenter:  r.segmenter.Stats(),
		Quality:    r.monitor.Stats(),
		Dispatcher: r.dispatcher.Stats(),
		Merger:     r.merger.Stats(),
	}
}

// tickLoop consumes source buffers, reassembles them into analysis
// windows and runs one tick per window. It exits when the source channel
// closes or the run context is canceled, flushing the open chunk either
// way.
func (r *run) tickLoop() {
	defer r.loopWG.Done()

	for {
		select {
		case <-r.ctx.Done():
			r.finishCapture()
			return
		case buf, ok := <-r.source.Buffers():
			if !ok {
				r.finishCapture()
				return
			}
			for _, window := range r.windower.Push(buf) {
				r.tick(window)
			}
		}
	}
}

// tick runs the per-window analysis pass. Chunk bytes are appended before
// the boundary decision so a closing chunk includes this window's audio.
func (r *run) tick(samples []int16) {
	r.ticks++
	now := r.baseTime.Add(time.Duration(r.ticks) * r.tickSize)

	rms := audio.RMS(samples)
	r.segmenter.Append(now, audio.BytesFromSamples(samples))
	snap := r.classifier.Observe(now, rms)
	closed := r.segmenter.Observe(now, snap)
	report := r.monitor.Observe(now, rms)

	r.metrics.RecordTick(rms, snap.SpeechActive, snap.SilenceDuration.Seconds())
	r.metrics.RecordQuality(report.Average, int(report.Bucket))
	if report.Alert {
		r.metrics.RecordQualityAlert()
		r.logger.Warn("Sustained poor audio quality",
			slog.Float64("average_rms", report.Average),
			slog.String("bucket", report.Bucket.String()),
		)
	}

	if r.onMetricsTick != nil {
		r.onMetricsTick(MetricsTick{
			RMSLevel:        rms,
			SpeechActive:    snap.SpeechActive,
			SilenceDuration: snap.SilenceDuration,
			QualityBucket:   report.Bucket,
			QualityAlert:    report.Alert,
		})
	}

	if closed != nil {
		r.dispatchClosed(closed)
	}
}

// finishCapture flushes the open chunk at the current sample-clock
// position when capture ends.
func (r *run) finishCapture() {
	now := r.baseTime.Add(time.Duration(r.ticks) * r.tickSize)
	if final := r.segmenter.Flush(now); final != nil {
		r.dispatchClosed(final)
	}
}

func (r *run) dispatchClosed(chunk *segment.Chunk) {
	duration := chunk.EndTime.Sub(chunk.StartTime)
	r.metrics.RecordChunkClosed(chunk.Reason.String(), duration.Seconds(), len(chunk.PCM))
	r.logger.Debug("Chunk closed",
		slog.Int("chunk_index", chunk.Index),
		slog.String("reason", chunk.Reason.String()),
		slog.Duration("duration", duration),
		slog.Int("pcm_bytes", len(chunk.PCM)),
	)

	if r.onChunkReady != nil {
		r.onChunkReady(chunk)
	}
	r.dispatcher.Submit(r.ctx, chunk)
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the capture engine.
type Metrics struct {
	// Tick metrics
	TicksProcessed  prometheus.Counter
	SpeechTicks     prometheus.Counter
	RMSLevel        prometheus.Gauge
	SilenceDuration prometheus.Gauge

	// Session metrics
	SessionActive    prometheus.Gauge
	SessionsStarted  prometheus.Counter
	SessionsEnded    prometheus.Counter
	SessionConflicts prometheus.Counter
	SessionDuration  prometheus.Histogram

	// Chunk metrics
	ChunksClosed  *prometheus.CounterVec
	ChunksSkipped *prometheus.CounterVec
	ChunkDuration prometheus.Histogram
	ChunkSize     prometheus.Histogram

	// Transcription metrics
	TranscriptionSuccesses prometheus.Counter
	TranscriptionFailures  prometheus.Counter
	TranscriptionDuration  prometheus.Histogram
	TranscriptionInFlight  prometheus.Gauge

	// Merge metrics
	MergeActions    *prometheus.CounterVec
	GapFlushes      prometheus.Counter
	TranscriptWords prometheus.Gauge

	// Quality metrics
	QualityAverage prometheus.Gauge
	QualityBucket  prometheus.Gauge
	QualityAlerts  prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		// Tick metrics
		TicksProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lecturescript_ticks_processed_total",
			Help: "Total number of analysis ticks processed",
		}),
		SpeechTicks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lecturescript_speech_ticks_total",
			Help: "Total number of ticks classified as speech",
		}),
		RMSLevel: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "lecturescript_rms_level",
			Help: "Normalized RMS energy of the most recent tick",
		}),
		SilenceDuration: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "lecturescript_silence_duration_seconds",
			Help: "Elapsed silence at the most recent tick",
		}),

		// Session metrics
		SessionActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "lecturescript_session_active",
			Help: "Whether a capture session is currently active (0 or 1)",
		}),
		SessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lecturescript_sessions_started_total",
			Help: "Total number of capture sessions started",
		}),
		SessionsEnded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lecturescript_sessions_ended_total",
			Help: "Total number of capture sessions ended",
		}),
		SessionConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lecturescript_session_conflicts_total",
			Help: "Total number of session starts rejected by the guard",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "lecturescript_session_duration_seconds",
			Help:    "Duration of capture sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68 minutes
		}),

		// Chunk metrics
		ChunksClosed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lecturescript_chunks_closed_total",
			Help: "Total number of chunks closed, by close reason",
		}, []string{"reason"}),
		ChunksSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lecturescript_chunks_skipped_total",
			Help: "Total number of chunks skipped before dispatch, by reason",
		}, []string{"reason"}),
		ChunkDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "lecturescript_chunk_duration_seconds",
			Help:    "Duration of closed audio chunks",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s to ~1 minute
		}),
		ChunkSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "lecturescript_chunk_size_bytes",
			Help:    "PCM size of closed audio chunks in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12), // 1KB to ~4MB
		}),

		// Transcription metrics
		TranscriptionSuccesses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lecturescript_transcription_successes_total",
			Help: "Total number of successful transcription requests",
		}),
		TranscriptionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lecturescript_transcription_failures_total",
			Help: "Total number of failed transcription requests",
		}),
		TranscriptionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "lecturescript_transcription_duration_seconds",
			Help:    "Round-trip time of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),
		TranscriptionInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "lecturescript_transcription_in_flight",
			Help: "Current number of in-flight transcription requests",
		}),

		// Merge metrics
		MergeActions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lecturescript_merge_actions_total",
			Help: "Total number of merge decisions, by action",
		}, []string{"action"}),
		GapFlushes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lecturescript_merge_gap_flushes_total",
			Help: "Total number of times the merger gave up waiting on a gap",
		}),
		TranscriptWords: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "lecturescript_transcript_words",
			Help: "Current number of words in the merged transcript",
		}),

		// Quality metrics
		QualityAverage: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "lecturescript_quality_average_rms",
			Help: "Rolling average RMS over the quality window",
		}),
		QualityBucket: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "lecturescript_quality_bucket",
			Help: "Current quality bucket (0=poor, 1=fair, 2=good, 3=excellent)",
		}),
		QualityAlerts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lecturescript_quality_alerts_total",
			Help: "Total number of quality alerts raised",
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lecturescript_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lecturescript_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lecturescript_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordTick records one analysis tick.
func (m *Metrics) RecordTick(rms float64, speechActive bool, silenceSeconds float64) {
	m.TicksProcessed.Inc()
	if speechActive {
		m.SpeechTicks.Inc()
	}
	m.RMSLevel.Set(rms)
	m.SilenceDuration.Set(silenceSeconds)
}

// RecordSessionStarted marks a session as active.
func (m *Metrics) RecordSessionStarted() {
	m.SessionsStarted.Inc()
	m.SessionActive.Set(1)
}

// RecordSessionEnded marks the session as ended and records its duration.
func (m *Metrics) RecordSessionEnded(durationSeconds float64) {
	m.SessionsEnded.Inc()
	m.SessionActive.Set(0)
	m.SessionDuration.Observe(durationSeconds)
}

// RecordSessionConflict increments the rejected-start counter.
func (m *Metrics) RecordSessionConflict() {
	m.SessionConflicts.Inc()
}

// RecordChunkClosed records a closed chunk with its close reason.
func (m *Metrics) RecordChunkClosed(reason string, durationSeconds float64, sizeBytes int) {
	m.ChunksClosed.WithLabelValues(reason).Inc()
	m.ChunkDuration.Observe(durationSeconds)
	m.ChunkSize.Observe(float64(sizeBytes))
}

// RecordChunkSkipped records a chunk dropped before dispatch.
func (m *Metrics) RecordChunkSkipped(reason string) {
	m.ChunksSkipped.WithLabelValues(reason).Inc()
}

// RecordTranscriptionSuccess records a successful transcription.
func (m *Metrics) RecordTranscriptionSuccess(durationSeconds float64) {
	m.TranscriptionSuccesses.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionFailure records a failed transcription.
func (m *Metrics) RecordTranscriptionFailure(durationSeconds float64) {
	m.TranscriptionFailures.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// SetTranscriptionInFlight sets the in-flight request gauge.
func (m *Metrics) SetTranscriptionInFlight(count int) {
	m.TranscriptionInFlight.Set(float64(count))
}

// RecordMergeAction records one merge decision.
func (m *Metrics) RecordMergeAction(action string) {
	m.MergeActions.WithLabelValues(action).Inc()
}

// RecordGapFlush increments the gap flush counter.
func (m *Metrics) RecordGapFlush() {
	m.GapFlushes.Inc()
}

// SetTranscriptWords sets the merged transcript word gauge.
func (m *Metrics) SetTranscriptWords(count int) {
	m.TranscriptWords.Set(float64(count))
}

// RecordQuality records the rolling quality state.
func (m *Metrics) RecordQuality(averageRMS float64, bucket int) {
	m.QualityAverage.Set(averageRMS)
	m.QualityBucket.Set(float64(bucket))
}

// RecordQualityAlert increments the quality alert counter.
func (m *Metrics) RecordQualityAlert() {
	m.QualityAlerts.Inc()
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error.
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}

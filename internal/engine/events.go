package engine

import (
	"time"

	"github.com/Soniccccccccxman/lecturescript-engine/internal/dispatch"
	"github.com/Soniccccccccxman/lecturescript-engine/internal/merge"
	"github.com/Soniccccccccxman/lecturescript-engine/internal/quality"
)

// MetricsTick is the per-tick telemetry snapshot delivered to
// OnMetricsTick subscribers.
type MetricsTick struct {
	// RMSLevel is the normalized energy of this tick's window.
	RMSLevel     float64 `json:"rms_level"`
	SpeechActive bool    `json:"speech_active"`
	// SilenceDuration is the elapsed silence; zero while speaking.
	SilenceDuration time.Duration  `json:"silence_duration"`
	QualityBucket   quality.Bucket `json:"quality_bucket"`
	// QualityAlert is true on the tick an advisory alert fired.
	QualityAlert bool `json:"quality_alert"`
}

// TranscriptUpdate reports a change to the running transcript.
type TranscriptUpdate struct {
	// Index is the chunk index whose event triggered the update.
	Index  int          `json:"index"`
	Action merge.Action `json:"-"`
	// Transcript is the full merged text after the update.
	Transcript string `json:"transcript"`
	Words      int    `json:"words"`
}

// eventLoop consumes dispatcher outcomes and feeds the merger. Completed
// chunks deliver their fragment; failed and skipped chunks report their
// index as a skip so successors are not held waiting.
func (r *run) eventLoop() {
	defer r.eventWG.Done()

	for ev := range r.dispatcher.Events() {
		r.handleEvent(ev)
	}
}

func (r *run) handleEvent(ev dispatch.Event) {
	switch ev.Status {
	case dispatch.StatusCompleted:
		r.metrics.RecordTranscriptionSuccess(ev.Elapsed.Seconds())
		action := r.merger.Accept(merge.Fragment{
			Index:     ev.Index,
			Text:      ev.Text,
			ArrivedAt: time.Now(),
		})
		r.metrics.RecordMergeAction(action.String())
		r.notifyTranscript(ev.Index, action)

	case dispatch.StatusFailed:
		r.metrics.RecordTranscriptionFailure(ev.Elapsed.Seconds())
		r.skipIndex(ev.Index)

	case dispatch.StatusSkipped:
		r.metrics.RecordChunkSkipped(ev.SkipReason)
		r.skipIndex(ev.Index)
	}

	r.metrics.SetTranscriptionInFlight(r.dispatcher.Stats().InFlight)
	r.metrics.SetTranscriptWords(r.merger.Stats().Words)
}

// skipIndex tells the merger the index will never produce text. When that
// unblocks buffered successors the transcript grows, so subscribers are
// still notified.
func (r *run) skipIndex(index int) {
	before := r.merger.Stats().Words
	r.merger.Skip(index)
	if r.merger.Stats().Words > before {
		r.notifyTranscript(index, merge.Appended)
	}
}

// flushLoop periodically gives the merger a chance to abandon a gap whose
// predecessor has been missing longer than the configured wait.
func (r *run) flushLoop() {
	defer r.eventWG.Done()

	ticker := time.NewTicker(gapFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			if r.merger.FlushStale(time.Now()) == 0 {
				continue
			}
			r.metrics.RecordGapFlush()
			r.metrics.SetTranscriptWords(r.merger.Stats().Words)

			spans := r.merger.Spans()
			index := -1
			if len(spans) > 0 {
				index = spans[len(spans)-1].Index
			}
			r.notifyTranscript(index, merge.Appended)
		}
	}
}

func (r *run) notifyTranscript(index int, action merge.Action) {
	if r.onTranscriptUpdate == nil {
		return
	}
	r.onTranscriptUpdate(TranscriptUpdate{
		Index:      index,
		Action:     action,
		Transcript: r.merger.Transcript(),
		Words:      r.merger.Stats().Words,
	})
}

package segment

import (
	"testing"
	"time"

	"github.com/Soniccccccccxman/lecturescript-engine/internal/vad"
)

func testSegmenterConfig() Config {
	return Config{
		MinDuration:     1 * time.Second,
		MaxDuration:     15 * time.Second,
		SilenceDuration: 2 * time.Second,
		SampleRate:      16000,
	}
}

func speakingSnap(rms float64) vad.Snapshot {
	return vad.Snapshot{State: vad.Speaking, RMS: rms, SpeechActive: true}
}

func silentSnap(silence, silenceDuration time.Duration) vad.Snapshot {
	return vad.Snapshot{
		State:           vad.Silent,
		SilenceDuration: silence,
		SpeechActive:    silence < silenceDuration,
	}
}

func TestPolicyForcedCut(t *testing.T) {
	p := Policy{MinDuration: time.Second, MaxDuration: 15 * time.Second, SilenceDuration: 2 * time.Second}

	// At or beyond the max duration the cut fires regardless of speech state.
	for _, snap := range []vad.Snapshot{speakingSnap(0.5), silentSnap(0, 2*time.Second)} {
		if got := p.Decide(15*time.Second, snap); got != CloseMaxDuration {
			t.Errorf("Expected max-duration close at age 15s (state %v), got %v", snap.State, got)
		}
		if got := p.Decide(40*time.Second, snap); got != CloseMaxDuration {
			t.Errorf("Expected max-duration close at age 40s (state %v), got %v", snap.State, got)
		}
	}
}

func TestPolicySilenceClose(t *testing.T) {
	p := Policy{MinDuration: time.Second, MaxDuration: 15 * time.Second, SilenceDuration: 2 * time.Second}

	if got := p.Decide(5*time.Second, silentSnap(2*time.Second, 2*time.Second)); got != CloseSilence {
		t.Errorf("Expected silence close, got %v", got)
	}

	// Below the minimum floor the silence boundary never fires.
	if got := p.Decide(500*time.Millisecond, silentSnap(3*time.Second, 2*time.Second)); got != CloseNone {
		t.Errorf("Expected no close below the minimum duration, got %v", got)
	}

	// Silence that has not persisted long enough keeps accumulating.
	if got := p.Decide(5*time.Second, silentSnap(1*time.Second, 2*time.Second)); got != CloseNone {
		t.Errorf("Expected no close for short silence, got %v", got)
	}

	// Speaking never closes below the max duration.
	if got := p.Decide(14*time.Second, speakingSnap(0.3)); got != CloseNone {
		t.Errorf("Expected no close while speaking, got %v", got)
	}
}

func TestSegmenterContinuousSpeechOnlyMaxCut(t *testing.T) {
	s := NewSegmenter(testSegmenterConfig())
	base := time.Now()
	tick := 20 * time.Millisecond

	// 40 seconds of uninterrupted speech: every close must be the forced
	// cut, and there must be ceil(40/15) = 3 chunks once flushed.
	var closed []*Chunk
	for elapsed := time.Duration(0); elapsed < 40*time.Second; elapsed += tick {
		now := base.Add(elapsed)
		s.Append(now, make([]byte, 640))
		if chunk := s.Observe(now, speakingSnap(0.2)); chunk != nil {
			closed = append(closed, chunk)
		}
	}
	if final := s.Flush(base.Add(40 * time.Second)); final != nil {
		closed = append(closed, final)
	}

	if len(closed) != 3 {
		t.Fatalf("Expected 3 chunks from 40s at max 15s, got %d", len(closed))
	}
	for i, chunk := range closed {
		if d := chunk.EndTime.Sub(chunk.StartTime); d > 15*time.Second {
			t.Errorf("Chunk %d duration %v exceeds the max duration", i, d)
		}
		if chunk.Index != i {
			t.Errorf("Expected index %d, got %d", i, chunk.Index)
		}
		if i < 2 && chunk.Reason != CloseMaxDuration {
			t.Errorf("Chunk %d: expected max-duration close, got %v", i, chunk.Reason)
		}
	}
	if closed[2].Reason != CloseFinal {
		t.Errorf("Last chunk should close via flush, got %v", closed[2].Reason)
	}
}

func TestSegmenterSilenceBoundary(t *testing.T) {
	s := NewSegmenter(testSegmenterConfig())
	base := time.Now()

	// 3 seconds of speech, then silence persisting past the threshold.
	s.Append(base, make([]byte, 640))
	if chunk := s.Observe(base, speakingSnap(0.2)); chunk != nil {
		t.Fatal("No chunk should close on the first tick")
	}
	if chunk := s.Observe(base.Add(3*time.Second), speakingSnap(0.2)); chunk != nil {
		t.Fatal("No chunk should close while speaking")
	}
	if chunk := s.Observe(base.Add(4*time.Second), silentSnap(time.Second, 2*time.Second)); chunk != nil {
		t.Fatal("Silence below the configured duration must not close")
	}

	chunk := s.Observe(base.Add(5*time.Second), silentSnap(2*time.Second, 2*time.Second))
	if chunk == nil {
		t.Fatal("Expected a silence close")
	}
	if chunk.Reason != CloseSilence {
		t.Errorf("Expected silence reason, got %v", chunk.Reason)
	}
	if chunk.State != StateClosed {
		t.Errorf("Expected Closed state, got %v", chunk.State)
	}
	if !chunk.SpeechDetected {
		t.Error("Chunk containing speech ticks must carry the speech flag")
	}
	if len(chunk.PCM) != 640 {
		t.Errorf("Expected 640 accumulated bytes, got %d", len(chunk.PCM))
	}
}

func TestSegmenterImmediateReopen(t *testing.T) {
	s := NewSegmenter(testSegmenterConfig())
	base := time.Now()

	s.Observe(base, speakingSnap(0.2))
	closeTime := base.Add(16 * time.Second)
	chunk := s.Observe(closeTime, speakingSnap(0.2))
	if chunk == nil {
		t.Fatal("Expected a forced cut")
	}

	// The next chunk opens at the close instant and takes the next index.
	if s.NextIndex() != 2 {
		t.Errorf("Expected next index 2, got %d", s.NextIndex())
	}
	if age := s.CurrentAge(closeTime.Add(time.Second)); age != time.Second {
		t.Errorf("Reopened chunk should start at the close instant, age was %v", age)
	}
}

func TestSegmenterEnergyAggregation(t *testing.T) {
	s := NewSegmenter(testSegmenterConfig())
	base := time.Now()

	s.Observe(base, speakingSnap(0.1))
	s.Observe(base.Add(time.Second), speakingSnap(0.3))
	chunk := s.Observe(base.Add(16*time.Second), speakingSnap(0.2))
	if chunk == nil {
		t.Fatal("Expected a forced cut")
	}

	if chunk.AvgRMS < 0.19 || chunk.AvgRMS > 0.21 {
		t.Errorf("Expected average RMS ~0.2, got %f", chunk.AvgRMS)
	}
	if chunk.PeakRMS != 0.3 {
		t.Errorf("Expected peak RMS 0.3, got %f", chunk.PeakRMS)
	}
}

func TestSegmenterFlushEmpty(t *testing.T) {
	s := NewSegmenter(testSegmenterConfig())

	if chunk := s.Flush(time.Now()); chunk != nil {
		t.Error("Flushing a segmenter with no open chunk should return nil")
	}
}

func TestSegmenterSilentChunkHasNoSpeechFlag(t *testing.T) {
	cfg := testSegmenterConfig()
	s := NewSegmenter(cfg)
	base := time.Now()

	s.Observe(base, silentSnap(0, cfg.SilenceDuration))
	chunk := s.Observe(base.Add(3*time.Second), silentSnap(3*time.Second, cfg.SilenceDuration))
	if chunk == nil {
		t.Fatal("Expected a silence close")
	}
	if chunk.SpeechDetected {
		t.Error("A chunk with no speaking ticks must not carry the speech flag")
	}
}

func TestSegmenterStats(t *testing.T) {
	s := NewSegmenter(testSegmenterConfig())
	base := time.Now()

	s.Observe(base, speakingSnap(0.2))
	s.Observe(base.Add(16*time.Second), speakingSnap(0.2))

	stats := s.Stats()
	if stats.ChunksClosed != 1 {
		t.Errorf("Expected 1 closed chunk, got %d", stats.ChunksClosed)
	}
	if stats.MaxDurationCloses != 1 {
		t.Errorf("Expected 1 max-duration close, got %d", stats.MaxDurationCloses)
	}
	if stats.State != "open" {
		t.Errorf("Expected open state after reopen, got %s", stats.State)
	}
}

func TestChunkAdvanceForwardOnly(t *testing.T) {
	chunk := &Chunk{State: StateClosed}

	if err := chunk.Advance(StateDispatched); err != nil {
		t.Fatalf("Closed -> Dispatched should be valid: %v", err)
	}
	if err := chunk.Advance(StateCompleted); err != nil {
		t.Fatalf("Dispatched -> Completed should be valid: %v", err)
	}

	// No regression from a terminal state.
	if err := chunk.Advance(StateDispatched); err == nil {
		t.Error("Completed -> Dispatched must be rejected")
	}
	if err := chunk.Advance(StateFailed); err == nil {
		t.Error("Completed -> Failed must be rejected")
	}
}

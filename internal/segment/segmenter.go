package segment

import (
	"sync"
	"time"

	"github.com/Soniccccccccxman/lecturescript-engine/internal/vad"
)

// Config contains segmenter tuning parameters.
type Config struct {
	MinDuration     time.Duration
	MaxDuration     time.Duration
	SilenceDuration time.Duration
	SampleRate      int
}

// Segmenter accumulates a capture stream into chunks and applies the
// boundary policy each analysis tick. Append and Observe are called only
// from the capture loop goroutine; Stats may be read concurrently.
type Segmenter struct {
	config Config
	policy Policy

	nextIndex int
	current   *Chunk

	// Energy aggregation for the open chunk.
	rmsSum   float64
	rmsTicks int
	peak     float64
	speech   bool

	// Statistics
	chunksClosed      uint64
	silenceCloses     uint64
	maxDurationCloses uint64
	finalCloses       uint64
	totalDuration     time.Duration

	mu sync.RWMutex
}

// Stats reports segmenter counters for monitoring.
type Stats struct {
	State             string  `json:"state"`
	ChunksClosed      uint64  `json:"chunks_closed"`
	SilenceCloses     uint64  `json:"silence_closes"`
	MaxDurationCloses uint64  `json:"max_duration_closes"`
	FinalCloses       uint64  `json:"final_closes"`
	AvgChunkSeconds   float64 `json:"avg_chunk_seconds"`
	CurrentChunkBytes int     `json:"current_chunk_bytes"`
}

// NewSegmenter creates a segmenter for one capture session.
func NewSegmenter(config Config) *Segmenter {
	return &Segmenter{
		config: config,
		policy: Policy{
			MinDuration:     config.MinDuration,
			MaxDuration:     config.MaxDuration,
			SilenceDuration: config.SilenceDuration,
		},
	}
}

// Append adds raw PCM bytes to the open chunk, opening the first chunk at
// the given instant if none is open yet.
func (s *Segmenter) Append(now time.Time, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		s.open(now)
	}
	s.current.PCM = append(s.current.PCM, data...)
}

// Observe applies the boundary policy for one analysis tick. When a
// boundary fires it returns the closed chunk and immediately reopens a new
// one starting at the same instant; otherwise it returns nil.
func (s *Segmenter) Observe(now time.Time, snap vad.Snapshot) *Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		s.open(now)
	}

	s.rmsSum += snap.RMS
	s.rmsTicks++
	if snap.RMS > s.peak {
		s.peak = snap.RMS
	}
	if snap.State == vad.Speaking {
		s.speech = true
	}

	reason := s.policy.Decide(now.Sub(s.current.StartTime), snap)
	if reason == CloseNone {
		return nil
	}

	closed := s.close(now, reason)
	s.open(now)
	return closed
}

// Flush closes and returns the open chunk when the session stops, or nil
// if nothing accumulated. No new chunk is opened.
func (s *Segmenter) Flush(now time.Time) *Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return nil
	}
	if len(s.current.PCM) == 0 && s.rmsTicks == 0 {
		s.current = nil
		return nil
	}
	return s.close(now, CloseFinal)
}

// CurrentAge returns how long the open chunk has been accumulating.
func (s *Segmenter) CurrentAge(now time.Time) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return 0
	}
	return now.Sub(s.current.StartTime)
}

// NextIndex returns the index the next opened chunk will receive.
func (s *Segmenter) NextIndex() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextIndex
}

// Stats returns current segmenter counters.
func (s *Segmenter) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := "idle"
	currentBytes := 0
	if s.current != nil {
		state = "open"
		currentBytes = len(s.current.PCM)
	}

	avgSeconds := float64(0)
	if s.chunksClosed > 0 {
		avgSeconds = s.totalDuration.Seconds() / float64(s.chunksClosed)
	}

	return Stats{
		State:             state,
		ChunksClosed:      s.chunksClosed,
		SilenceCloses:     s.silenceCloses,
		MaxDurationCloses: s.maxDurationCloses,
		FinalCloses:       s.finalCloses,
		AvgChunkSeconds:   avgSeconds,
		CurrentChunkBytes: currentBytes,
	}
}

func (s *Segmenter) open(now time.Time) {
	s.current = &Chunk{
		Index:      s.nextIndex,
		StartTime:  now,
		SampleRate: s.config.SampleRate,
		State:      StateOpen,
	}
	s.nextIndex++
	s.rmsSum = 0
	s.rmsTicks = 0
	s.peak = 0
	s.speech = false
}

func (s *Segmenter) close(now time.Time, reason CloseReason) *Chunk {
	chunk := s.current
	s.current = nil

	chunk.EndTime = now
	chunk.Reason = reason
	chunk.State = StateClosed
	chunk.PeakRMS = s.peak
	chunk.SpeechDetected = s.speech
	if s.rmsTicks > 0 {
		chunk.AvgRMS = s.rmsSum / float64(s.rmsTicks)
	}

	s.chunksClosed++
	s.totalDuration += chunk.EndTime.Sub(chunk.StartTime)
	switch reason {
	case CloseSilence:
		s.silenceCloses++
	case CloseMaxDuration:
		s.maxDurationCloses++
	case CloseFinal:
		s.finalCloses++
	}

	return chunk
}

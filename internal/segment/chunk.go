package segment

import (
	"fmt"
	"time"
)

// ChunkState tracks a chunk through its life. States only move forward:
// Open -> Closed -> Dispatched -> Completed or Failed.
type ChunkState int

const (
	StateOpen ChunkState = iota
	StateClosed
	StateDispatched
	StateCompleted
	StateFailed
)

// String returns a human-readable state name.
func (s ChunkState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateDispatched:
		return "dispatched"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// CloseReason records which boundary rule closed a chunk.
type CloseReason int

const (
	CloseNone CloseReason = iota
	// CloseSilence is the natural utterance boundary: enough silence after
	// enough accumulated audio.
	CloseSilence
	// CloseMaxDuration is the forced cut that bounds buffering and keeps
	// individual transcription requests small.
	CloseMaxDuration
	// CloseFinal closes the open chunk when the session stops.
	CloseFinal
)

// String returns a human-readable reason name.
func (r CloseReason) String() string {
	switch r {
	case CloseNone:
		return "none"
	case CloseSilence:
		return "silence"
	case CloseMaxDuration:
		return "max_duration"
	case CloseFinal:
		return "final"
	default:
		return fmt.Sprintf("unknown(%d)", int(r))
	}
}

// Chunk is one bounded segment of captured audio, the unit of
// transcription. The capture loop owns it while Open; ownership passes to
// the dispatcher once Closed and the capture loop never touches it again.
type Chunk struct {
	// Index is the monotonic per-session sequence number, assigned when
	// the chunk opens. The merger orders fragments by it.
	Index      int         `json:"index"`
	StartTime  time.Time   `json:"start_time"`
	EndTime    time.Time   `json:"end_time"`
	SampleRate int         `json:"sample_rate"`
	Reason     CloseReason `json:"-"`
	State      ChunkState  `json:"-"`

	// PCM holds the accumulated raw little-endian PCM-16 bytes.
	PCM []byte `json:"-"`

	// Energy metadata aggregated over the chunk's analysis ticks.
	AvgRMS         float64 `json:"avg_rms"`
	PeakRMS        float64 `json:"peak_rms"`
	SpeechDetected bool    `json:"speech_detected"`
}

// Duration is the chunk's wall-clock length. For a still-open chunk it is
// measured against the provided instant.
func (c *Chunk) Duration(now time.Time) time.Duration {
	if c.EndTime.IsZero() {
		return now.Sub(c.StartTime)
	}
	return c.EndTime.Sub(c.StartTime)
}

// Advance moves the chunk to the given state, enforcing forward-only
// transitions. The caller owning the chunk at that point in its life is
// responsible for calling it; there is no internal locking.
func (c *Chunk) Advance(to ChunkState) error {
	valid := false
	switch to {
	case StateClosed:
		valid = c.State == StateOpen
	case StateDispatched:
		valid = c.State == StateClosed
	case StateCompleted, StateFailed:
		valid = c.State == StateDispatched
	}
	if !valid {
		return fmt.Errorf("invalid chunk transition %s -> %s", c.State, to)
	}
	c.State = to
	return nil
}

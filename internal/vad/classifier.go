package vad

import (
	"fmt"
	"sync"
	"time"
)

// State is the instantaneous speech state of the input signal.
type State int

const (
	// Silent means the last observed RMS was at or below the silence threshold.
	Silent State = iota
	// Speaking means the last observed RMS was above the silence threshold.
	Speaking
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case Speaking:
		return "speaking"
	case Silent:
		return "silent"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Config contains classifier tuning parameters.
type Config struct {
	// Threshold is the normalized RMS level at or below which a window
	// counts as instantaneously silent.
	Threshold float64
	// SilenceDuration is how long silence must persist before speech is
	// no longer considered active. Dips shorter than this stay part of
	// the surrounding speech.
	SilenceDuration time.Duration
}

// Snapshot is the classifier output for one analysis tick.
type Snapshot struct {
	State State
	// RMS is the energy level that produced this snapshot.
	RMS float64
	// SpeechActive is true in Speaking, and also in Silent while the
	// elapsed silence has not yet reached the configured duration.
	SpeechActive bool
	// SilenceDuration is the elapsed time since the Speaking -> Silent
	// transition; zero while Speaking.
	SilenceDuration time.Duration
}

// Classifier converts per-tick RMS levels into a two-state speech/silence
// machine with a silence timer. Timestamps are passed in by the caller, so
// the machine is deterministic under test.
type Classifier struct {
	config Config

	state        State
	silenceSince time.Time
	observed     bool

	totalTicks    uint64
	speakingTicks uint64
	lastObserved  time.Time

	mu sync.RWMutex
}

// Stats reports classifier counters for monitoring.
type Stats struct {
	State            string    `json:"state"`
	TotalTicks       uint64    `json:"total_ticks"`
	SpeakingTicks    uint64    `json:"speaking_ticks"`
	SpeakingPercent  float64   `json:"speaking_percent"`
	LastObserved     time.Time `json:"last_observed"`
	SilenceThreshold float64   `json:"silence_threshold"`
}

// NewClassifier creates a classifier with the given tuning.
func NewClassifier(config Config) (*Classifier, error) {
	if config.Threshold < 0 || config.Threshold > 1 {
		return nil, fmt.Errorf("threshold must be between 0 and 1, got %f", config.Threshold)
	}
	if config.SilenceDuration <= 0 {
		return nil, fmt.Errorf("silence duration must be positive, got %v", config.SilenceDuration)
	}

	return &Classifier{
		config: config,
		state:  Silent,
	}, nil
}

// Observe feeds one tick's RMS level at the given instant and returns the
// resulting snapshot. Transitions happen the instant the level crosses the
// threshold in either direction.
func (c *Classifier) Observe(now time.Time, rms float64) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.observed {
		c.observed = true
		c.silenceSince = now
	}

	if rms > c.config.Threshold {
		if c.state == Silent {
			c.state = Speaking
			c.silenceSince = time.Time{}
		}
	} else {
		if c.state == Speaking {
			c.state = Silent
			c.silenceSince = now
		}
	}

	var silence time.Duration
	if c.state == Silent {
		silence = now.Sub(c.silenceSince)
	}

	c.totalTicks++
	if c.state == Speaking {
		c.speakingTicks++
	}
	c.lastObserved = now

	return Snapshot{
		State:           c.state,
		RMS:             rms,
		SpeechActive:    c.state == Speaking || silence < c.config.SilenceDuration,
		SilenceDuration: silence,
	}
}

// State returns the current instantaneous state.
func (c *Classifier) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Stats returns current classifier counters.
func (c *Classifier) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	speakingPercent := float64(0)
	if c.totalTicks > 0 {
		speakingPercent = float64(c.speakingTicks) / float64(c.totalTicks) * 100
	}

	return Stats{
		State:            c.state.String(),
		TotalTicks:       c.totalTicks,
		SpeakingTicks:    c.speakingTicks,
		SpeakingPercent:  speakingPercent,
		LastObserved:     c.lastObserved,
		SilenceThreshold: c.config.Threshold,
	}
}

// Reset returns the classifier to its initial silent state and clears
// counters. Called when a new capture session starts.
func (c *Classifier) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = Silent
	c.silenceSince = time.Time{}
	c.observed = false
	c.totalTicks = 0
	c.speakingTicks = 0
	c.lastObserved = time.Time{}
}

package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the session lifecycle state.
type State int

const (
	Idle State = iota
	Active
	Ended
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Active:
		return "active"
	case Ended:
		return "ended"
	default:
		return "unknown"
	}
}

// Config is the immutable tuning snapshot a session is created with.
type Config struct {
	SilenceThreshold float64       `json:"silence_threshold"`
	SilenceDuration  time.Duration `json:"silence_duration"`
	MinChunkDuration time.Duration `json:"min_chunk_duration"`
	MaxChunkDuration time.Duration `json:"max_chunk_duration"`
	SampleRate       int           `json:"sample_rate"`
}

// Session is one capture lifecycle from start to stop. Sessions are never
// reused: every capture start allocates a fresh one with a fresh token.
type Session struct {
	// ID is the opaque session token.
	ID string
	// Config is frozen at creation.
	Config    Config
	CreatedAt time.Time

	mu        sync.RWMutex
	state     State
	startedAt time.Time
	endedAt   time.Time
}

// Info is a JSON-friendly session snapshot for monitoring endpoints.
type Info struct {
	ID        string    `json:"id"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	StartedAt time.Time `json:"started_at,omitempty"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
	Config    Config    `json:"config"`
}

// New allocates an Idle session with a fresh token.
func New(config Config) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Config:    config,
		CreatedAt: time.Now(),
		state:     Idle,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// StartedAt returns when the session became Active, or the zero time.
func (s *Session) StartedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startedAt
}

// EndedAt returns when the session ended, or the zero time.
func (s *Session) EndedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.endedAt
}

// Info returns a snapshot for monitoring.
func (s *Session) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Info{
		ID:        s.ID,
		State:     s.state.String(),
		CreatedAt: s.CreatedAt,
		StartedAt: s.startedAt,
		EndedAt:   s.endedAt,
		Config:    s.Config,
	}
}

func (s *Session) markActive(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Active
	s.startedAt = now
}

func (s *Session) markEnded(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Ended
	s.endedAt = now
}

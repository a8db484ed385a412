package session

import (
	"fmt"
	"sync"
	"time"
)

// ConflictError reports a start attempt while a different session holds
// the capture register. It is recoverable: the caller must stop the
// active session first.
type ConflictError struct {
	ActiveID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("cannot start new session while %s is active", e.ActiveID)
}

// Guard is the process-wide mutual-exclusion register for capture
// sessions. At most one session is Active at a time; all mutation happens
// under a single lock so concurrent Start calls cannot race.
type Guard struct {
	mu     sync.Mutex
	active *Session
}

// NewGuard creates an empty register. Production code shares the package
// default; tests construct their own.
func NewGuard() *Guard {
	return &Guard{}
}

var defaultGuard = NewGuard()

// Default returns the process-wide register.
func Default() *Guard {
	return defaultGuard
}

// Start marks the session Active and records its start time. It returns
// false, leaving all state unchanged, while a different session is Active.
func (g *Guard) Start(s *Session) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.active != nil && g.active.ID != s.ID {
		return false
	}

	g.active = s
	s.markActive(time.Now())
	return true
}

// End transitions the Active session to Ended and clears the register. It
// returns false if id does not match the Active session.
func (g *Guard) End(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.active == nil || g.active.ID != id {
		return false
	}

	g.active.markEnded(time.Now())
	g.active = nil
	return true
}

// IsActive reports whether the given session currently holds the register.
func (g *Guard) IsActive(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active != nil && g.active.ID == id
}

// Active returns the session holding the register, if any.
func (g *Guard) Active() (*Session, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.active == nil {
		return nil, false
	}
	return g.active, true
}

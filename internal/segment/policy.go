package segment

import (
	"time"

	"github.com/Soniccccccccxman/lecturescript-engine/internal/vad"
)

// Policy holds the boundary rules applied to the open chunk each tick.
type Policy struct {
	// MinDuration is the floor below which a silence boundary never fires.
	MinDuration time.Duration
	// MaxDuration forces a cut regardless of speech state.
	MaxDuration time.Duration
	// SilenceDuration is how much persisted silence marks an utterance
	// boundary. It matches the classifier's speech-active window.
	SilenceDuration time.Duration
}

// Decide returns the reason the open chunk should close given its age and
// the classifier snapshot for this tick, or CloseNone to keep accumulating.
//
// The max-duration rule wins over everything: unbounded buffering is worse
// than a mid-utterance cut, which the transcript merger repairs downstream.
func (p Policy) Decide(age time.Duration, snap vad.Snapshot) CloseReason {
	if age >= p.MaxDuration {
		return CloseMaxDuration
	}
	if snap.State == vad.Silent && age >= p.MinDuration && snap.SilenceDuration >= p.SilenceDuration {
		return CloseSilence
	}
	return CloseNone
}

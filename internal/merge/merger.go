package merge

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Action is the merger's verdict on one accepted fragment.
type Action int

const (
	// Appended means the fragment's text entered the running transcript,
	// possibly with its duplicated head trimmed.
	Appended Action = iota
	// Discarded means the fragment was judged a reprocessed duplicate of
	// already-accepted text.
	Discarded
	// Buffered means the fragment arrived ahead of a missing lower index
	// and is held until that gap resolves.
	Buffered
)

// String returns a human-readable action name.
func (a Action) String() string {
	switch a {
	case Appended:
		return "appended"
	case Discarded:
		return "discarded"
	case Buffered:
		return "buffered"
	default:
		return fmt.Sprintf("unknown(%d)", int(a))
	}
}

// Fragment is the text returned for one chunk.
type Fragment struct {
	// Index is the chunk index the text originates from.
	Index     int
	Text      string
	ArrivedAt time.Time
}

// Span is one accepted piece of the running transcript.
type Span struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// Config contains merger tuning parameters.
type Config struct {
	// TailWindow is how many trailing accepted words take part in the
	// duplicate comparison.
	TailWindow int
	// DuplicateThreshold is the token-overlap ratio at or above which an
	// incoming fragment is discarded as a reprocessed duplicate.
	DuplicateThreshold float64
	// MaxGapWait bounds how long buffered fragments wait for a missing
	// predecessor before the merger gives up on the gap.
	MaxGapWait time.Duration
}

// Merger combines transcription fragments into one running transcript.
// Fragments are applied in chunk-index order regardless of arrival order:
// an early arrival is buffered until every lower index has been accepted
// or skipped. Applied fragments pass a token-overlap duplicate check
// against the transcript tail before appending.
//
// The duplicate heuristic is deliberately conservative and known to
// misfire on short, legitimately repeated phrases (a speaker saying
// "no, no, no" twice in a row reads as a duplicate). That ambiguity is
// inherited behavior, kept rather than guessed away.
type Merger struct {
	config Config

	mu        sync.Mutex
	nextIndex int
	pending   map[int]Fragment
	skipped   map[int]bool
	// blockedSince is the arrival time of the earliest held fragment, the
	// clock FlushStale measures the gap wait against. Zero when nothing
	// is pending.
	blockedSince time.Time

	spans      []Span
	words      []string
	transcript string

	appendedCount  uint64
	discardedCount uint64
	bufferedCount  uint64
	skipCount      uint64
	gapFlushes     uint64
}

// Stats reports merger counters for monitoring.
type Stats struct {
	NextIndex  int    `json:"next_index"`
	Pending    int    `json:"pending"`
	Spans      int    `json:"spans"`
	Words      int    `json:"words"`
	Appended   uint64 `json:"appended"`
	Discarded  uint64 `json:"discarded"`
	Buffered   uint64 `json:"buffered"`
	Skips      uint64 `json:"skips"`
	GapFlushes uint64 `json:"gap_flushes"`
}

// NewMerger creates a merger with the given tuning.
func NewMerger(config Config) (*Merger, error) {
	if config.TailWindow <= 0 {
		return nil, fmt.Errorf("tail window must be positive, got %d", config.TailWindow)
	}
	if config.DuplicateThreshold <= 0 || config.DuplicateThreshold > 1 {
		return nil, fmt.Errorf("duplicate threshold must be in (0, 1], got %f", config.DuplicateThreshold)
	}
	if config.MaxGapWait <= 0 {
		return nil, fmt.Errorf("max gap wait must be positive, got %v", config.MaxGapWait)
	}

	return &Merger{
		config:  config,
		pending: make(map[int]Fragment),
		skipped: make(map[int]bool),
	}, nil
}

// Accept delivers one fragment and returns what happened to it. A
// fragment for an index already consumed is discarded; a fragment ahead
// of the next expected index is buffered; the expected fragment is
// applied immediately, followed by any buffered successors it unblocks.
func (m *Merger) Accept(frag Fragment) Action {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case frag.Index < m.nextIndex:
		m.discardedCount++
		return Discarded

	case frag.Index > m.nextIndex:
		m.pending[frag.Index] = frag
		m.bufferedCount++
		if m.blockedSince.IsZero() || frag.ArrivedAt.Before(m.blockedSince) {
			m.blockedSince = frag.ArrivedAt
		}
		return Buffered
	}

	action := m.apply(frag)
	delete(m.skipped, frag.Index)
	m.nextIndex++
	m.drain()
	return action
}

// Skip marks a chunk index as never producing a fragment (the chunk
// failed or was skipped before dispatch) so ordering does not stall on it.
func (m *Merger) Skip(index int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.skipCount++
	switch {
	case index < m.nextIndex:
		return
	case index == m.nextIndex:
		m.nextIndex++
		m.drain()
	default:
		m.skipped[index] = true
	}
}

// FlushStale gives up waiting once buffered fragments have been held
// longer than the configured gap wait: every held fragment is applied in
// index order and the missing indices become permanent gaps. It returns
// how many fragments were applied.
func (m *Merger) FlushStale(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.pending) == 0 {
		return 0
	}
	if now.Sub(m.blockedSince) < m.config.MaxGapWait {
		return 0
	}

	m.gapFlushes++
	applied := 0
	for len(m.pending) > 0 {
		lowest := -1
		for index := range m.pending {
			if lowest == -1 || index < lowest {
				lowest = index
			}
		}
		m.nextIndex = lowest
		applied += m.drain()
	}
	m.blockedSince = time.Time{}
	return applied
}

// Transcript returns the current merged text. Safe to call at any time.
func (m *Merger) Transcript() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transcript
}

// Tail returns the last TailWindow accepted words as one string, used as
// the recognition context prompt for the next chunk.
func (m *Merger) Tail() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return strings.Join(m.tailWindow(), " ")
}

// Spans returns a copy of the accepted spans in order.
func (m *Merger) Spans() []Span {
	m.mu.Lock()
	defer m.mu.Unlock()

	spans := make([]Span, len(m.spans))
	copy(spans, m.spans)
	return spans
}

// Stats returns current merger counters.
func (m *Merger) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Stats{
		NextIndex:  m.nextIndex,
		Pending:    len(m.pending),
		Spans:      len(m.spans),
		Words:      len(m.words),
		Appended:   m.appendedCount,
		Discarded:  m.discardedCount,
		Buffered:   m.bufferedCount,
		Skips:      m.skipCount,
		GapFlushes: m.gapFlushes,
	}
}

// drain applies consecutive buffered fragments starting at nextIndex,
// consuming recorded skips along the way. Returns how many fragments
// were applied. Caller holds the lock.
func (m *Merger) drain() int {
	applied := 0
	for {
		if frag, ok := m.pending[m.nextIndex]; ok {
			delete(m.pending, m.nextIndex)
			delete(m.skipped, m.nextIndex)
			m.apply(frag)
			m.nextIndex++
			applied++
			continue
		}
		if m.skipped[m.nextIndex] {
			delete(m.skipped, m.nextIndex)
			m.nextIndex++
			continue
		}
		break
	}

	if len(m.pending) == 0 {
		m.blockedSince = time.Time{}
	} else {
		m.blockedSince = time.Time{}
		for _, frag := range m.pending {
			if m.blockedSince.IsZero() || frag.ArrivedAt.Before(m.blockedSince) {
				m.blockedSince = frag.ArrivedAt
			}
		}
	}

	return applied
}

// apply runs the duplicate check and appends the fragment at the current
// position. Caller holds the lock and guarantees index order.
func (m *Merger) apply(frag Fragment) Action {
	fragWords := strings.Fields(frag.Text)
	if len(fragWords) == 0 {
		m.discardedCount++
		return Discarded
	}

	tail := m.tailWindow()
	if overlapRatio(tail, fragWords) >= m.config.DuplicateThreshold {
		m.discardedCount++
		return Discarded
	}

	// Trim the duplicated seam: the longest run of words ending the
	// accepted transcript that also begins this fragment.
	trimmed := fragWords[seamOverlap(tail, fragWords):]
	if len(trimmed) == 0 {
		m.discardedCount++
		return Discarded
	}

	text := strings.Join(trimmed, " ")
	m.spans = append(m.spans, Span{Index: frag.Index, Text: text})
	m.words = append(m.words, trimmed...)
	if m.transcript == "" {
		m.transcript = text
	} else {
		m.transcript += " " + text
	}

	m.appendedCount++
	return Appended
}

// tailWindow returns the last TailWindow accepted words.
func (m *Merger) tailWindow() []string {
	if len(m.words) <= m.config.TailWindow {
		return m.words
	}
	return m.words[len(m.words)-m.config.TailWindow:]
}

// overlapRatio computes |common| / max(|a|, |b|) over the distinct
// lowercased words of both sides.
func overlapRatio(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	setA := make(map[string]bool, len(a))
	for _, word := range a {
		setA[strings.ToLower(word)] = true
	}
	setB := make(map[string]bool, len(b))
	for _, word := range b {
		setB[strings.ToLower(word)] = true
	}

	common := 0
	for word := range setB {
		if setA[word] {
			common++
		}
	}

	larger := len(setA)
	if len(setB) > larger {
		larger = len(setB)
	}
	return float64(common) / float64(larger)
}

// seamOverlap returns the length of the longest suffix of tail that
// matches a prefix of words, case-insensitively.
func seamOverlap(tail, words []string) int {
	limit := len(tail)
	if len(words) < limit {
		limit = len(words)
	}

	for k := limit; k > 0; k-- {
		match := true
		for i := 0; i < k; i++ {
			if !strings.EqualFold(tail[len(tail)-k+i], words[i]) {
				match = false
				break
			}
		}
		if match {
			return k
		}
	}
	return 0
}

package audio

// Windower reassembles arbitrarily sized PCM-16 byte buffers into
// fixed-size analysis windows. Capture sources deliver whatever fragment
// size the device hands them; the analysis loop wants exact windows.
//
// Windower is not safe for concurrent use; it belongs to the single
// goroutine that drives the analysis loop.
type Windower struct {
	windowSize int // samples per emitted window
	pending    []byte
}

// NewWindower creates a windower emitting windows of windowSize samples.
func NewWindower(windowSize int) *Windower {
	return &Windower{
		windowSize: windowSize,
		pending:    make([]byte, 0, windowSize*4),
	}
}

// Push appends raw little-endian PCM-16 bytes and returns every complete
// window now available, in stream order. Returns nil when no window
// completed.
func (w *Windower) Push(data []byte) [][]int16 {
	w.pending = append(w.pending, data...)

	windowBytes := w.windowSize * 2
	if len(w.pending) < windowBytes {
		return nil
	}

	count := len(w.pending) / windowBytes
	windows := make([][]int16, 0, count)
	for i := 0; i < count; i++ {
		start := i * windowBytes
		windows = append(windows, SamplesFromBytes(w.pending[start:start+windowBytes]))
	}

	// Shift the unconsumed remainder to the front.
	remainder := len(w.pending) - count*windowBytes
	copy(w.pending, w.pending[count*windowBytes:])
	w.pending = w.pending[:remainder]

	return windows
}

// WindowSize returns the number of samples per emitted window.
func (w *Windower) WindowSize() int {
	return w.windowSize
}

// PendingSamples returns how many samples are buffered awaiting a full window.
func (w *Windower) PendingSamples() int {
	return len(w.pending) / 2
}

// Reset discards any buffered partial window.
func (w *Windower) Reset() {
	w.pending = w.pending[:0]
}

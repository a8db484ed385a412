package capture

import "context"

// Source is a continuous stream of raw little-endian 16-bit mono PCM
// buffers. Buffer sizes follow the device's delivery granularity; the
// consumer is responsible for reassembling fixed analysis windows.
type Source interface {
	// Start begins delivery. Device errors (unavailable, permission
	// denied, busy) surface here and are fatal to session start.
	Start(ctx context.Context) error
	// Buffers returns the PCM stream. The channel is closed when the
	// source stops.
	Buffers() <-chan []byte
	// SampleRate returns the stream's sample rate in Hz.
	SampleRate() int
	// Close releases the underlying device and closes Buffers. Safe to
	// call more than once.
	Close() error
}

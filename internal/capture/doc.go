// Package capture provides the raw PCM sources the engine records from:
// a PulseAudio microphone stream and a UDP listener for piped audio. Both
// deliver little-endian 16-bit mono samples on a buffered channel and drop
// data rather than block when the consumer falls behind.
package capture

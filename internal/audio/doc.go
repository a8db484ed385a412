// Package audio provides the signal-level primitives of the engine:
// RMS/peak energy analysis over PCM-16 sample windows, reassembly of
// arbitrary capture buffers into fixed-size analysis windows, and WAV
// encoding of closed segments for transcription upload.
package audio

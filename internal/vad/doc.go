// Package vad converts per-window RMS energy into a speech/silence state
// machine. It distinguishes instantaneous silence from silence that has
// persisted long enough to matter, so short pauses inside a sentence do
// not fragment the transcript.
package vad

// Package dispatch submits closed audio chunks for transcription without
// blocking the capture loop. Each viable chunk is transcribed on its own
// goroutine under a concurrency bound; outcomes arrive on an event channel
// in completion order. Failures are per-chunk and never retried here.
package dispatch

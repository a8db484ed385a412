// Package engine orchestrates the capture pipeline: audio windows from a
// capture source drive the speech classifier, chunk segmenter and quality
// monitor on a single tick loop, closed chunks are dispatched for
// transcription, and outcomes merge into a running transcript. One
// session runs at a time, enforced by the session guard.
package engine

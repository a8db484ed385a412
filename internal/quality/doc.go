// Package quality rates recent capture audio from a rolling window of
// per-tick RMS levels and raises rate-limited advisory alerts when
// sustained poor quality suggests a microphone problem.
package quality

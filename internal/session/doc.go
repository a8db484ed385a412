// Package session defines the capture session lifecycle and the
// process-wide guard register that keeps at most one session active. A
// second start attempt while a session holds the register is rejected as
// a recoverable conflict, never an error inside the capture pipeline.
package session

// Package server implements the monitoring HTTP API around the capture
// engine: health, session, transcript, configuration and statistics
// endpoints, Prometheus metrics, and a WebSocket feed broadcasting live
// pipeline events.
package server

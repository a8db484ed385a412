package quality

import (
	"fmt"
	"sync"
	"time"
)

// Bucket is an ordinal audio quality rating. Buckets are telemetry, not
// error states.
type Bucket int

const (
	Poor Bucket = iota
	Fair
	Good
	Excellent
)

// String returns a human-readable bucket name.
func (b Bucket) String() string {
	switch b {
	case Poor:
		return "poor"
	case Fair:
		return "fair"
	case Good:
		return "good"
	case Excellent:
		return "excellent"
	default:
		return fmt.Sprintf("unknown(%d)", int(b))
	}
}

// Config contains monitor tuning parameters.
type Config struct {
	// WindowTicks is the rolling window capacity in analysis ticks.
	WindowTicks int
	// PoorBelow, FairBelow, GoodBelow are ascending average-RMS bucket
	// boundaries; averages at or above GoodBelow rate excellent.
	PoorBelow float64
	FairBelow float64
	GoodBelow float64
	// AlertAfter is how many consecutive poor ticks arm the alert.
	AlertAfter int
	// AlertCooldown is the minimum gap between raised alerts.
	AlertCooldown time.Duration
}

// Report is the monitor output for one analysis tick.
type Report struct {
	// Average is the rolling mean RMS over the window.
	Average float64
	Bucket  Bucket
	// Alert is true on the tick an advisory poor-audio alert is raised.
	Alert bool
}

// Monitor keeps a rolling window of per-tick RMS levels and rates the
// recent audio quality. Alerts are hysteresis-gated: only sustained poor
// quality raises one, and a cooldown keeps naturally quiet passages from
// producing storms. Alerts never halt capture.
type Monitor struct {
	config Config

	window []float64
	head   int
	count  int
	sum    float64

	consecutivePoor int
	lastAlert       time.Time
	alertsRaised    uint64

	mu sync.RWMutex
}

// Stats reports monitor counters for monitoring endpoints.
type Stats struct {
	Average         float64   `json:"average_rms"`
	Bucket          string    `json:"bucket"`
	ConsecutivePoor int       `json:"consecutive_poor"`
	AlertsRaised    uint64    `json:"alerts_raised"`
	LastAlert       time.Time `json:"last_alert,omitempty"`
	WindowFill      int       `json:"window_fill"`
}

// NewMonitor creates a monitor with the given tuning.
func NewMonitor(config Config) (*Monitor, error) {
	if config.WindowTicks <= 0 {
		return nil, fmt.Errorf("window ticks must be positive, got %d", config.WindowTicks)
	}
	if config.PoorBelow <= 0 || config.PoorBelow >= config.FairBelow || config.FairBelow >= config.GoodBelow {
		return nil, fmt.Errorf("bucket thresholds must ascend: poor %f, fair %f, good %f",
			config.PoorBelow, config.FairBelow, config.GoodBelow)
	}
	if config.AlertAfter <= 0 {
		return nil, fmt.Errorf("alert floor must be positive, got %d", config.AlertAfter)
	}
	if config.AlertCooldown <= 0 {
		return nil, fmt.Errorf("alert cooldown must be positive, got %v", config.AlertCooldown)
	}

	return &Monitor{
		config: config,
		window: make([]float64, config.WindowTicks),
	}, nil
}

// Observe records one tick's RMS level at the given instant and returns
// the quality report for that tick.
func (m *Monitor) Observe(now time.Time, rms float64) Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.count == len(m.window) {
		m.sum -= m.window[m.head]
	} else {
		m.count++
	}
	m.window[m.head] = rms
	m.sum += rms
	m.head = (m.head + 1) % len(m.window)

	average := m.sum / float64(m.count)
	bucket := m.bucketFor(average)

	if bucket == Poor {
		m.consecutivePoor++
	} else {
		m.consecutivePoor = 0
	}

	alert := false
	if m.consecutivePoor >= m.config.AlertAfter && now.Sub(m.lastAlert) >= m.config.AlertCooldown {
		alert = true
		m.lastAlert = now
		m.alertsRaised++
	}

	return Report{Average: average, Bucket: bucket, Alert: alert}
}

func (m *Monitor) bucketFor(average float64) Bucket {
	switch {
	case average < m.config.PoorBelow:
		return Poor
	case average < m.config.FairBelow:
		return Fair
	case average < m.config.GoodBelow:
		return Good
	default:
		return Excellent
	}
}

// Stats returns a snapshot of the monitor state.
func (m *Monitor) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	average := float64(0)
	if m.count > 0 {
		average = m.sum / float64(m.count)
	}

	return Stats{
		Average:         average,
		Bucket:          m.bucketFor(average).String(),
		ConsecutivePoor: m.consecutivePoor,
		AlertsRaised:    m.alertsRaised,
		LastAlert:       m.lastAlert,
		WindowFill:      m.count,
	}
}

// Reset clears the window and alert state for a new session.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.head = 0
	m.count = 0
	m.sum = 0
	m.consecutivePoor = 0
	m.lastAlert = time.Time{}
	m.alertsRaised = 0
}

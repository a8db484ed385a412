package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete engine configuration.
type Config struct {
	Capture       CaptureConfig       `yaml:"capture"`
	Audio         AudioConfig         `yaml:"audio"`
	VAD           VADConfig           `yaml:"vad"`
	Segmenter     SegmenterConfig     `yaml:"segmenter"`
	Quality       QualityConfig       `yaml:"quality"`
	Merger        MergerConfig        `yaml:"merger"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Server        ServerConfig        `yaml:"server"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// CaptureConfig selects the audio input source.
type CaptureConfig struct {
	// Backend is "pulse" (microphone) or "udp" (network PCM).
	Backend string `yaml:"backend"`
	// Device is the Pulse source name; empty means the default source.
	Device      string `yaml:"device"`
	UDPPort     int    `yaml:"udp_port"`
	BindAddress string `yaml:"bind_address"`
	// BufferSize is the UDP kernel receive buffer in bytes.
	BufferSize int `yaml:"buffer_size"`
}

// AudioConfig contains sample format parameters.
type AudioConfig struct {
	SampleRate int `yaml:"sample_rate"`
	// WindowSize is the analysis window length in samples; one window is
	// one tick of the capture loop.
	WindowSize int `yaml:"window_size"`
}

// VADConfig contains speech/silence classifier parameters.
type VADConfig struct {
	// SilenceThreshold is the normalized RMS level at or below which a
	// tick counts as silent.
	SilenceThreshold float64 `yaml:"silence_threshold"`
	// SilenceDuration is how long silence must persist before it closes
	// a chunk, in seconds.
	SilenceDuration float64 `yaml:"silence_duration"`
}

// SegmenterConfig contains chunk boundary parameters.
type SegmenterConfig struct {
	MinChunkDuration float64 `yaml:"min_chunk_duration"` // seconds
	MaxChunkDuration float64 `yaml:"max_chunk_duration"` // seconds
}

// QualityConfig contains signal quality monitoring parameters.
type QualityConfig struct {
	// WindowTicks is the rolling average length in ticks.
	WindowTicks int `yaml:"window_ticks"`
	// Bucket boundaries on average RMS, ascending.
	PoorBelow float64 `yaml:"poor_below"`
	FairBelow float64 `yaml:"fair_below"`
	GoodBelow float64 `yaml:"good_below"`
	// AlertAfter is how many consecutive poor ticks raise an alert.
	AlertAfter    int     `yaml:"alert_after"`
	AlertCooldown float64 `yaml:"alert_cooldown"` // seconds
}

// MergerConfig contains transcript merge parameters.
type MergerConfig struct {
	// TailWindow is how many trailing accepted words join the duplicate
	// comparison.
	TailWindow         int     `yaml:"tail_window"`
	DuplicateThreshold float64 `yaml:"duplicate_threshold"`
	// MaxGapWait bounds how long buffered fragments wait for a missing
	// predecessor, in seconds.
	MaxGapWait float64 `yaml:"max_gap_wait"`
}

// TranscriptionConfig contains transcription backend and dispatch
// parameters.
type TranscriptionConfig struct {
	// Backend is "http" or "openai".
	Backend  string `yaml:"backend"`
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Language string `yaml:"language"`
	Timeout  int    `yaml:"timeout"` // seconds
	// MaxConcurrent bounds in-flight transcription requests.
	MaxConcurrent int `yaml:"max_concurrent"`
	// MinViableDuration is the shortest chunk worth dispatching, in
	// seconds.
	MinViableDuration float64 `yaml:"min_viable_duration"`
}

// ServerConfig contains the monitoring HTTP server configuration.
type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Environment variables that override transcription.api_key, in priority
// order.
const (
	envAPIKey       = "LECTURESCRIPT_API_KEY"
	envOpenAIAPIKey = "OPENAI_API_KEY"
)

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Capture: CaptureConfig{
			Backend:     "pulse",
			BindAddress: "0.0.0.0",
			UDPPort:     4444,
			BufferSize:  65536,
		},
		Audio: AudioConfig{
			SampleRate: 16000,
			WindowSize: 320, // 20ms at 16kHz
		},
		VAD: VADConfig{
			SilenceThreshold: 0.01,
			SilenceDuration:  2.5,
		},
		Segmenter: SegmenterConfig{
			MinChunkDuration: 1.5,
			MaxChunkDuration: 30.0,
		},
		Quality: QualityConfig{
			WindowTicks:   30,
			PoorBelow:     0.005,
			FairBelow:     0.02,
			GoodBelow:     0.08,
			AlertAfter:    5,
			AlertCooldown: 10.0,
		},
		Merger: MergerConfig{
			TailWindow:         10,
			DuplicateThreshold: 0.8,
			MaxGapWait:         10.0,
		},
		Transcription: TranscriptionConfig{
			Backend:           "openai",
			Model:             "whisper-1",
			Timeout:           30,
			MaxConcurrent:     4,
			MinViableDuration: 1.0,
		},
		Server: ServerConfig{
			Enabled: true,
			Address: "127.0.0.1",
			Port:    8080,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads and parses the configuration file, applies environment
// overrides, and validates the result. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	config.applyEnvOverrides()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// applyEnvOverrides lets the environment supply the API key so it never
// has to live in the config file.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv(envAPIKey); key != "" {
		c.Transcription.APIKey = key
		return
	}
	if key := os.Getenv(envOpenAIAPIKey); key != "" {
		c.Transcription.APIKey = key
	}
}

// Validate performs comprehensive validation of the configuration.
func (c *Config) Validate() error {
	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.VAD.Validate(); err != nil {
		return fmt.Errorf("vad config: %w", err)
	}

	if err := c.Segmenter.Validate(); err != nil {
		return fmt.Errorf("segmenter config: %w", err)
	}

	if err := c.Quality.Validate(); err != nil {
		return fmt.Errorf("quality config: %w", err)
	}

	if err := c.Merger.Validate(); err != nil {
		return fmt.Errorf("merger config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Sanitized returns a copy safe to expose over the monitoring API.
func (c *Config) Sanitized() Config {
	out := *c
	if out.Transcription.APIKey != "" {
		out.Transcription.APIKey = "[redacted]"
	}
	return out
}

// Validate validates capture configuration.
func (c *CaptureConfig) Validate() error {
	switch c.Backend {
	case "pulse":
	case "udp":
		if c.UDPPort < 1 || c.UDPPort > 65535 {
			return fmt.Errorf("udp_port must be between 1 and 65535, got %d", c.UDPPort)
		}
		if c.BindAddress == "" {
			return fmt.Errorf("bind_address cannot be empty for udp capture")
		}
		if c.BufferSize < 1024 {
			return fmt.Errorf("buffer_size must be at least 1024 bytes, got %d", c.BufferSize)
		}
	default:
		return fmt.Errorf("backend must be 'pulse' or 'udp', got '%s'", c.Backend)
	}

	return nil
}

// Validate validates audio configuration.
func (a *AudioConfig) Validate() error {
	if a.SampleRate < 8000 || a.SampleRate > 48000 {
		return fmt.Errorf("sample_rate must be between 8000 and 48000 Hz, got %d", a.SampleRate)
	}

	if a.WindowSize < 160 || a.WindowSize > 4096 {
		return fmt.Errorf("window_size must be between 160 and 4096 samples, got %d", a.WindowSize)
	}

	return nil
}

// Validate validates VAD configuration.
func (v *VADConfig) Validate() error {
	if v.SilenceThreshold <= 0 || v.SilenceThreshold >= 1 {
		return fmt.Errorf("silence_threshold must be between 0 and 1 (exclusive), got %f", v.SilenceThreshold)
	}

	if v.SilenceDuration <= 0 {
		return fmt.Errorf("silence_duration must be positive, got %f", v.SilenceDuration)
	}

	return nil
}

// Validate validates segmenter configuration.
func (s *SegmenterConfig) Validate() error {
	if s.MinChunkDuration <= 0 {
		return fmt.Errorf("min_chunk_duration must be positive, got %f", s.MinChunkDuration)
	}

	if s.MaxChunkDuration <= s.MinChunkDuration {
		return fmt.Errorf("max_chunk_duration (%f) must be greater than min_chunk_duration (%f)",
			s.MaxChunkDuration, s.MinChunkDuration)
	}

	return nil
}

// Validate validates quality monitoring configuration.
func (q *QualityConfig) Validate() error {
	if q.WindowTicks < 1 {
		return fmt.Errorf("window_ticks must be at least 1, got %d", q.WindowTicks)
	}

	if q.PoorBelow <= 0 {
		return fmt.Errorf("poor_below must be positive, got %f", q.PoorBelow)
	}

	if q.FairBelow <= q.PoorBelow || q.GoodBelow <= q.FairBelow {
		return fmt.Errorf("bucket thresholds must ascend: poor_below (%f) < fair_below (%f) < good_below (%f)",
			q.PoorBelow, q.FairBelow, q.GoodBelow)
	}

	if q.GoodBelow >= 1 {
		return fmt.Errorf("good_below must be below 1, got %f", q.GoodBelow)
	}

	if q.AlertAfter < 1 {
		return fmt.Errorf("alert_after must be at least 1, got %d", q.AlertAfter)
	}

	if q.AlertCooldown <= 0 {
		return fmt.Errorf("alert_cooldown must be positive, got %f", q.AlertCooldown)
	}

	return nil
}

// Validate validates merger configuration.
func (m *MergerConfig) Validate() error {
	if m.TailWindow < 1 {
		return fmt.Errorf("tail_window must be at least 1, got %d", m.TailWindow)
	}

	if m.DuplicateThreshold <= 0 || m.DuplicateThreshold > 1 {
		return fmt.Errorf("duplicate_threshold must be in (0, 1], got %f", m.DuplicateThreshold)
	}

	if m.MaxGapWait <= 0 {
		return fmt.Errorf("max_gap_wait must be positive, got %f", m.MaxGapWait)
	}

	return nil
}

// Validate validates transcription configuration.
func (t *TranscriptionConfig) Validate() error {
	switch t.Backend {
	case "http":
		if t.Endpoint == "" {
			return fmt.Errorf("endpoint cannot be empty for http backend")
		}
	case "openai":
		if t.APIKey == "" {
			return fmt.Errorf("api_key cannot be empty for openai backend (set %s)", envAPIKey)
		}
	default:
		return fmt.Errorf("backend must be 'http' or 'openai', got '%s'", t.Backend)
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", t.MaxConcurrent)
	}

	if t.MinViableDuration <= 0 {
		return fmt.Errorf("min_viable_duration must be positive, got %f", t.MinViableDuration)
	}

	return nil
}

// Validate validates monitoring server configuration.
func (s *ServerConfig) Validate() error {
	if s.Enabled {
		if s.Port < 1 || s.Port > 65535 {
			return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
		}

		if s.Address == "" {
			return fmt.Errorf("address cannot be empty when the server is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration.
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// Output accepts stdout, stderr, or a file path.
	return nil
}

// GetWindowDuration returns the analysis window length as a duration; one
// window is one capture tick.
func (a *AudioConfig) GetWindowDuration() time.Duration {
	return time.Duration(a.WindowSize) * time.Second / time.Duration(a.SampleRate)
}

// GetSilenceDuration returns the silence close threshold as a duration.
func (v *VADConfig) GetSilenceDuration() time.Duration {
	return time.Duration(v.SilenceDuration * float64(time.Second))
}

// GetMinChunkDuration returns the minimum chunk duration as a duration.
func (s *SegmenterConfig) GetMinChunkDuration() time.Duration {
	return time.Duration(s.MinChunkDuration * float64(time.Second))
}

// GetMaxChunkDuration returns the maximum chunk duration as a duration.
func (s *SegmenterConfig) GetMaxChunkDuration() time.Duration {
	return time.Duration(s.MaxChunkDuration * float64(time.Second))
}

// GetAlertCooldown returns the alert cooldown as a duration.
func (q *QualityConfig) GetAlertCooldown() time.Duration {
	return time.Duration(q.AlertCooldown * float64(time.Second))
}

// GetMaxGapWait returns the merge gap wait as a duration.
func (m *MergerConfig) GetMaxGapWait() time.Duration {
	return time.Duration(m.MaxGapWait * float64(time.Second))
}

// GetTimeoutDuration returns the transcription timeout as a duration.
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetMinViableDuration returns the dispatch floor as a duration.
func (t *TranscriptionConfig) GetMinViableDuration() time.Duration {
	return time.Duration(t.MinViableDuration * float64(time.Second))
}

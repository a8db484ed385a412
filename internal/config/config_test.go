package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// validConfig returns a fully valid configuration for mutation in tests.
func validConfig() *Config {
	config := DefaultConfig()
	config.Transcription.APIKey = "test-key"
	return config
}

func TestDefaultConfigIsValidWithKey(t *testing.T) {
	config := validConfig()
	if err := config.Validate(); err != nil {
		t.Fatalf("Default config with API key failed validation: %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
	}{
		{
			name:        "valid configuration",
			mutate:      func(c *Config) {},
			expectError: false,
		},
		{
			name: "http backend without api key",
			mutate: func(c *Config) {
				c.Transcription.Backend = "http"
				c.Transcription.Endpoint = "http://localhost:9000/transcribe"
				c.Transcription.APIKey = ""
			},
			expectError: false,
		},
		{
			name:        "unknown capture backend",
			mutate:      func(c *Config) { c.Capture.Backend = "jack" },
			expectError: true,
		},
		{
			name: "udp capture with invalid port",
			mutate: func(c *Config) {
				c.Capture.Backend = "udp"
				c.Capture.UDPPort = 70000
			},
			expectError: true,
		},
		{
			name:        "sample rate too low",
			mutate:      func(c *Config) { c.Audio.SampleRate = 4000 },
			expectError: true,
		},
		{
			name:        "window size too small",
			mutate:      func(c *Config) { c.Audio.WindowSize = 8 },
			expectError: true,
		},
		{
			name:        "silence threshold out of range",
			mutate:      func(c *Config) { c.VAD.SilenceThreshold = 1.5 },
			expectError: true,
		},
		{
			name:        "zero silence duration",
			mutate:      func(c *Config) { c.VAD.SilenceDuration = 0 },
			expectError: true,
		},
		{
			name: "max chunk duration below min",
			mutate: func(c *Config) {
				c.Segmenter.MinChunkDuration = 10
				c.Segmenter.MaxChunkDuration = 5
			},
			expectError: true,
		},
		{
			name: "quality thresholds not ascending",
			mutate: func(c *Config) {
				c.Quality.PoorBelow = 0.05
				c.Quality.FairBelow = 0.02
			},
			expectError: true,
		},
		{
			name:        "zero alert floor",
			mutate:      func(c *Config) { c.Quality.AlertAfter = 0 },
			expectError: true,
		},
		{
			name:        "zero merger tail window",
			mutate:      func(c *Config) { c.Merger.TailWindow = 0 },
			expectError: true,
		},
		{
			name:        "duplicate threshold above one",
			mutate:      func(c *Config) { c.Merger.DuplicateThreshold = 1.2 },
			expectError: true,
		},
		{
			name:        "unknown transcription backend",
			mutate:      func(c *Config) { c.Transcription.Backend = "carrier-pigeon" },
			expectError: true,
		},
		{
			name: "http backend without endpoint",
			mutate: func(c *Config) {
				c.Transcription.Backend = "http"
				c.Transcription.Endpoint = ""
			},
			expectError: true,
		},
		{
			name:        "openai backend without api key",
			mutate:      func(c *Config) { c.Transcription.APIKey = "" },
			expectError: true,
		},
		{
			name:        "zero transcription concurrency",
			mutate:      func(c *Config) { c.Transcription.MaxConcurrent = 0 },
			expectError: true,
		},
		{
			name: "server enabled with invalid port",
			mutate: func(c *Config) {
				c.Server.Enabled = true
				c.Server.Port = 0
			},
			expectError: true,
		},
		{
			name: "server disabled skips address checks",
			mutate: func(c *Config) {
				c.Server.Enabled = false
				c.Server.Port = 0
				c.Server.Address = ""
			},
			expectError: false,
		},
		{
			name:        "invalid log level",
			mutate:      func(c *Config) { c.Logging.Level = "verbose" },
			expectError: true,
		},
		{
			name:        "invalid log format",
			mutate:      func(c *Config) { c.Logging.Format = "xml" },
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.mutate(config)

			err := config.Validate()
			if tt.expectError && err == nil {
				t.Error("Expected validation error, got nil")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Expected no error, got: %v", err)
			}
		})
	}
}

func TestConfigLoad(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.yaml")

	configYAML := `
capture:
  backend: udp
  udp_port: 5555
  bind_address: 127.0.0.1
  buffer_size: 32768
audio:
  sample_rate: 16000
  window_size: 512
vad:
  silence_threshold: 0.02
  silence_duration: 3.0
segmenter:
  min_chunk_duration: 2.0
  max_chunk_duration: 20.0
transcription:
  backend: http
  endpoint: http://localhost:9000/transcribe
  language: en
logging:
  level: debug
  format: json
`
	if err := os.WriteFile(configPath, []byte(configYAML), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	config, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.Capture.Backend != "udp" {
		t.Errorf("Capture.Backend = %q, want udp", config.Capture.Backend)
	}
	if config.Capture.UDPPort != 5555 {
		t.Errorf("Capture.UDPPort = %d, want 5555", config.Capture.UDPPort)
	}
	if config.Audio.WindowSize != 512 {
		t.Errorf("Audio.WindowSize = %d, want 512", config.Audio.WindowSize)
	}
	if config.VAD.SilenceThreshold != 0.02 {
		t.Errorf("VAD.SilenceThreshold = %f, want 0.02", config.VAD.SilenceThreshold)
	}
	if config.Transcription.Language != "en" {
		t.Errorf("Transcription.Language = %q, want en", config.Transcription.Language)
	}

	// Sections absent from the file keep their defaults.
	if config.Merger.TailWindow != 10 {
		t.Errorf("Merger.TailWindow = %d, want default 10", config.Merger.TailWindow)
	}
	if config.Quality.AlertAfter != 5 {
		t.Errorf("Quality.AlertAfter = %d, want default 5", config.Quality.AlertAfter)
	}
}

func TestConfigLoadEmptyPathUsesDefaults(t *testing.T) {
	t.Setenv(envAPIKey, "env-key")

	config, err := Load("")
	if err != nil {
		t.Fatalf("Failed to load default config: %v", err)
	}

	if config.Capture.Backend != "pulse" {
		t.Errorf("Capture.Backend = %q, want pulse", config.Capture.Backend)
	}
	if config.Transcription.APIKey != "env-key" {
		t.Errorf("APIKey = %q, want env override", config.Transcription.APIKey)
	}
}

func TestConfigLoadNonexistentFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Error("Expected error for nonexistent config file")
	}
}

func TestConfigLoadInvalidYAML(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "bad.yaml")
	if err := os.WriteFile(configPath, []byte("capture: ["), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Error("Expected error for malformed YAML")
	}
}

func TestEnvOverridePriority(t *testing.T) {
	t.Setenv(envAPIKey, "primary-key")
	t.Setenv(envOpenAIAPIKey, "fallback-key")

	config, err := Load("")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if config.Transcription.APIKey != "primary-key" {
		t.Errorf("APIKey = %q, want primary env var to win", config.Transcription.APIKey)
	}
}

func TestEnvOverrideFallback(t *testing.T) {
	t.Setenv(envOpenAIAPIKey, "fallback-key")

	config := DefaultConfig()
	config.applyEnvOverrides()
	if config.Transcription.APIKey != "fallback-key" {
		t.Errorf("APIKey = %q, want fallback env var", config.Transcription.APIKey)
	}
}

func TestDurationHelpers(t *testing.T) {
	config := validConfig()
	config.Audio.SampleRate = 16000
	config.Audio.WindowSize = 320
	config.VAD.SilenceDuration = 2.5
	config.Segmenter.MinChunkDuration = 1.5
	config.Segmenter.MaxChunkDuration = 30
	config.Quality.AlertCooldown = 10
	config.Merger.MaxGapWait = 7.5
	config.Transcription.Timeout = 45
	config.Transcription.MinViableDuration = 0.8

	if got := config.Audio.GetWindowDuration(); got != 20*time.Millisecond {
		t.Errorf("GetWindowDuration = %v, want 20ms", got)
	}
	if got := config.VAD.GetSilenceDuration(); got != 2500*time.Millisecond {
		t.Errorf("GetSilenceDuration = %v, want 2.5s", got)
	}
	if got := config.Segmenter.GetMinChunkDuration(); got != 1500*time.Millisecond {
		t.Errorf("GetMinChunkDuration = %v, want 1.5s", got)
	}
	if got := config.Segmenter.GetMaxChunkDuration(); got != 30*time.Second {
		t.Errorf("GetMaxChunkDuration = %v, want 30s", got)
	}
	if got := config.Quality.GetAlertCooldown(); got != 10*time.Second {
		t.Errorf("GetAlertCooldown = %v, want 10s", got)
	}
	if got := config.Merger.GetMaxGapWait(); got != 7500*time.Millisecond {
		t.Errorf("GetMaxGapWait = %v, want 7.5s", got)
	}
	if got := config.Transcription.GetTimeoutDuration(); got != 45*time.Second {
		t.Errorf("GetTimeoutDuration = %v, want 45s", got)
	}
	if got := config.Transcription.GetMinViableDuration(); got != 800*time.Millisecond {
		t.Errorf("GetMinViableDuration = %v, want 0.8s", got)
	}
}

func TestSanitizedRedactsAPIKey(t *testing.T) {
	config := validConfig()
	sanitized := config.Sanitized()

	if sanitized.Transcription.APIKey != "[redacted]" {
		t.Errorf("Sanitized APIKey = %q, want redacted", sanitized.Transcription.APIKey)
	}
	if config.Transcription.APIKey != "test-key" {
		t.Error("Sanitized mutated the original config")
	}

	// Empty keys stay empty rather than pretending one was set.
	config.Transcription.APIKey = ""
	if got := config.Sanitized().Transcription.APIKey; got != "" {
		t.Errorf("Sanitized empty APIKey = %q, want empty", got)
	}
}

func TestValidationErrorNamesSection(t *testing.T) {
	config := validConfig()
	config.VAD.SilenceThreshold = -1

	err := config.Validate()
	if err == nil {
		t.Fatal("Expected validation error")
	}
	if !strings.Contains(err.Error(), "vad config") {
		t.Errorf("Error %q does not name the failing section", err.Error())
	}
}

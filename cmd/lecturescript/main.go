package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Soniccccccccxman/lecturescript-engine/internal/capture"
	"github.com/Soniccccccccxman/lecturescript-engine/internal/config"
	"github.com/Soniccccccccxman/lecturescript-engine/internal/engine"
	"github.com/Soniccccccccxman/lecturescript-engine/internal/metrics"
	"github.com/Soniccccccccxman/lecturescript-engine/internal/server"
	"github.com/Soniccccccccxman/lecturescript-engine/internal/session"
	"github.com/Soniccccccccxman/lecturescript-engine/internal/transcribe"
)

const (
	serviceName    = "lecturescript-engine"
	serviceVersion = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file (built-in defaults when empty)")
	listDevices := flag.Bool("list-devices", false, "List available capture devices and exit")
	flag.Parse()

	if *listDevices {
		if err := printCaptureDevices(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to list capture devices: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Load .env if present so the API key can come from a local file
	// instead of the shell environment.
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.String("capture_backend", cfg.Capture.Backend),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Int("window_size", cfg.Audio.WindowSize),
		slog.Float64("silence_threshold", cfg.VAD.SilenceThreshold),
		slog.Float64("silence_duration", cfg.VAD.SilenceDuration),
		slog.Float64("min_chunk_duration", cfg.Segmenter.MinChunkDuration),
		slog.Float64("max_chunk_duration", cfg.Segmenter.MaxChunkDuration),
		slog.String("transcription_backend", cfg.Transcription.Backend),
		slog.Int("max_concurrent", cfg.Transcription.MaxConcurrent),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()

	// Create the transcription backend
	transcriber, err := transcribe.New(transcribe.Config{
		Backend:  cfg.Transcription.Backend,
		Endpoint: cfg.Transcription.Endpoint,
		APIKey:   cfg.Transcription.APIKey,
		Model:    cfg.Transcription.Model,
		Timeout:  cfg.Transcription.GetTimeoutDuration(),
	})
	if err != nil {
		logger.Error("Failed to create transcription backend", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Capture sources are single-use, so each engine start builds a
	// fresh one from the configured backend.
	newSource := func() (capture.Source, error) {
		switch cfg.Capture.Backend {
		case "udp":
			return capture.NewUDPSource(capture.UDPConfig{
				BindAddress: cfg.Capture.BindAddress,
				Port:        cfg.Capture.UDPPort,
				SampleRate:  cfg.Audio.SampleRate,
				ReadBuffer:  cfg.Capture.BufferSize,
			}, logger), nil
		default:
			return capture.NewPulseSource(capture.PulseConfig{
				Device:     cfg.Capture.Device,
				SampleRate: cfg.Audio.SampleRate,
			}, logger), nil
		}
	}

	// Initialize the capture engine
	eng, err := engine.NewEngine(cfg, newSource, transcriber, session.Default(), appMetrics, logger)
	if err != nil {
		logger.Error("Failed to create capture engine", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize the monitoring HTTP server (if enabled) and feed it the
	// engine's telemetry events.
	var httpServer *server.HTTPServer
	if cfg.Server.Enabled {
		httpServer = server.NewHTTPServer(cfg.Server, logger, cfg, eng, appMetrics)

		live := httpServer.Live()
		eng.OnMetricsTick(live.BroadcastTick)
		eng.OnChunkReady(live.BroadcastChunk)
		eng.OnTranscriptUpdate(live.BroadcastTranscript)

		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// Start the capture session. The background context keeps the
	// session alive until Stop; shutdown is driven by the signal below.
	handle, err := eng.Start(context.Background())
	if err != nil {
		logger.Error("Failed to start capture session", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Capture session running, press Ctrl+C to stop",
		slog.String("session_id", handle.SessionID()),
	)

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

	// Stop the session first: this flushes the final chunk and drains
	// in-flight transcriptions while the HTTP server stays reachable.
	if err := eng.Stop(handle); err != nil {
		logger.Error("Error stopping capture session", slog.String("error", err.Error()))
	}

	// The transcript goes to stdout; logs go elsewhere, so the output
	// can be piped or redirected cleanly.
	if transcript := eng.RunningTranscript(); transcript != "" {
		fmt.Println(transcript)
	}

	// Stop HTTP server
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	// Get final statistics
	stats := eng.Stats()
	logger.Info("Final session statistics",
		slog.Uint64("chunks_closed", stats.Segmenter.ChunksClosed),
		slog.Uint64("transcriptions_completed", stats.Dispatcher.Completed),
		slog.Uint64("transcriptions_failed", stats.Dispatcher.Failed),
		slog.Int("transcript_words", stats.Merger.Words),
		slog.Uint64("quality_alerts", stats.Quality.AlertsRaised),
	)

	logger.Info("Service stopped")
}

// printCaptureDevices lists the PulseAudio input sources on stdout.
func printCaptureDevices() error {
	devices, err := capture.ListDevices()
	if err != nil {
		return err
	}

	fmt.Println("Available capture devices:")
	for _, device := range devices {
		marker := " "
		if device.Default {
			marker = "*"
		}

		notes := ""
		if device.Muted {
			notes += " [muted]"
		}
		if !device.Available {
			notes += " [unavailable]"
		}

		fmt.Printf("  %s %-48s %s%s\n", marker, device.ID, device.Description, notes)
	}
	return nil
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	// Configure handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stdout":
		output = os.Stdout
	case "stderr", "":
		output = os.Stderr
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stderr\n", cfg.Output, err)
			output = os.Stderr
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		// Default to text format
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}

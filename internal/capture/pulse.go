package capture

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

// defaultFragmentBytes is 20ms at 16kHz mono s16le.
const defaultFragmentBytes = 640

// Device describes one PulseAudio input source.
type Device struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	State       string `json:"state"`
	Available   bool   `json:"available"`
	Muted       bool   `json:"muted"`
	Default     bool   `json:"default"`
}

// ListDevices returns the available PulseAudio input sources with
// default and availability metadata, for device selection in the CLI.
func ListDevices() ([]Device, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("lecturescript"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}
	defer client.Close()

	defaultSource, err := client.DefaultSource()
	if err != nil {
		return nil, fmt.Errorf("read default source: %w", err)
	}
	defaultID := defaultSource.ID()

	var sourceInfos pulseproto.GetSourceInfoListReply
	if err := client.RawRequest(&pulseproto.GetSourceInfoList{}, &sourceInfos); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	devices := make([]Device, 0, len(sourceInfos))
	for _, source := range sourceInfos {
		if source == nil {
			continue
		}
		devices = append(devices, Device{
			ID:          source.SourceName,
			Description: source.Device,
			State:       sourceStateString(source.State),
			Available:   sourceAvailable(source),
			Muted:       source.Mute,
			Default:     source.SourceName == defaultID,
		})
	}
	return devices, nil
}

// PulseConfig selects and tunes the PulseAudio capture stream.
type PulseConfig struct {
	// Device is the Pulse source name; empty means the default source.
	Device string
	// SampleRate is the capture rate in Hz.
	SampleRate int
	// FragmentBytes is the requested delivery granularity from Pulse.
	FragmentBytes int
}

// PulseSource captures microphone PCM from a PulseAudio server. When the
// consumer falls behind, buffers are dropped rather than blocking the
// audio callback.
type PulseSource struct {
	config PulseConfig
	logger *slog.Logger

	client *pulse.Client
	stream *pulse.RecordStream

	buffers chan []byte
	stopCh  chan struct{}

	mu       sync.Mutex
	started  bool
	stopped  bool
	inflight sync.WaitGroup

	bytesCaptured  atomic.Int64
	droppedBuffers atomic.Int64
}

// NewPulseSource creates a microphone source. Start must be called before
// Buffers delivers anything.
func NewPulseSource(config PulseConfig, logger *slog.Logger) *PulseSource {
	if config.SampleRate <= 0 {
		config.SampleRate = 16000
	}
	if config.FragmentBytes <= 0 {
		config.FragmentBytes = defaultFragmentBytes
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PulseSource{
		config:  config,
		logger:  logger,
		buffers: make(chan []byte, 128),
		stopCh:  make(chan struct{}),
	}
}

// Start connects to the Pulse server, resolves the configured source, and
// begins recording. Cancelling the context closes the source.
func (s *PulseSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("pulse source already started")
	}
	if s.stopped {
		return fmt.Errorf("pulse source already closed")
	}

	client, err := pulse.NewClient(
		pulse.ClientApplicationName("lecturescript"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return fmt.Errorf("connect pulse server: %w", err)
	}

	var source *pulse.Source
	if s.config.Device == "" {
		source, err = client.DefaultSource()
	} else {
		source, err = client.SourceByID(s.config.Device)
	}
	if err != nil {
		client.Close()
		return fmt.Errorf("resolve capture source %q: %w", s.config.Device, err)
	}

	writer := pulse.NewWriter(writerFunc(s.onPCM), pulseproto.FormatInt16LE)
	stream, err := client.NewRecord(
		writer,
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(s.config.SampleRate),
		pulse.RecordBufferFragmentSize(uint32(s.config.FragmentBytes)),
		pulse.RecordMediaName("lecturescript capture"),
	)
	if err != nil {
		client.Close()
		return fmt.Errorf("create pulse record stream: %w", err)
	}

	s.client = client
	s.stream = stream
	s.started = true
	stream.Start()

	s.logger.Info("Microphone capture started",
		slog.String("device", source.ID()),
		slog.Int("sample_rate", s.config.SampleRate),
		slog.Int("fragment_bytes", s.config.FragmentBytes),
	)

	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()

	return nil
}

// Buffers returns the PCM stream.
func (s *PulseSource) Buffers() <-chan []byte {
	return s.buffers
}

// SampleRate returns the configured capture rate.
func (s *PulseSource) SampleRate() int {
	return s.config.SampleRate
}

// BytesCaptured reports total bytes accepted from Pulse.
func (s *PulseSource) BytesCaptured() int64 {
	return s.bytesCaptured.Load()
}

// Close stops the record stream, releases the device, and closes Buffers
// exactly once.
func (s *PulseSource) Close() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	close(s.stopCh)
	started := s.started
	s.mu.Unlock()

	if started {
		s.stream.Stop()
		s.stream.Close()
		s.client.Close()
	}

	s.inflight.Wait()
	close(s.buffers)

	s.logger.Info("Microphone capture stopped",
		slog.Int64("bytes_captured", s.bytesCaptured.Load()),
		slog.Int64("dropped_buffers", s.droppedBuffers.Load()),
	)
	return nil
}

// onPCM receives raw frames from the Pulse callback and forwards copies
// to the buffer channel.
func (s *PulseSource) onPCM(buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	select {
	case <-s.stopCh:
		return 0, io.EOF
	default:
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return 0, io.EOF
	}
	// Add under the same mutex as the stopped check so Close cannot Wait
	// between them.
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	data := make([]byte, len(buffer))
	copy(data, buffer)
	s.bytesCaptured.Add(int64(len(buffer)))

	select {
	case s.buffers <- data:
	case <-s.stopCh:
		return 0, io.EOF
	default:
		s.droppedBuffers.Add(1)
	}

	return len(buffer), nil
}

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}

// sourceStateString maps Pulse source state constants to readable values.
func sourceStateString(state uint32) string {
	switch state {
	case 0:
		return "running"
	case 1:
		return "idle"
	case 2:
		return "suspended"
	default:
		return fmt.Sprintf("unknown(%d)", state)
	}
}

// sourceAvailable maps Pulse port availability to a boolean.
func sourceAvailable(source *pulseproto.GetSourceInfoReply) bool {
	if source == nil {
		return false
	}
	if len(source.Ports) == 0 {
		return true
	}
	for _, port := range source.Ports {
		if port.Name != source.ActivePortName {
			continue
		}
		// PulseAudio values: unknown=0, no=1, yes=2.
		return port.Available == 0 || port.Available == 2
	}
	return true
}

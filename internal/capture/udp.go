package capture

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// UDPConfig tunes the network PCM listener.
type UDPConfig struct {
	BindAddress string
	Port        int
	SampleRate  int
	// ReadBuffer is the kernel receive buffer size in bytes.
	ReadBuffer int
}

// UDPSource receives raw s16le mono PCM datagrams and exposes them as a
// capture stream, for piping audio from another host. Datagrams are
// appended in arrival order; there is no sequencing in the payload.
type UDPSource struct {
	config UDPConfig
	logger *slog.Logger

	conn    *net.UDPConn
	buffers chan []byte

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu              sync.RWMutex
	started         bool
	stopped         bool
	packetsReceived uint64
	bytesReceived   uint64
	packetsDropped  uint64
	oddPackets      uint64
}

// UDPStats reports listener counters for monitoring.
type UDPStats struct {
	PacketsReceived uint64 `json:"packets_received"`
	BytesReceived   uint64 `json:"bytes_received"`
	PacketsDropped  uint64 `json:"packets_dropped"`
	OddPackets      uint64 `json:"odd_packets"`
}

// NewUDPSource creates a UDP listener source. Start must be called before
// Buffers delivers anything.
func NewUDPSource(config UDPConfig, logger *slog.Logger) *UDPSource {
	if config.SampleRate <= 0 {
		config.SampleRate = 16000
	}
	if config.ReadBuffer <= 0 {
		config.ReadBuffer = 65536
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &UDPSource{
		config:  config,
		logger:  logger,
		buffers: make(chan []byte, 256),
	}
}

// Start binds the UDP socket and begins the receive loop.
func (s *UDPSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("udp source already started")
	}
	if s.stopped {
		return fmt.Errorf("udp source already closed")
	}

	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", s.config.BindAddress, s.config.Port))
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP: %w", err)
	}
	s.conn = conn

	if err := conn.SetReadBuffer(s.config.ReadBuffer); err != nil {
		s.logger.Warn("Failed to set UDP read buffer size",
			slog.Int("buffer_size", s.config.ReadBuffer),
			slog.String("error", err.Error()),
		)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.started = true

	s.logger.Info("UDP capture source started",
		slog.String("address", conn.LocalAddr().String()),
		slog.Int("sample_rate", s.config.SampleRate),
	)

	s.wg.Add(1)
	go s.receiveLoop(loopCtx)

	return nil
}

// Addr returns the bound local address, or nil before Start.
func (s *UDPSource) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Buffers returns the PCM stream.
func (s *UDPSource) Buffers() <-chan []byte {
	return s.buffers
}

// SampleRate returns the configured stream rate.
func (s *UDPSource) SampleRate() int {
	return s.config.SampleRate
}

// Close stops the receive loop, releases the socket, and closes Buffers
// exactly once.
func (s *UDPSource) Close() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	started := s.started
	s.mu.Unlock()

	if started {
		s.cancel()
		if err := s.conn.Close(); err != nil {
			s.logger.Warn("Error closing UDP connection", slog.String("error", err.Error()))
		}
		s.wg.Wait()
	}

	close(s.buffers)

	stats := s.Stats()
	s.logger.Info("UDP capture source stopped",
		slog.Uint64("packets_received", stats.PacketsReceived),
		slog.Uint64("bytes_received", stats.BytesReceived),
		slog.Uint64("packets_dropped", stats.PacketsDropped),
	)
	return nil
}

// Stats returns current listener counters.
func (s *UDPSource) Stats() UDPStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return UDPStats{
		PacketsReceived: s.packetsReceived,
		BytesReceived:   s.bytesReceived,
		PacketsDropped:  s.packetsDropped,
		OddPackets:      s.oddPackets,
	}
}

// receiveLoop reads datagrams until the context is cancelled or the
// socket closes.
func (s *UDPSource) receiveLoop(ctx context.Context) {
	defer s.wg.Done()

	buffer := make([]byte, 65536)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Deadline so the loop can notice cancellation.
		if err := s.conn.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
			s.logger.Error("Failed to set read deadline", slog.String("error", err.Error()))
			continue
		}

		n, remoteAddr, err := s.conn.ReadFromUDP(buffer)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}

			select {
			case <-ctx.Done():
				return
			default:
				s.logger.Error("Failed to read UDP packet", slog.String("error", err.Error()))
				continue
			}
		}

		if n == 0 {
			continue
		}

		// s16le payloads must be sample-aligned; trim a stray odd byte so
		// it cannot shift every following sample.
		if n%2 != 0 {
			n--
			s.mu.Lock()
			s.oddPackets++
			s.mu.Unlock()
		}
		if n == 0 {
			continue
		}

		data := make([]byte, n)
		copy(data, buffer[:n])

		s.mu.Lock()
		s.packetsReceived++
		s.bytesReceived += uint64(n)
		s.mu.Unlock()

		select {
		case s.buffers <- data:
		default:
			s.mu.Lock()
			s.packetsDropped++
			s.mu.Unlock()

			s.logger.Warn("Capture buffer queue full, dropping packet",
				slog.String("remote_addr", remoteAddr.String()),
				slog.Int("packet_size", n),
			)
		}
	}
}

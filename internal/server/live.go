package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Soniccccccccxman/lecturescript-engine/internal/engine"
	"github.com/Soniccccccccxman/lecturescript-engine/internal/segment"
)

// tickBroadcastInterval throttles per-tick events on the live feed; fifty
// messages a second would drown every other event type.
const tickBroadcastInterval = 200 * time.Millisecond

// liveSendBuffer is the per-client outgoing queue. A client that cannot
// keep up loses events rather than stalling the broadcast.
const liveSendBuffer = 64

// liveWriteTimeout bounds a single frame write so a wedged connection
// cannot hold a writer goroutine forever.
const liveWriteTimeout = 5 * time.Second

// LiveEvent is one message on the /live WebSocket feed. Exactly one of
// the payload fields is set, named by Type.
type LiveEvent struct {
	Type       string                   `json:"type"`
	Time       time.Time                `json:"time"`
	Tick       *engine.MetricsTick      `json:"tick,omitempty"`
	Chunk      *liveChunk               `json:"chunk,omitempty"`
	Transcript *engine.TranscriptUpdate `json:"transcript,omitempty"`
}

// liveChunk is the chunk close payload: the chunk's JSON fields plus the
// close reason, which the chunk itself does not serialize.
type liveChunk struct {
	*segment.Chunk
	Reason          string  `json:"reason"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// LiveHub fans engine events out to connected WebSocket clients. Each
// client gets a buffered queue and its own writer goroutine; slow clients
// drop events instead of blocking the capture pipeline's callbacks.
type LiveHub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	clients  map[*websocket.Conn]chan []byte
	closed   bool
	lastTick time.Time

	writers sync.WaitGroup

	eventsSent    uint64
	eventsDropped uint64
}

// NewLiveHub creates an empty hub.
func NewLiveHub(logger *slog.Logger) *LiveHub {
	return &LiveHub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The feed is a local monitoring surface; any origin may read it.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]chan []byte),
	}
}

// ClientCount returns the number of connected clients.
func (h *LiveHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// BroadcastTick publishes a per-tick telemetry event, throttled so the
// feed stays readable. Alert ticks always go out.
func (h *LiveHub) BroadcastTick(tick engine.MetricsTick) {
	now := time.Now()

	h.mu.Lock()
	if !tick.QualityAlert && now.Sub(h.lastTick) < tickBroadcastInterval {
		h.mu.Unlock()
		return
	}
	h.lastTick = now
	h.mu.Unlock()

	h.broadcast(LiveEvent{Type: "tick", Time: now, Tick: &tick})
}

// BroadcastChunk publishes a chunk close event.
func (h *LiveHub) BroadcastChunk(chunk *segment.Chunk) {
	h.broadcast(LiveEvent{
		Type: "chunk",
		Time: time.Now(),
		Chunk: &liveChunk{
			Chunk:           chunk,
			Reason:          chunk.Reason.String(),
			DurationSeconds: chunk.EndTime.Sub(chunk.StartTime).Seconds(),
		},
	})
}

// BroadcastTranscript publishes a running transcript update.
func (h *LiveHub) BroadcastTranscript(update engine.TranscriptUpdate) {
	h.broadcast(LiveEvent{Type: "transcript", Time: time.Now(), Transcript: &update})
}

func (h *LiveHub) broadcast(event LiveEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Warn("Failed to encode live event", slog.String("error", err.Error()))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, send := range h.clients {
		select {
		case send <- payload:
			h.eventsSent++
		default:
			h.eventsDropped++
		}
	}
}

// handleLive upgrades the request and serves the event feed until the
// client disconnects.
func (h *LiveHub) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed",
			slog.String("remote", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
		return
	}

	send := make(chan []byte, liveSendBuffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[conn] = send
	clients := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("Live feed client connected",
		slog.String("remote", r.RemoteAddr),
		slog.Int("clients", clients),
	)

	h.writers.Add(1)
	go h.writeLoop(conn, send)
	h.readLoop(conn)
}

// writeLoop drains the client's queue onto the socket.
func (h *LiveHub) writeLoop(conn *websocket.Conn, send <-chan []byte) {
	defer h.writers.Done()

	for payload := range send {
		conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
	// Queue closed by the hub: say goodbye properly.
	conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "server shutting down"))
}

// readLoop consumes control frames until the client goes away, then
// unregisters it.
func (h *LiveHub) readLoop(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	if send, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		close(send)
	}
	clients := len(h.clients)
	h.mu.Unlock()

	conn.Close()
	h.logger.Info("Live feed client disconnected", slog.Int("clients", clients))
}

// Close disconnects every client and rejects new ones.
func (h *LiveHub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn, send := range h.clients {
		close(send)
		conns = append(conns, conn)
	}
	h.clients = make(map[*websocket.Conn]chan []byte)
	sent, dropped := h.eventsSent, h.eventsDropped
	h.mu.Unlock()

	// Writers flush their close frames before the sockets go away.
	h.writers.Wait()
	for _, conn := range conns {
		conn.Close()
	}

	h.logger.Info("Live feed closed",
		slog.Uint64("events_sent", sent),
		slog.Uint64("events_dropped", dropped),
	)
}

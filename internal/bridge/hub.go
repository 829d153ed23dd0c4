package bridge

import (
	"encoding/json"
	"math"
	"net"
	"sync"
	"sync/atomic"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/rs/zerolog/log"
)

const (
	EventLog    = "log"
	EventSample = "sample"
)

type logEvent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// sampleEvent carries a null value for NaN and infinities.
type sampleEvent struct {
	Type    string   `json:"type"`
	Channel int      `json:"channel"`
	Value   *float64 `json:"value"`
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// client is one websocket subscriber with its own outbound queue.
type client struct {
	conn     net.Conn
	outgoing chan []byte
}

// Hub fans events out to websocket clients. Slow clients drop events.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]bool
	buffer  int
	dropped atomic.Uint64
}

func NewHub(buffer int) *Hub {
	if buffer < 1 {
		buffer = 64
	}
	return &Hub{clients: make(map[*client]bool), buffer: buffer}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.outgoing)
	}
}

// ClientCount returns number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped counts events discarded because a client queue was full.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Broadcast queues msg for every client without blocking.
func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.outgoing <- msg:
		default:
			h.dropped.Add(1)
		}
	}
}

func (h *Hub) PublishLog(text string) {
	h.publish(logEvent{Type: EventLog, Text: text})
}

func (h *Hub) PublishSample(channel int, value float64) {
	h.publish(sampleEvent{Type: EventSample, Channel: channel, Value: finite(value)})
}

func (h *Hub) publish(ev any) {
	if h.ClientCount() == 0 {
		return
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		log.Warn().Str("component", "hub").Err(err).Msg("encode event")
		return
	}
	h.Broadcast(raw)
}

// Serve runs one upgraded websocket connection until the peer leaves or
// Close is called. Client frames other than control frames are ignored.
func (h *Hub) Serve(conn net.Conn) {
	c := &client{conn: conn, outgoing: make(chan []byte, h.buffer)}
	h.register(c)
	remote := conn.RemoteAddr().String()
	log.Info().Str("component", "hub").Str("remote", remote).Int("clients", h.ClientCount()).Msg("client connected")

	go func() {
		for msg := range c.outgoing {
			if err := wsutil.WriteServerText(conn, msg); err != nil {
				_ = conn.Close()
				return
			}
		}
		_ = wsutil.WriteServerMessage(conn, ws.OpClose, ws.NewCloseFrameBody(ws.StatusGoingAway, ""))
		_ = conn.Close()
	}()

	for {
		if _, _, err := wsutil.ReadClientData(conn); err != nil {
			break
		}
	}
	h.unregister(c)
	log.Info().Str("component", "hub").Str("remote", remote).Int("clients", h.ClientCount()).Msg("client disconnected")
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]net.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c.conn)
	}
	h.mu.Unlock()
	for _, conn := range conns {
		_ = conn.Close()
	}
}

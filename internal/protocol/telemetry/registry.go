package telemetry

import (
	"sync"

	"github.com/danmuck/useqlink/internal/protocol/frame"
	"github.com/danmuck/useqlink/internal/protocol/ring"
)

// DefaultChannels is the uSEQ output channel count.
const DefaultChannels = 8

// Handler receives a channel's history after each new sample. It runs on the
// session read goroutine; the buffer does not change while it runs.
type Handler func(buf *ring.Buffer[float64])

type slot struct {
	mu      sync.Mutex
	buffer  *ring.Buffer[float64]
	handler Handler
}

// Registry maps 1-based wire channels to history buffers and optional
// handlers. Buffers live as long as the registry, across reconnects.
type Registry struct {
	slots   []*slot
	dropped uint64
	mu      sync.Mutex
}

// NewRegistry builds size channels, each holding capacity samples.
func NewRegistry(size, capacity int) *Registry {
	if size < 1 {
		size = DefaultChannels
	}
	if capacity < 1 {
		capacity = ring.DefaultCapacity
	}
	r := &Registry{slots: make([]*slot, size)}
	for i := range r.slots {
		r.slots[i] = &slot{buffer: ring.New[float64](capacity)}
	}
	return r
}

func (r *Registry) Size() int { return len(r.slots) }

// Dispatch stores sample and fires its channel handler. It reports false for
// out-of-range channels, which are dropped without side effects.
func (r *Registry) Dispatch(sample frame.StreamSample) bool {
	s, ok := r.slot(sample.Channel)
	if !ok {
		r.mu.Lock()
		r.dropped++
		r.mu.Unlock()
		return false
	}
	s.mu.Lock()
	s.buffer.Push(sample.Value)
	h := s.handler
	s.mu.Unlock()

	if h != nil {
		h(s.buffer)
	}
	return true
}

// RegisterHandler installs fn for the 0-based channel index, replacing any
// previous handler. A nil fn clears the slot. Out-of-range indexes are ignored.
func (r *Registry) RegisterHandler(index int, fn Handler) bool {
	if index < 0 || index >= len(r.slots) {
		return false
	}
	s := r.slots[index]
	s.mu.Lock()
	s.handler = fn
	s.mu.Unlock()
	return true
}

// Snapshot copies the 1-based channel history oldest-first.
func (r *Registry) Snapshot(channel int) ([]float64, bool) {
	s, ok := r.slot(channel)
	if !ok {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffer.Values(), true
}

// ChannelInfo summarizes one channel for listings.
type ChannelInfo struct {
	Channel    int     `json:"channel" cbor:"channel"`
	Len        int     `json:"len" cbor:"len"`
	Capacity   int     `json:"capacity" cbor:"capacity"`
	Last       float64 `json:"last" cbor:"last"`
	HasHandler bool    `json:"has_handler" cbor:"has_handler"`
}

func (r *Registry) Channels() []ChannelInfo {
	out := make([]ChannelInfo, 0, len(r.slots))
	for i, s := range r.slots {
		s.mu.Lock()
		out = append(out, ChannelInfo{
			Channel:    i + 1,
			Len:        s.buffer.Len(),
			Capacity:   s.buffer.Cap(),
			Last:       s.buffer.Last(0),
			HasHandler: s.handler != nil,
		})
		s.mu.Unlock()
	}
	return out
}

// Dropped counts samples rejected for an out-of-range channel.
func (r *Registry) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

func (r *Registry) slot(channel int) (*slot, bool) {
	if channel < 1 || channel > len(r.slots) {
		return nil, false
	}
	return r.slots[channel-1], true
}

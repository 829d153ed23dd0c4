// Package console keeps the bridge's text log: uncaptured device output and
// connection notices, newest last.
package console

import (
	"sync"
	"time"

	"github.com/danmuck/useqlink/internal/protocol/ring"
	"github.com/rs/zerolog/log"
)

const DefaultLines = 500

type Line struct {
	Time time.Time `json:"time" cbor:"time"`
	Text string    `json:"text" cbor:"text"`
}

// Console is safe for concurrent use. Subscribers that fall behind lose
// lines rather than stall the poster.
type Console struct {
	mu      sync.Mutex
	history *ring.Buffer[Line]
	subs    map[int]chan Line
	nextID  int
	now     func() time.Time
}

func New(lines int) *Console {
	if lines < 1 {
		lines = DefaultLines
	}
	return &Console{
		history: ring.New[Line](lines),
		subs:    make(map[int]chan Line),
		now:     time.Now,
	}
}

// Post appends one line and fans it out.
func (c *Console) Post(text string) {
	c.mu.Lock()
	line := Line{Time: c.now(), Text: text}
	c.history.Push(line)
	for _, ch := range c.subs {
		select {
		case ch <- line:
		default:
		}
	}
	c.mu.Unlock()

	log.Debug().Str("component", "console").Str("text", text).Msg("post")
}

// Recent returns up to limit lines, oldest first. limit <= 0 returns all.
func (c *Console) Recent(limit int) []Line {
	c.mu.Lock()
	defer c.mu.Unlock()
	all := c.history.Values()
	if limit > 0 && limit < len(all) {
		all = all[len(all)-limit:]
	}
	return all
}

// Subscribe registers a listener. The returned cancel closes the channel.
func (c *Console) Subscribe(buffer int) (<-chan Line, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Line, buffer)
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = ch
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
			close(ch)
		})
	}
}

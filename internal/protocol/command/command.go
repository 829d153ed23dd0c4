package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// CommentMarker starts a comment that runs to end of line in uSEQ source.
const CommentMarker = ';'

var (
	ErrNotConnected       = errors.New("command: not connected")
	ErrInvalidCaptureMode = errors.New("command: invalid capture mode")
)

// CaptureMode selects how pending reply captures are held.
type CaptureMode string

const (
	// CaptureSingle keeps one pending capture; a new one replaces it.
	CaptureSingle CaptureMode = "single"
	// CaptureQueue serves pending captures in arrival order.
	CaptureQueue CaptureMode = "queue"
)

func ParseCaptureMode(raw string) (CaptureMode, error) {
	switch CaptureMode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", CaptureSingle:
		return CaptureSingle, nil
	case CaptureQueue:
		return CaptureQueue, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidCaptureMode, raw)
	}
}

// CaptureFunc receives the next text reply instead of the log.
type CaptureFunc func(text string)

// Poster is the logging collaborator for uncaptured device text.
type Poster interface {
	Post(text string)
}

type capture struct {
	fn CaptureFunc
}

// Channel writes commands to the device and routes text replies either to a
// pending capture or to the log.
type Channel struct {
	mu      sync.Mutex
	w       io.Writer
	mode    CaptureMode
	pending []*capture
	log     Poster

	// writeMu keeps one logical writer without holding mu during I/O, so
	// reply routing on the read goroutine never waits on a slow write.
	writeMu sync.Mutex
}

func NewChannel(mode CaptureMode, log Poster) *Channel {
	if mode != CaptureQueue {
		mode = CaptureSingle
	}
	return &Channel{mode: mode, log: log}
}

// Attach routes future sends to w.
func (c *Channel) Attach(w io.Writer) {
	c.mu.Lock()
	c.w = w
	c.mu.Unlock()
}

// Detach stops sending and drops pending captures without invoking them.
func (c *Channel) Detach() {
	c.mu.Lock()
	c.w = nil
	c.pending = nil
	c.mu.Unlock()
}

func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.w != nil
}

func (c *Channel) Mode() CaptureMode { return c.mode }

// Pending reports how many captures await a reply.
func (c *Channel) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Send sanitizes code and writes it. A non-nil fn is armed before the write
// so a fast reply cannot slip past it.
func (c *Channel) Send(code string, fn CaptureFunc) error {
	_, err := c.send(code, fn)
	return err
}

// Await sends code with a capture and blocks for the reply or ctx.
func (c *Channel) Await(ctx context.Context, code string) (string, error) {
	reply := make(chan string, 1)
	handle, err := c.send(code, func(text string) { reply <- text })
	if err != nil {
		return "", err
	}
	select {
	case text := <-reply:
		return text, nil
	case <-ctx.Done():
		c.cancel(handle)
		return "", ctx.Err()
	}
}

func (c *Channel) send(code string, fn CaptureFunc) (*capture, error) {
	line := Sanitize(code)

	c.mu.Lock()
	w := c.w
	if w == nil {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	var handle *capture
	var evicted []*capture
	if fn != nil {
		handle = &capture{fn: fn}
		if c.mode == CaptureQueue {
			c.pending = append(c.pending, handle)
		} else {
			evicted = c.pending
			c.pending = []*capture{handle}
		}
	}
	c.mu.Unlock()

	c.writeMu.Lock()
	_, err := io.WriteString(w, line)
	c.writeMu.Unlock()
	if err != nil {
		c.disarm(handle, evicted)
		return nil, fmt.Errorf("command: write: %w", err)
	}
	return handle, nil
}

// disarm undoes a failed send. In single mode the capture it evicted is put
// back unless the slot has changed hands since.
func (c *Channel) disarm(handle *capture, evicted []*capture) {
	if handle == nil {
		return
	}
	c.mu.Lock()
	if c.mode == CaptureSingle && len(c.pending) == 1 && c.pending[0] == handle {
		c.pending = evicted
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.cancel(handle)
}

func (c *Channel) cancel(handle *capture) {
	if handle == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, p := range c.pending {
		if p == handle {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return
		}
	}
}

// HandleText routes one decoded text line. It reports whether a capture
// consumed it. Uncaptured empty lines are suppressed.
func (c *Channel) HandleText(text string) bool {
	c.mu.Lock()
	var next *capture
	if len(c.pending) > 0 {
		next = c.pending[0]
		c.pending = c.pending[1:]
	}
	c.mu.Unlock()

	if next != nil {
		next.fn(text)
		return true
	}
	if text != "" && c.log != nil {
		c.log.Post(text)
	}
	return false
}

// Sanitize flattens source to one wire line: comments run from CommentMarker
// to end of line, and all CR/LF bytes are removed.
func Sanitize(code string) string {
	var b strings.Builder
	b.Grow(len(code))
	inComment := false
	for i := 0; i < len(code); i++ {
		ch := code[i]
		switch {
		case ch == '\n':
			inComment = false
		case ch == '\r':
		case inComment:
		case ch == CommentMarker:
			inComment = true
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

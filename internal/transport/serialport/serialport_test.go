package serialport

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/useqlink/internal/testutil/testlog"
)

const testTimeout = 10 * time.Millisecond

// timeoutPort returns (0, io.EOF) after testTimeout like a tarm port whose
// read timed out, then serves queued data.
type timeoutPort struct {
	mu      sync.Mutex
	idle    int
	data    []byte
	readErr error
	closed  bool
}

func (p *timeoutPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.idle > 0 {
		p.idle--
		time.Sleep(testTimeout)
		return 0, io.EOF
	}
	if p.readErr != nil {
		return 0, p.readErr
	}
	if p.closed || len(p.data) == 0 {
		return 0, io.EOF
	}
	n := copy(b, p.data)
	p.data = p.data[n:]
	return n, nil
}

func (p *timeoutPort) Write(b []byte) (int, error) { return len(b), nil }

func (p *timeoutPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func TestReadRetriesThroughTimeouts(t *testing.T) {
	testlog.Start(t)
	raw := &timeoutPort{idle: 5, data: []byte("abc")}
	p := newPort(raw, testTimeout)
	buf := make([]byte, 8)
	n, err := p.Read(buf)
	if err != nil || string(buf[:n]) != "abc" {
		t.Fatalf("read got=%q err=%v", buf[:n], err)
	}
}

func TestReadAfterCloseIsEOF(t *testing.T) {
	testlog.Start(t)
	p := newPort(&timeoutPort{}, testTimeout)
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := p.Read(make([]byte, 1)); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
	if _, err := p.Write([]byte("x")); !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("expected ErrClosedPipe, got %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestReadPropagatesHardErrors(t *testing.T) {
	testlog.Start(t)
	want := errors.New("input/output error")
	p := newPort(&timeoutPort{readErr: want}, testTimeout)
	if _, err := p.Read(make([]byte, 1)); !errors.Is(err, want) {
		t.Fatalf("got %v want %v", err, want)
	}
}

// hungPort behaves like an unplugged tty: every read is an immediate EOF.
type hungPort struct {
	reads atomic.Int64
}

func (p *hungPort) Read([]byte) (int, error) {
	p.reads.Add(1)
	return 0, io.EOF
}

func (p *hungPort) Write(b []byte) (int, error) { return len(b), nil }
func (p *hungPort) Close() error                { return nil }

func TestReadReportsHangupAsEOF(t *testing.T) {
	testlog.Start(t)
	for _, timeout := range []time.Duration{testTimeout, 0} {
		raw := &hungPort{}
		p := newPort(raw, timeout)
		done := make(chan error, 1)
		go func() {
			_, err := p.Read(make([]byte, 8))
			done <- err
		}()
		select {
		case err := <-done:
			if !errors.Is(err, io.EOF) {
				t.Fatalf("timeout=%v got=%v want=%v", timeout, err, io.EOF)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout=%v: read never ended after %d immediate EOFs", timeout, raw.reads.Load())
		}
		if got := raw.reads.Load(); got != hangupReads {
			t.Fatalf("timeout=%v reads got=%d want=%d", timeout, got, hangupReads)
		}
	}
}

// dataErrPort returns data and an error from the same read.
type dataErrPort struct {
	err  error
	sent bool
}

func (p *dataErrPort) Read(b []byte) (int, error) {
	if p.sent {
		return 0, io.EOF
	}
	p.sent = true
	return copy(b, "ok"), p.err
}

func (p *dataErrPort) Write(b []byte) (int, error) { return len(b), nil }
func (p *dataErrPort) Close() error                { return nil }

func TestReadKeepsErrorReturnedWithData(t *testing.T) {
	testlog.Start(t)
	want := errors.New("input/output error")
	p := newPort(&dataErrPort{err: want}, testTimeout)
	buf := make([]byte, 8)
	n, err := p.Read(buf)
	if err != nil || string(buf[:n]) != "ok" {
		t.Fatalf("first read got=%q err=%v", buf[:n], err)
	}
	if _, err := p.Read(buf); !errors.Is(err, want) {
		t.Fatalf("second read got=%v want=%v", err, want)
	}
}

func TestOpenWithoutNameFails(t *testing.T) {
	testlog.Start(t)
	tr := New(Config{})
	if _, err := tr.Open(context.Background()); err == nil {
		t.Fatalf("expected error opening unnamed port")
	}
	if got := tr.String(); got != "serial @115200" {
		t.Fatalf("unexpected description %q", got)
	}
}

// Package serialport opens the uSEQ USB serial device with tarm/serial.
package serialport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/tarm/serial"
)

// Config mirrors the port settings the editor uses for uSEQ.
type Config struct {
	Name        string
	Baud        int
	ReadTimeout time.Duration
}

func DefaultConfig(name string) Config {
	return Config{
		Name:        name,
		Baud:        115200,
		ReadTimeout: 100 * time.Millisecond,
	}
}

// Transport opens Config.Name on every Open.
type Transport struct {
	cfg Config
}

func New(cfg Config) *Transport {
	if cfg.Baud <= 0 {
		cfg.Baud = 115200
	}
	return &Transport{cfg: cfg}
}

func (t *Transport) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if t.cfg.Name == "" {
		return nil, errors.New("serialport: no port name configured")
	}
	p, err := serial.OpenPort(&serial.Config{
		Name:        t.cfg.Name,
		Baud:        t.cfg.Baud,
		Parity:      serial.ParityNone,
		ReadTimeout: t.cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("serialport: open %s: %w", t.cfg.Name, err)
	}
	if err := p.Flush(); err != nil {
		p.Close()
		return nil, fmt.Errorf("serialport: flush %s: %w", t.cfg.Name, err)
	}
	return newPort(p, t.cfg.ReadTimeout), nil
}

func (t *Transport) String() string {
	return fmt.Sprintf("serial %s@%d", t.cfg.Name, t.cfg.Baud)
}

// rawPort is the subset of *serial.Port the adapter needs.
type rawPort interface {
	io.ReadWriteCloser
}

// hangupReads is how many consecutive early EOFs mean the device is gone.
const hangupReads = 3

// port turns read timeouts into retries so idle devices do not look like
// end-of-stream. tarm/serial reports a timeout as (0, io.EOF); a hung-up tty
// reports the same thing without waiting, so a run of EOFs that return well
// before the timeout ends the stream.
type port struct {
	raw     rawPort
	timeout time.Duration
	closed  atomic.Bool
	// deferred holds an error that arrived together with data.
	deferred error
}

func newPort(raw rawPort, timeout time.Duration) *port {
	return &port{raw: raw, timeout: timeout}
}

func (p *port) Read(b []byte) (int, error) {
	if err := p.deferred; err != nil {
		p.deferred = nil
		return 0, err
	}
	early := 0
	for {
		start := time.Now()
		n, err := p.raw.Read(b)
		if n > 0 {
			if err != nil && !errors.Is(err, io.EOF) {
				p.deferred = err
			}
			return n, nil
		}
		if p.closed.Load() {
			return 0, io.EOF
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}
		if err == nil {
			continue
		}
		if p.timeout <= 0 || time.Since(start) < p.timeout/2 {
			early++
			if early >= hangupReads {
				return 0, io.EOF
			}
			continue
		}
		early = 0
	}
}

func (p *port) Write(b []byte) (int, error) {
	if p.closed.Load() {
		return 0, io.ErrClosedPipe
	}
	return p.raw.Write(b)
}

func (p *port) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return p.raw.Close()
}

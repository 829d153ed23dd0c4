package transport

import (
	"context"
	"io"
	"net"
)

// Loopback is an in-memory Transport. Every Open creates a net.Pipe pair and
// hands the device end to Devices, so tests can play the sequencer.
type Loopback struct {
	devices chan net.Conn
}

func NewLoopback() *Loopback {
	return &Loopback{devices: make(chan net.Conn, 4)}
}

func (l *Loopback) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	host, device := net.Pipe()
	select {
	case l.devices <- device:
		return host, nil
	case <-ctx.Done():
		host.Close()
		device.Close()
		return nil, ctx.Err()
	}
}

// Devices yields the device end of each opened stream.
func (l *Loopback) Devices() <-chan net.Conn { return l.devices }

func (l *Loopback) String() string { return "loopback" }

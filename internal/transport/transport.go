package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"
)

var ErrInvalidKind = errors.New("transport: invalid kind")

// Kind names a transport implementation in configuration.
type Kind string

const (
	KindSerial Kind = "serial"
	KindTCP    Kind = "tcp"
)

func ParseKind(raw string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case "", KindSerial:
		return KindSerial, nil
	case KindTCP:
		return KindTCP, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, raw)
	}
}

// Transport opens a duplex byte stream to the device. Each Open yields a new
// stream owned by the caller until Close.
type Transport interface {
	Open(ctx context.Context) (io.ReadWriteCloser, error)
	String() string
}

// Func adapts a function to Transport.
type Func func(ctx context.Context) (io.ReadWriteCloser, error)

func (f Func) Open(ctx context.Context) (io.ReadWriteCloser, error) { return f(ctx) }

func (f Func) String() string { return "func" }

// TCP reaches a device exposed through a serial-to-network bridge.
type TCP struct {
	Addr        string
	DialTimeout time.Duration
}

func (t TCP) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	d := net.Dialer{Timeout: t.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", t.Addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", t.Addr, err)
	}
	return conn, nil
}

func (t TCP) String() string { return "tcp " + t.Addr }

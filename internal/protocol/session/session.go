package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/danmuck/useqlink/internal/observability"
	"github.com/danmuck/useqlink/internal/protocol/command"
	"github.com/danmuck/useqlink/internal/protocol/frame"
	"github.com/danmuck/useqlink/internal/protocol/telemetry"
	"github.com/danmuck/useqlink/internal/transport"
	"github.com/rs/zerolog/log"
)

var (
	ErrAlreadyOpen  = errors.New("session: already open")
	ErrOpenAborted  = errors.New("session: closed while connecting")
	ErrNotConnected = command.ErrNotConnected
)

// State is the connection lifecycle phase.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Session owns the transport stream for one connection at a time. The
// registry and command channel outlive individual connections.
type Session struct {
	cfg       Config
	transport transport.Transport
	registry  *telemetry.Registry
	commands  *command.Channel
	console   command.Poster

	mu       sync.Mutex
	state    State
	stream   io.ReadWriteCloser
	done     chan struct{}
	closing  bool
	firmware string
	stats    frame.Stats
}

// New wires a session. console receives uncaptured device text and
// lifecycle notices; it may be nil.
func New(cfg Config, tr transport.Transport, registry *telemetry.Registry, console command.Poster) *Session {
	cfg = cfg.WithDefaults()
	if registry == nil {
		registry = telemetry.NewRegistry(telemetry.DefaultChannels, 0)
	}
	closed := make(chan struct{})
	close(closed)
	observability.SetSessionState(StateDisconnected.String())
	return &Session{
		cfg:       cfg,
		transport: tr,
		registry:  registry,
		commands:  command.NewChannel(cfg.CaptureMode, console),
		console:   console,
		done:      closed,
	}
}

// Open connects the transport, starts the read loop and sends the firmware
// handshake. Failures leave the session Disconnected.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return ErrAlreadyOpen
	}
	s.closing = false
	s.setState(StateConnecting)
	s.mu.Unlock()

	stream, err := s.transport.Open(ctx)
	if err != nil {
		s.mu.Lock()
		s.closing = false
		s.setState(StateDisconnected)
		s.mu.Unlock()
		observability.RecordConnect(false)
		log.Warn().Str("component", "session").Str("transport", s.transport.String()).Err(err).Msg("connection failed")
		s.post(fmt.Sprintf("uSEQ connection failed: %v", err))
		return fmt.Errorf("session: open %s: %w", s.transport, err)
	}

	done := make(chan struct{})
	s.mu.Lock()
	if s.closing {
		s.closing = false
		s.setState(StateDisconnected)
		s.mu.Unlock()
		_ = stream.Close()
		log.Info().Str("component", "session").Str("transport", s.transport.String()).Msg("open aborted by close")
		s.post("uSEQ disconnected")
		return ErrOpenAborted
	}
	s.stream = stream
	s.done = done
	s.closing = false
	s.firmware = ""
	s.setState(StateConnected)
	s.mu.Unlock()

	s.commands.Attach(stream)
	observability.RecordConnect(true)
	log.Info().Str("component", "session").Str("transport", s.transport.String()).Msg("connected")
	s.post("uSEQ connected (" + s.transport.String() + ")")

	go s.readLoop(stream, done)

	if hs := s.cfg.HandshakeCommand; hs != "" {
		if err := s.Send(hs, s.onFirmware); err != nil {
			log.Warn().Str("component", "session").Err(err).Msg("handshake send failed")
		}
	}
	return nil
}

// Close releases the stream and waits for the read loop to exit. Called
// while an Open is still connecting, it makes that Open return
// ErrOpenAborted instead of connecting.
func (s *Session) Close() error {
	s.mu.Lock()
	stream, done := s.stream, s.done
	if stream == nil {
		if s.state == StateConnecting {
			s.closing = true
		}
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	s.mu.Unlock()

	err := stream.Close()
	<-done
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return err
}

// Send writes code to the device; fn, if set, captures the next text reply.
func (s *Session) Send(code string, fn command.CaptureFunc) error {
	err := s.commands.Send(code, fn)
	observability.RecordCommand(fn != nil, err)
	return err
}

// Await sends code and waits for one captured reply or ctx.
func (s *Session) Await(ctx context.Context, code string) (string, error) {
	reply, err := s.commands.Await(ctx, code)
	observability.RecordCommand(true, err)
	return reply, err
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed when the current connection's read loop exits. It is
// already closed while no connection is up.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Firmware is the handshake reply of the current connection, if any.
func (s *Session) Firmware() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firmware
}

// Stats sums decoder counters across connections.
func (s *Session) Stats() frame.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Session) Registry() *telemetry.Registry { return s.registry }

func (s *Session) Commands() *command.Channel { return s.commands }

func (s *Session) Transport() transport.Transport { return s.transport }

func (s *Session) readLoop(stream io.ReadWriteCloser, done chan struct{}) {
	dec := frame.NewDecoder(s.cfg.Limits)
	buf := make([]byte, s.cfg.ReadBufferSize)
	var last frame.Stats

	var readErr error
	for {
		n, err := stream.Read(buf)
		if n > 0 {
			for _, msg := range dec.Feed(buf[:n]) {
				s.dispatch(msg)
			}
			last = s.recordStats(dec.Stats(), last)
		}
		if err != nil {
			readErr = err
			break
		}
	}
	s.finish(stream, done, readErr)
}

func (s *Session) dispatch(msg frame.Message) {
	switch m := msg.(type) {
	case frame.TextMessage:
		s.commands.HandleText(m.Text)
	case frame.StreamSample:
		observability.RecordSample(m.Channel, s.registry.Dispatch(m))
	}
}

func (s *Session) recordStats(cur, last frame.Stats) frame.Stats {
	delta := frame.Stats{
		TextFrames:    cur.TextFrames - last.TextFrames,
		StreamFrames:  cur.StreamFrames - last.StreamFrames,
		DiscardBytes:  cur.DiscardBytes - last.DiscardBytes,
		Resyncs:       cur.Resyncs - last.Resyncs,
		AbandonedText: cur.AbandonedText - last.AbandonedText,
	}
	observability.RecordDecode(delta.TextFrames, delta.StreamFrames, delta.DiscardBytes, delta.AbandonedText)

	s.mu.Lock()
	s.stats.TextFrames += delta.TextFrames
	s.stats.StreamFrames += delta.StreamFrames
	s.stats.DiscardBytes += delta.DiscardBytes
	s.stats.Resyncs += delta.Resyncs
	s.stats.AbandonedText += delta.AbandonedText
	s.mu.Unlock()
	return cur
}

func (s *Session) finish(stream io.ReadWriteCloser, done chan struct{}, readErr error) {
	s.commands.Detach()
	_ = stream.Close()

	s.mu.Lock()
	requested := s.closing
	s.stream = nil
	s.closing = false
	s.setState(StateDisconnected)
	s.mu.Unlock()
	close(done)

	logger := log.With().Str("component", "session").Str("transport", s.transport.String()).Logger()
	switch {
	case requested:
		logger.Info().Msg("disconnected")
		s.post("uSEQ disconnected")
	case readErr == nil || errors.Is(readErr, io.EOF):
		logger.Info().Msg("end of stream")
		s.post("uSEQ disconnected: end of stream")
	default:
		logger.Warn().Err(readErr).Msg("connection lost")
		s.post(fmt.Sprintf("uSEQ connection lost: %v", readErr))
	}
}

func (s *Session) onFirmware(text string) {
	s.mu.Lock()
	s.firmware = text
	s.mu.Unlock()
	log.Info().Str("component", "session").Str("firmware", text).Msg("handshake complete")
	s.post("uSEQ firmware: " + text)
}

// setState requires s.mu.
func (s *Session) setState(state State) {
	s.state = state
	observability.SetSessionState(state.String())
}

func (s *Session) post(text string) {
	if s.console != nil {
		s.console.Post(text)
	}
}

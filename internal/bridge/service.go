package bridge

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/danmuck/useqlink/internal/console"
	"github.com/danmuck/useqlink/internal/protocol/ring"
	"github.com/danmuck/useqlink/internal/protocol/session"
	"github.com/danmuck/useqlink/internal/protocol/telemetry"
	"github.com/danmuck/useqlink/internal/transport"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Service owns one device session plus the HTTP surface around it.
type Service struct {
	cfg     ServiceConfig
	console *console.Console
	session *session.Session
	hub     *Hub
	router  *gin.Engine
	started time.Time

	mu            sync.Mutex
	wantConnected bool
	kick          chan struct{}
}

// NewService builds the configured transport and wires a Service around it.
func NewService(cfg ServiceConfig) (*Service, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tr, err := BuildTransport(cfg)
	if err != nil {
		return nil, err
	}
	return NewServiceWithTransport(cfg, tr), nil
}

// NewServiceWithTransport wires a Service on an explicit transport.
func NewServiceWithTransport(cfg ServiceConfig, tr transport.Transport) *Service {
	cfg = cfg.withDefaults()
	con := console.New(cfg.ConsoleLines)
	registry := telemetry.NewRegistry(cfg.Channels, cfg.HistoryCapacity)
	s := &Service{
		cfg:     cfg,
		console: con,
		session: session.New(cfg.Session, tr, registry, con),
		hub:     NewHub(256),
		started: time.Now(),
		kick:    make(chan struct{}, 1),
	}
	for i := 0; i < registry.Size(); i++ {
		channel := i + 1
		registry.RegisterHandler(i, func(buf *ring.Buffer[float64]) {
			s.hub.PublishSample(channel, buf.Last(0))
		})
	}
	s.router = s.newRouter()
	return s
}

func (s *Service) Config() ServiceConfig { return s.cfg }

func (s *Service) Console() *console.Console { return s.console }

func (s *Service) Session() *session.Session { return s.session }

func (s *Service) Hub() *Hub { return s.hub }

func (s *Service) Handler() http.Handler { return s.router }

// Run serves on cfg.HTTPAddr and blocks until signal shutdown.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", s.cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("bridge: listen %s: %w", s.cfg.HTTPAddr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the HTTP API on ln, the console forwarder and the session
// supervisor until ctx ends. The session is closed on return.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	logger := log.With().Str("component", "bridge").Str("id", s.cfg.ID).Logger()
	logger.Info().Str("addr", ln.Addr().String()).Str("transport", s.session.Transport().String()).Msg("listening")

	lines, cancelLines := s.console.Subscribe(256)
	defer cancelLines()
	go func() {
		for line := range lines {
			s.hub.PublishLog(line.Text)
		}
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.supervise(ctx)
	}()

	if s.cfg.AutoConnect {
		if err := s.Connect(ctx); err != nil {
			logger.Warn().Err(err).Msg("initial connect failed")
		}
	}

	srv := &http.Server{Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-serveErr:
	}

	cancel()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = srv.Shutdown(shutdownCtx)
	s.hub.Close()
	s.setWant(false)
	wg.Wait()
	_ = s.session.Close()
	logger.Info().Msg("stopped")

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Connect opens the session and marks it as wanted, so the supervisor may
// restore it after an unexpected loss.
func (s *Service) Connect(ctx context.Context) error {
	s.setWant(true)
	err := s.session.Open(ctx)
	s.nudge()
	return err
}

// Disconnect closes the session and stops reconnect attempts.
func (s *Service) Disconnect() error {
	s.setWant(false)
	err := s.session.Close()
	s.nudge()
	return err
}

func (s *Service) setWant(v bool) {
	s.mu.Lock()
	s.wantConnected = v
	s.mu.Unlock()
}

func (s *Service) shouldReconnect() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wantConnected && s.cfg.Reconnect
}

func (s *Service) nudge() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// supervise reopens lost sessions with exponential backoff. A user connect
// or disconnect restarts the wait.
func (s *Service) supervise(ctx context.Context) {
	backoff := session.NewBackoff(s.cfg.Session.Backoff, rand.New(rand.NewSource(time.Now().UnixNano())))
	logger := log.With().Str("component", "supervisor").Logger()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.kick:
			backoff.Reset()
			continue
		case <-s.session.Done():
		}

		if !s.shouldReconnect() {
			select {
			case <-ctx.Done():
				return
			case <-s.kick:
				backoff.Reset()
				continue
			}
		}

		delay, ok := backoff.Next()
		if !ok {
			s.setWant(false)
			logger.Warn().Int("attempts", backoff.Attempt()).Msg("reconnect gave up")
			s.console.Post(fmt.Sprintf("uSEQ reconnect gave up after %d attempts", backoff.Attempt()))
			continue
		}
		logger.Info().Int("attempt", backoff.Attempt()).Dur("delay", delay).Msg("reconnect scheduled")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.kick:
			timer.Stop()
			backoff.Reset()
			continue
		case <-timer.C:
		}
		if !s.shouldReconnect() {
			continue
		}
		if err := s.session.Open(ctx); err == nil || errors.Is(err, session.ErrAlreadyOpen) {
			backoff.Reset()
		}
	}
}

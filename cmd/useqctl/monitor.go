package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/danmuck/useqlink/internal/bridge"
	"github.com/danmuck/useqlink/internal/console"
	"github.com/danmuck/useqlink/internal/protocol/ring"
	"github.com/danmuck/useqlink/internal/protocol/session"
	"github.com/danmuck/useqlink/internal/protocol/telemetry"
	"github.com/spf13/cobra"
)

// lockedWriter serializes lines from the console and read goroutines.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, format, args...)
}

func newMonitorCmd(opts *rootOptions) *cobra.Command {
	var samples bool
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "print device output and stream samples until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.resolve(cmd)
			if err != nil {
				return err
			}
			tr, err := bridge.BuildTransport(cfg)
			if err != nil {
				return err
			}
			out := &lockedWriter{w: cmd.OutOrStdout()}

			con := console.New(cfg.ConsoleLines)
			lines, cancelLines := con.Subscribe(256)
			defer cancelLines()
			go func() {
				for line := range lines {
					out.printf("%s\n", line.Text)
				}
			}()

			registry := telemetry.NewRegistry(cfg.Channels, cfg.HistoryCapacity)
			if samples {
				for i := 0; i < registry.Size(); i++ {
					channel := i + 1
					registry.RegisterHandler(i, func(buf *ring.Buffer[float64]) {
						out.printf("ch%d %g\n", channel, buf.Last(0))
					})
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			s := session.New(cfg.Session, tr, registry, con)
			if err := s.Open(ctx); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
			case <-s.Done():
			}
			return s.Close()
		},
	}
	cmd.Flags().BoolVar(&samples, "samples", true, "print stream samples as they arrive")
	return cmd
}

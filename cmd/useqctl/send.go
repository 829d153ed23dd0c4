package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/danmuck/useqlink/internal/bridge"
	"github.com/danmuck/useqlink/internal/protocol/session"
	"github.com/spf13/cobra"
)

func newSendCmd(opts *rootOptions) *cobra.Command {
	var (
		timeout   time.Duration
		noCapture bool
	)
	cmd := &cobra.Command{
		Use:   "send CODE...",
		Short: "send one expression and print the reply",
		Long: `send opens the device, writes CODE as one line and prints the next text
reply. Comments after ';' and line breaks are stripped before sending.

	Example:
	useqctl send -p /dev/ttyACM0 '(useq-report-firmware-info)'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.resolve(cmd)
			if err != nil {
				return err
			}
			// the handshake would take the capture meant for CODE
			cfg.Session.HandshakeCommand = ""
			if !cmd.Flags().Changed("timeout") {
				timeout = cfg.CaptureTimeout
			}
			tr, err := bridge.BuildTransport(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			s := session.New(cfg.Session, tr, nil, nil)
			if err := s.Open(ctx); err != nil {
				return err
			}
			defer s.Close()

			code := strings.Join(args, " ")
			if noCapture {
				return s.Send(code, nil)
			}
			waitCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			reply, err := s.Await(waitCtx, code)
			if err != nil {
				return fmt.Errorf("send: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply)
			return nil
		},
	}
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", bridge.DefaultServiceConfig().CaptureTimeout, "how long to wait for the reply")
	cmd.Flags().BoolVar(&noCapture, "no-capture", false, "send without waiting for a reply")
	return cmd
}

package main

import (
	"github.com/danmuck/useqlink/internal/bridge"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	flags := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP and websocket bridge for the browser editor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.resolve(cmd)
			if err != nil {
				return err
			}
			flags.apply(cmd.Flags(), &cfg)
			svc, err := bridge.NewService(cfg)
			if err != nil {
				return err
			}
			return svc.Run()
		},
	}
	addServeFlags(cmd.Flags(), flags)
	return cmd
}

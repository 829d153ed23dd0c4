package main

import (
	"fmt"

	"github.com/danmuck/useqlink/internal/bridge"
	"github.com/danmuck/useqlink/internal/observability"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	verbose    bool
	device     deviceFlags
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "useqctl",
		Short:         "useqctl talks to a uSEQ sequencer over its serial protocol",
		Long:          "useqctl bridges a uSEQ module to the browser editor, sends code from the shell and monitors device output.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			observability.InitLogger("useqctl")
			if opts.verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "bridge config file (TOML)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "verbose output")
	addDeviceFlags(root.PersistentFlags(), &opts.device)

	root.AddCommand(
		newServeCmd(opts),
		newSendCmd(opts),
		newMonitorCmd(opts),
		newConfigCmd(),
		newVersionCmd(),
	)
	return root
}

// resolve loads the config file and applies persistent device flags.
func (o *rootOptions) resolve(cmd *cobra.Command) (bridge.ServiceConfig, error) {
	cfg, err := loadServiceConfig(o.configPath)
	if err != nil {
		return bridge.ServiceConfig{}, err
	}
	if err := o.device.apply(cmd.Flags(), &cfg); err != nil {
		return bridge.ServiceConfig{}, err
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the useqctl version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "useqctl %s\n", bridge.Version)
		},
	}
}

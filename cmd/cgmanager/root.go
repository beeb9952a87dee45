package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var socketFlag, configFlag string
	ctx := newCommandContext(&socketFlag, &configFlag)

	root := &cobra.Command{
		Use:   "cgmanager",
		Short: "CasparCG control-plane gateway",
		Long: "cgmanager keeps a CasparCG engine's layers, effects and media catalogue\n" +
			"in order. Run `cgmanager serve` for the daemon; the other commands talk to it.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&socketFlag, "socket", "", "Daemon socket (default <data_dir>/cgmanager.sock)")
	flags.StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	root.AddCommand(
		newServeCommand(ctx),
		newStatusCommand(ctx),
		newChannelsCommand(ctx),
		newMediaCommand(ctx),
		newRoutesCommand(ctx),
		newSendCommand(ctx),
		newEventsCommand(ctx),
		newConfigCommand(ctx),
	)
	return root
}

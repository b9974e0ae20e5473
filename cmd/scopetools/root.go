package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "scopetools",
		Short:         "Scopetools runs single-cell analysis stages and aggregates their reports",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	persistent := cmd.PersistentFlags()
	persistent.String("config", "", "configuration file (default ./.scopetools.yml)")
	persistent.String("outdir", "", "output directory holding one directory per sample")
	persistent.String("log-level", "", "log level (debug|info|warn|error)")
	persistent.String("log-format", "", "log format (text|json)")
	persistent.String("format", "", "output format (pretty|json)")
	persistent.String("timeout", "", "deadline per wrapped command, e.g. 12h")
	persistent.Bool("no-journal", false, "do not record runs in the sample journal")

	cmd.AddCommand(newCutadaptCmd())
	cmd.AddCommand(newExecCmd())
	cmd.AddCommand(newPipelineCmd())
	cmd.AddCommand(newRenderCmd())
	cmd.AddCommand(newShowCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

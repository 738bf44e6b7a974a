package main

import (
	"github.com/spf13/cobra"
)

type rootFlags struct {
	verbose bool
	human   bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "bulkhead",
		Short:         "Bulkhead composes namespaced plugin bundles into one host",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().BoolVar(&flags.human, "human", false, "Write human-readable logs instead of JSON")

	cmd.AddCommand(newDashboardCmd(flags))
	cmd.AddCommand(newInspectCmd(flags))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

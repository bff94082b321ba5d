package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "heimdall-agent",
		Short:         "Feature flag evaluation agent",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(
		newServeCmd(),
		newEvalCmd(),
		newValidateCmd(),
	)
	return root
}

package main

import (
	"github.com/spf13/cobra"
)

func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "lexivecd",
		Short:         "Word-embedding neighbor service for historical text collections",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}

	rootCmd.AddCommand(
		NewServeCmd(),
		NewInspectCmd(),
	)

	return rootCmd
}

package main

import (
	"fmt"

	"github.com/rentaldesk/rentaldesk/internal/version"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "rentaldesk %s (commit %s, built %s)\n", version.Version, version.Commit, version.BuildTime)
		},
	}
}

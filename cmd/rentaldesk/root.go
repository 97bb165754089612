package main

import (
	"github.com/rentaldesk/rentaldesk/internal/config"
	"github.com/rentaldesk/rentaldesk/internal/version"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "rentaldesk",
		Short: "Gmail inbox backend for the vacation rental dashboard",
		Long: `rentaldesk connects the rental dashboard to a Gmail mailbox.

It runs the OAuth consent flow, keeps the access token fresh, lists and
stores guest emails, links them to bookings and sends replies.`,
		Version:      version.Version,
		SilenceUsage: true,
	}
	root.SetVersionTemplate(`{{printf "rentaldesk version %s\n" .Version}}`)
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")

	load := func() (config.Config, error) {
		return config.Load(configPath)
	}

	serve := newServeCmd(load)
	root.AddCommand(serve)
	root.AddCommand(newLoginCmd(load))
	root.AddCommand(newConfigCmd(load))
	root.AddCommand(newTokensCmd(load))
	root.AddCommand(newVersionCmd())

	// Without a subcommand the server starts.
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())
	return root
}

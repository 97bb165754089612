package main

import (
	"fmt"

	"github.com/rentaldesk/rentaldesk/internal/auth/google"
	"github.com/rentaldesk/rentaldesk/internal/config"
	"github.com/rentaldesk/rentaldesk/internal/db"
	"github.com/spf13/cobra"
)

func newLoginCmd(load func() (config.Config, error)) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Connect Gmail from the command line",
		Long: `login runs the OAuth consent flow against a temporary server on
127.0.0.1 and stores the resulting token. Use it when the dashboard's
callback URL is not reachable from your browser.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			database, err := db.Open(cfg.Database.URL)
			if err != nil {
				return err
			}
			if sqlDB, err := database.DB(); err == nil {
				defer sqlDB.Close()
			}

			flow, err := google.StartLoopbackFlow(cfg.Gmail, db.NewTokenStore(database), port)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Open this URL in your browser:\n\n  %s\n\n", flow.AuthURL)

			if err := flow.Wait(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✅ Gmail connected")
			return nil
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "callback port on 127.0.0.1 (0 picks a free port)")
	return cmd
}

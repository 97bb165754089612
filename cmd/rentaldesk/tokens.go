package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/rentaldesk/rentaldesk/internal/config"
	"github.com/rentaldesk/rentaldesk/internal/db"
	"github.com/rentaldesk/rentaldesk/internal/logging"
	"github.com/spf13/cobra"
)

func newTokensCmd(load func() (config.Config, error)) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "List stored Gmail tokens, newest first (masked)",
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

			history, err := db.NewTokenStore(database).History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(history) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No Gmail token stored. Run `rentaldesk login` or open /api/gmail/auth.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCREATED\tEXPIRES\tACCESS\tREFRESH")
			for _, tok := range history {
				refresh := "-"
				if tok.RefreshToken != "" {
					refresh = logging.MaskToken(tok.RefreshToken)
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
					tok.ID,
					tok.CreatedAt.Local().Format(time.DateTime),
					time.Unix(tok.ExpiresAt, 0).Local().Format(time.DateTime),
					logging.MaskToken(tok.AccessToken),
					refresh,
				)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of tokens to list")
	return cmd
}

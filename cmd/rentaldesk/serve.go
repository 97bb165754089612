package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rentaldesk/rentaldesk/internal/activity"
	"github.com/rentaldesk/rentaldesk/internal/auth/google"
	"github.com/rentaldesk/rentaldesk/internal/auth/token"
	"github.com/rentaldesk/rentaldesk/internal/config"
	"github.com/rentaldesk/rentaldesk/internal/db"
	"github.com/rentaldesk/rentaldesk/internal/gmail"
	"github.com/rentaldesk/rentaldesk/internal/inbox"
	"github.com/rentaldesk/rentaldesk/internal/version"
	"github.com/rentaldesk/rentaldesk/internal/web"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(load func() (config.Config, error)) *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "listen host (overrides config)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides config)")
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	database, err := db.Open(cfg.Database.URL)
	if err != nil {
		return err
	}
	if sqlDB, err := database.DB(); err == nil {
		defer sqlDB.Close()
	}

	if !google.IsConfigured(cfg.Gmail) {
		log.Printf("⚠️ GMAIL_CLIENT_ID / GMAIL_CLIENT_SECRET not set, Gmail login will fail")
	}

	tokenStore := db.NewTokenStore(database)
	emailStore := db.NewEmailStore(database)
	recorder := activity.NewRecorder(database)
	defer recorder.Flush()

	tokenManager := token.NewManager(tokenStore, google.GetOAuthConfig(cfg.Gmail, ""))
	clientFactory := inbox.GmailClientFactory(gmail.Options{
		Endpoint:       cfg.Gmail.APIEndpoint,
		SendFrom:       cfg.Gmail.SendFrom,
		Location:       cfg.Gmail.Location(),
		Concurrency:    cfg.Gmail.FetchConcurrency,
		MessageTimeout: cfg.Gmail.MessageTimeout,
	})
	inboxService := inbox.NewService(tokenManager, clientFactory, emailStore, recorder, cfg.Gmail.FetchLimit)

	router := web.NewRouter(web.Deps{
		Config:   cfg,
		Tokens:   tokenManager,
		Saver:    tokenStore,
		Inbox:    inboxService,
		Emails:   emailStore,
		Activity: recorder,
	})

	addr := cfg.Server.Addr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("🚀 RentalDesk %s starting on http://%s", version.Version, addr)
		log.Printf("🔑 Connect Gmail: http://%s/api/gmail/auth", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Printf("🛑 Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

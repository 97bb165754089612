// Package web wires the HTTP API.
package web

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rentaldesk/rentaldesk/internal/activity"
	"github.com/rentaldesk/rentaldesk/internal/auth/google"
	"github.com/rentaldesk/rentaldesk/internal/config"
	"github.com/rentaldesk/rentaldesk/internal/db/models"
	"github.com/rentaldesk/rentaldesk/internal/logging"
	"github.com/rentaldesk/rentaldesk/internal/metrics"
	"github.com/rentaldesk/rentaldesk/internal/web/handlers"
	"github.com/rentaldesk/rentaldesk/internal/web/middleware"
)

// Deps are the services behind the routes.
type Deps struct {
	Config   config.Config
	Tokens   handlers.TokenManager
	Saver    google.TokenSaver
	Inbox    handlers.Inbox
	Emails   handlers.EmailStore
	Activity handlers.ActivityLog
	States   *google.States
}

func NewRouter(d Deps) http.Handler {
	if d.States == nil {
		d.States = google.NewStates()
	}

	r := chi.NewRouter()
	r.Use(logging.Middleware)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Get("/healthz", handlers.HealthHandler())
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(chimiddleware.NoCache)

		// Google redirects the browser here, so the callback stays outside admin auth.
		r.Get("/gmail/callback", google.HandleCallback(d.Config.Gmail, d.States, recordingSaver{d.Saver, d.Activity}))

		r.Group(func(r chi.Router) {
			r.Use(middleware.AdminAuth(d.Config.Admin.Password))

			r.Get("/gmail/auth", google.HandleLogin(d.Config.Gmail, d.States))
			r.Get("/gmail/status", handlers.StatusHandler(d.Tokens, google.IsConfigured(d.Config.Gmail)))
			r.Post("/gmail/refresh", handlers.RefreshHandler(d.Tokens, d.Activity))

			r.Get("/gmail/fetch", handlers.FetchHandler(d.Inbox))
			r.Get("/gmail/messages/{id}", handlers.MessageHandler(d.Inbox))
			r.Post("/gmail/send", handlers.SendHandler(d.Inbox))

			r.Get("/gmail/emails", handlers.EmailsHandler(d.Emails))
			r.Post("/gmail/emails/assign", handlers.AssignEmailHandler(d.Emails, d.Activity))

			r.Get("/gmail/activity", handlers.ActivityHandler(d.Activity))
		})
	})

	return r
}

// recordingSaver logs completed authorizations to the activity log.
type recordingSaver struct {
	google.TokenSaver
	activity handlers.ActivityLog
}

func (s recordingSaver) Append(ctx context.Context, tok models.GmailToken) (models.GmailToken, error) {
	done := s.activity.Track(ctx, activity.OpAuthorize)
	saved, err := s.TokenSaver.Append(ctx, tok)
	if err != nil {
		done(0, 0, err)
	} else {
		done(1, 0, nil)
	}
	return saved, err
}

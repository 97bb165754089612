package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rentaldesk/rentaldesk/internal/activity"
	"github.com/rentaldesk/rentaldesk/internal/auth/token"
	"github.com/rentaldesk/rentaldesk/internal/gmail"
	"github.com/rentaldesk/rentaldesk/internal/inbox"
)

type statusResponse struct {
	Configured bool `json:"configured"`
	token.Status
}

// StatusHandler reports whether Gmail is connected and the token is usable.
func StatusHandler(tokens TokenManager, configured bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := tokens.Status(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, statusResponse{Configured: configured, Status: st})
	}
}

// RefreshHandler forces a token refresh.
func RefreshHandler(tokens TokenManager, recorder ActivityLog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		done := recorder.Track(r.Context(), activity.OpRefresh)
		tok, err := tokens.ForceRefresh(r.Context())
		if err != nil {
			done(0, 0, err)
			writeError(w, r, err)
			return
		}
		done(1, 0, nil)

		writeJSON(w, http.StatusOK, map[string]any{
			"success":   true,
			"expiresAt": time.Unix(tok.ExpiresAt, 0).UTC(),
		})
	}
}

// FetchHandler lists recent messages.
// Query: limit (default from config), format=full|metadata.
func FetchHandler(box Inbox) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var limit int64
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || n < 1 {
				writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
				return
			}
			limit = n
		}
		format := gmail.ParseFormat(r.URL.Query().Get("format"))

		msgs, err := box.Fetch(r.Context(), limit, format)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, msgs)
	}
}

// MessageHandler returns one message in full.
func MessageHandler(box Inbox) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		msg, err := box.Message(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, msg)
	}
}

// SendHandler sends a plain-text email.
func SendHandler(box Inbox) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req inbox.SendRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		id, err := box.Send(r.Context(), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":   true,
			"messageId": id,
		})
	}
}

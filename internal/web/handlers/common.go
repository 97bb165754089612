package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/rentaldesk/rentaldesk/internal/auth/token"
	"github.com/rentaldesk/rentaldesk/internal/db"
	"github.com/rentaldesk/rentaldesk/internal/db/models"
	"github.com/rentaldesk/rentaldesk/internal/gmail"
	"github.com/rentaldesk/rentaldesk/internal/inbox"
	"github.com/rentaldesk/rentaldesk/internal/logging"
	"github.com/rentaldesk/rentaldesk/internal/util"
	"google.golang.org/api/googleapi"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// TokenManager is the token surface the handlers use.
type TokenManager interface {
	Status(ctx context.Context) (token.Status, error)
	ForceRefresh(ctx context.Context) (models.GmailToken, error)
}

// Inbox is the mailbox surface the handlers use.
type Inbox interface {
	Fetch(ctx context.Context, limit int64, format gmail.Format) ([]gmail.NormalizedMessage, error)
	Send(ctx context.Context, req inbox.SendRequest) (string, error)
	Message(ctx context.Context, id string) (gmail.NormalizedMessage, error)
}

// EmailStore lists stored emails and links them to bookings.
type EmailStore interface {
	ListEmails(ctx context.Context, bookingID string) ([]models.Email, error)
	AssignEmail(ctx context.Context, emailID, bookingID string) error
}

// ActivityLog records and lists Gmail operations.
type ActivityLog interface {
	Track(ctx context.Context, op string) func(count, failed int, err error)
	Recent(limit int, operation string) []models.Activity
	Stats() models.ActivityStats
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("⚠️ Failed to encode response: %v", err)
	}
}

// writeError maps domain errors onto HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	reqID := logging.GetRequestID(r.Context())

	var refreshErr *token.RefreshFailedError
	var sendErr *gmail.SendFailedError
	var apiErr *googleapi.Error
	switch {
	case errors.Is(err, token.ErrUnauthenticated):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Not authenticated with Gmail"})
	case errors.As(err, &refreshErr):
		log.Printf("❌ [%s] Token refresh failed: %s", reqID, util.TruncateLog(refreshErr.Payload, util.DefaultLogMaxLen))
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Token refresh failed", Details: refreshErr.Payload})
	case errors.Is(err, gmail.ErrInvalidRequest):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.As(err, &sendErr):
		log.Printf("❌ [%s] Gmail rejected send (%d): %s", reqID, sendErr.StatusCode, util.TruncateLog(sendErr.Body, util.DefaultLogMaxLen))
		status := sendErr.StatusCode
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		writeJSON(w, status, errorResponse{Error: "Failed to send email", Details: sendErr.Body})
	case errors.Is(err, db.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound:
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Message not found", Details: apiErr.Message})
	default:
		log.Printf("❌ [%s] %s %s: %v", reqID, r.Method, r.URL.Path, err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid JSON body", Details: err.Error()})
		return false
	}
	return true
}

// HealthHandler reports liveness.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

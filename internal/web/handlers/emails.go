package handlers

import (
	"net/http"

	"github.com/rentaldesk/rentaldesk/internal/activity"
	"github.com/rentaldesk/rentaldesk/internal/db/models"
)

// EmailsHandler lists stored emails, optionally for one booking.
func EmailsHandler(store EmailStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		emails, err := store.ListEmails(r.Context(), r.URL.Query().Get("bookingId"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		if emails == nil {
			emails = []models.Email{}
		}
		writeJSON(w, http.StatusOK, emails)
	}
}

type assignRequest struct {
	EmailID   string `json:"emailId"`
	BookingID string `json:"bookingId"`
}

// AssignEmailHandler links an email to a booking. An empty bookingId unlinks it.
func AssignEmailHandler(store EmailStore, recorder ActivityLog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req assignRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.EmailID == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "emailId is required"})
			return
		}

		done := recorder.Track(r.Context(), activity.OpAssign)
		if err := store.AssignEmail(r.Context(), req.EmailID, req.BookingID); err != nil {
			done(0, 0, err)
			writeError(w, r, err)
			return
		}
		done(1, 0, nil)
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

package handlers

import (
	"net/http"
	"strconv"

	"github.com/rentaldesk/rentaldesk/internal/db/models"
)

// ActivityHandler returns recent Gmail operations with running totals.
// Query: limit (default 50), operation.
func ActivityHandler(recorder ActivityLog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 {
				limit = n
			}
		}
		if limit > 500 {
			limit = 500
		}

		entries := recorder.Recent(limit, r.URL.Query().Get("operation"))
		if entries == nil {
			entries = []models.Activity{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"entries": entries,
			"stats":   recorder.Stats(),
		})
	}
}

package google

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/rentaldesk/rentaldesk/internal/config"
	"github.com/rentaldesk/rentaldesk/internal/db/models"
	"golang.org/x/oauth2"
)

// TokenSaver persists a freshly issued token.
type TokenSaver interface {
	Append(ctx context.Context, tok models.GmailToken) (models.GmailToken, error)
}

// ExchangeError carries the provider's response when the code exchange fails.
type ExchangeError struct {
	Payload string
	Err     error
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("token exchange failed: %s", e.Payload)
}

func (e *ExchangeError) Unwrap() error { return e.Err }

// Exchange trades an authorization code for tokens and appends them to the store.
func Exchange(ctx context.Context, oauthCfg *oauth2.Config, code string, saver TokenSaver, now time.Time) (models.GmailToken, error) {
	token, err := oauthCfg.Exchange(ctx, code)
	if err != nil {
		return models.GmailToken{}, &ExchangeError{Payload: providerPayload(err), Err: err}
	}

	saved, err := saver.Append(ctx, models.GmailToken{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    expiresAt(token, now),
	})
	if err != nil {
		return models.GmailToken{}, fmt.Errorf("save token: %w", err)
	}
	if token.RefreshToken == "" {
		log.Printf("⚠️ [OAuth] Google returned no refresh token, the session cannot be renewed")
	}
	return saved, nil
}

// HandleCallback processes the OAuth callback from Google.
func HandleCallback(cfg config.GmailConfig, states *States, saver TokenSaver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		code := q.Get("code")
		if code == "" || q.Get("error") != "" {
			log.Printf("❌ [OAuth] Authorization failed: %s", q.Get("error"))
			http.Error(w, "Authorization failed", http.StatusBadRequest)
			return
		}
		if !states.Consume(q.Get("state")) {
			http.Error(w, "Invalid state token", http.StatusBadRequest)
			return
		}

		oauthCfg := GetOAuthConfig(cfg, RedirectURL(cfg, r))
		saved, err := Exchange(r.Context(), oauthCfg, code, saver, time.Now())
		if err != nil {
			var exErr *ExchangeError
			if errors.As(err, &exErr) {
				log.Printf("❌ [OAuth] %v", err)
				http.Error(w, "Token exchange failed: "+exErr.Payload, http.StatusInternalServerError)
				return
			}
			http.Error(w, fmt.Sprintf("Failed to save token: %v", err), http.StatusInternalServerError)
			return
		}

		log.Printf("✅ [OAuth] Gmail connected (token expires: %s)", time.Unix(saved.ExpiresAt, 0).Format(time.RFC3339))
		http.Redirect(w, r, "/", http.StatusFound)
	}
}

func expiresAt(token *oauth2.Token, now time.Time) int64 {
	if token.Expiry.IsZero() {
		return now.Unix() + DefaultTokenTTL
	}
	// Expiry was computed against the wall clock; keep the TTL, rebase on now.
	ttl := time.Until(token.Expiry)
	return now.Add(ttl).Unix()
}

func providerPayload(err error) string {
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) && len(rErr.Body) > 0 {
		return string(rErr.Body)
	}
	return err.Error()
}

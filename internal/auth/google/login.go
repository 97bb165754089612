package google

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rentaldesk/rentaldesk/internal/config"
	"golang.org/x/oauth2"
)

// StateTTL bounds how long a consent round-trip may take.
const StateTTL = 10 * time.Minute

// States issues and verifies one-time CSRF state tokens.
type States struct {
	mu     sync.Mutex
	issued map[string]time.Time
	now    func() time.Time
}

func NewStates() *States {
	return &States{
		issued: make(map[string]time.Time),
		now:    time.Now,
	}
}

// Issue returns a fresh random state token.
func (s *States) Issue() string {
	b := make([]byte, 16)
	rand.Read(b)
	state := hex.EncodeToString(b)

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, issuedAt := range s.issued {
		if now.Sub(issuedAt) > StateTTL {
			delete(s.issued, k)
		}
	}
	s.issued[state] = now
	return state
}

// Consume reports whether state was issued and is still fresh. A state can
// be consumed only once.
func (s *States) Consume(state string) bool {
	if state == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	issuedAt, ok := s.issued[state]
	if !ok {
		return false
	}
	delete(s.issued, state)
	return s.now().Sub(issuedAt) <= StateTTL
}

// RedirectURL returns the configured redirect URI, or derives one from the
// incoming request.
func RedirectURL(cfg config.GmailConfig, r *http.Request) string {
	if cfg.RedirectURI != "" {
		return cfg.RedirectURI
	}
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s%s", scheme, r.Host, CallbackPath)
}

// AuthURL builds the consent URL. Offline access with forced consent makes
// Google return a refresh token every time.
func AuthURL(oauthCfg *oauth2.Config, state string) string {
	return oauthCfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// HandleLogin starts the Gmail OAuth flow by redirecting to Google's consent page.
func HandleLogin(cfg config.GmailConfig, states *States) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !IsConfigured(cfg) {
			http.Error(w, "Gmail OAuth client is not configured", http.StatusInternalServerError)
			return
		}
		oauthCfg := GetOAuthConfig(cfg, RedirectURL(cfg, r))
		http.Redirect(w, r, AuthURL(oauthCfg, states.Issue()), http.StatusFound)
	}
}

package google

import (
	"strings"

	"github.com/rentaldesk/rentaldesk/internal/config"
	"golang.org/x/oauth2"
	googleOAuth "golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
)

// CallbackPath is where Google redirects after consent.
const CallbackPath = "/api/gmail/callback"

// DefaultTokenTTL applies when the token response carries no expires_in.
const DefaultTokenTTL = 3600

// Scopes grant read access to the mailbox and permission to send.
var Scopes = []string{
	gmail.GmailReadonlyScope,
	gmail.GmailSendScope,
}

// GetOAuthConfig returns the OAuth2 config for the Gmail integration.
// redirectURL overrides the configured redirect URI when non-empty.
func GetOAuthConfig(cfg config.GmailConfig, redirectURL string) *oauth2.Config {
	endpoint := googleOAuth.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	// Client credentials travel in the form body, not basic auth.
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	if redirectURL == "" {
		redirectURL = cfg.RedirectURI
	}

	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  redirectURL,
		Scopes:       Scopes,
		Endpoint:     endpoint,
	}
}

// IsConfigured reports whether client credentials are present.
func IsConfigured(cfg config.GmailConfig) bool {
	return strings.TrimSpace(cfg.ClientID) != "" && strings.TrimSpace(cfg.ClientSecret) != ""
}

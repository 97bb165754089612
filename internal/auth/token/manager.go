package token

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rentaldesk/rentaldesk/internal/db"
	"github.com/rentaldesk/rentaldesk/internal/db/models"
	"github.com/rentaldesk/rentaldesk/internal/logging"
	"github.com/rentaldesk/rentaldesk/internal/metrics"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// ExpiryMargin refreshes tokens this long before they actually expire.
const ExpiryMargin = 60 * time.Second

// DefaultTTL applies when the refresh response carries no expires_in.
const DefaultTTL = 3600 * time.Second

// refreshTimeout bounds a shared refresh, which outlives the caller that started it.
const refreshTimeout = 30 * time.Second

// ErrUnauthenticated means no token was ever stored.
var ErrUnauthenticated = errors.New("gmail is not connected")

// RefreshFailedError carries the provider's response to a failed refresh.
type RefreshFailedError struct {
	Payload   string
	Permanent bool
	Err       error
}

func (e *RefreshFailedError) Error() string {
	return "token refresh failed: " + e.Payload
}

func (e *RefreshFailedError) Unwrap() error { return e.Err }

// Store is the persistence the manager needs.
type Store interface {
	Latest(ctx context.Context) (models.GmailToken, error)
	Append(ctx context.Context, tok models.GmailToken) (models.GmailToken, error)
}

// Status describes the current token without exposing it.
type Status struct {
	Authenticated bool      `json:"authenticated"`
	Valid         bool      `json:"valid"`
	ExpiresAt     time.Time `json:"expiresAt,omitempty"`
	ExpiresIn     int64     `json:"expiresIn"`
	CanRefresh    bool      `json:"canRefresh"`
}

// Manager hands out valid access tokens, refreshing through the OAuth
// provider when the stored one is about to expire.
type Manager struct {
	store  Store
	config *oauth2.Config
	group  singleflight.Group
	now    func() time.Time
}

func NewManager(store Store, config *oauth2.Config) *Manager {
	return &Manager{
		store:  store,
		config: config,
		now:    time.Now,
	}
}

// GetValidAccessToken returns the latest access token, refreshing it first
// when it expires within ExpiryMargin. Concurrent callers share one refresh.
func (m *Manager) GetValidAccessToken(ctx context.Context) (string, error) {
	tok, err := m.latest(ctx)
	if err != nil {
		return "", err
	}
	if m.fresh(tok) {
		return tok.AccessToken, nil
	}

	log.Printf("⚠️ [%s] Gmail token expires at %s, refreshing...", logging.GetRequestID(ctx), time.Unix(tok.ExpiresAt, 0).Format(time.RFC3339))
	refreshed, err := m.refreshShared(ctx, false)
	if err != nil {
		return "", err
	}
	return refreshed.AccessToken, nil
}

// ForceRefresh refreshes regardless of the current token's expiry.
func (m *Manager) ForceRefresh(ctx context.Context) (models.GmailToken, error) {
	if _, err := m.latest(ctx); err != nil {
		return models.GmailToken{}, err
	}
	return m.refreshShared(ctx, true)
}

// Status reports whether a token exists and how long it stays valid.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	tok, err := m.latest(ctx)
	if errors.Is(err, ErrUnauthenticated) {
		return Status{}, nil
	}
	if err != nil {
		return Status{}, err
	}

	expiresIn := tok.ExpiresAt - m.now().Unix()
	if expiresIn < 0 {
		expiresIn = 0
	}
	return Status{
		Authenticated: true,
		Valid:         m.fresh(tok),
		ExpiresAt:     time.Unix(tok.ExpiresAt, 0).UTC(),
		ExpiresIn:     expiresIn,
		CanRefresh:    tok.RefreshToken != "",
	}, nil
}

func (m *Manager) latest(ctx context.Context) (models.GmailToken, error) {
	tok, err := m.store.Latest(ctx)
	if errors.Is(err, db.ErrNoToken) {
		return models.GmailToken{}, ErrUnauthenticated
	}
	if err != nil {
		return models.GmailToken{}, fmt.Errorf("load token: %w", err)
	}
	return tok, nil
}

func (m *Manager) fresh(tok models.GmailToken) bool {
	return m.now().Unix() < tok.ExpiresAt-int64(ExpiryMargin/time.Second)
}

func (m *Manager) refreshShared(ctx context.Context, force bool) (models.GmailToken, error) {
	key := "refresh"
	if force {
		key = "force"
	}
	ch := m.group.DoChan(key, func() (any, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()

		// A flight that finished just before this one may already have stored a fresh token.
		tok, err := m.latest(flightCtx)
		if err != nil {
			return nil, err
		}
		if !force && m.fresh(tok) {
			return tok, nil
		}
		return m.refresh(flightCtx, tok)
	})

	select {
	case <-ctx.Done():
		return models.GmailToken{}, ctx.Err()
	case res := <-ch:
		if res.Shared {
			log.Printf("🔗 [%s] Joined in-flight token refresh", logging.GetRequestID(ctx))
		}
		if res.Err != nil {
			return models.GmailToken{}, res.Err
		}
		return res.Val.(models.GmailToken), nil
	}
}

func (m *Manager) refresh(ctx context.Context, current models.GmailToken) (models.GmailToken, error) {
	if current.RefreshToken == "" {
		metrics.TokenRefreshes.WithLabelValues("error").Inc()
		return models.GmailToken{}, &RefreshFailedError{Payload: "no refresh token stored", Permanent: true}
	}

	capture := &responseCapture{base: contextTransport(ctx)}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Transport: capture})

	src := m.config.TokenSource(ctx, &oauth2.Token{RefreshToken: current.RefreshToken})
	newToken, err := src.Token()
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues("error").Inc()
		rfErr := &RefreshFailedError{Payload: providerPayload(err, capture.Body()), Permanent: isPermanentRefreshError(err), Err: err}
		if rfErr.Permanent {
			log.Printf("🔒 Gmail refresh token rejected, reconnect required: %s", rfErr.Payload)
		} else {
			log.Printf("⏳ Transient Gmail token refresh failure: %v", err)
		}
		return models.GmailToken{}, rfErr
	}

	now := m.now()
	ttl := DefaultTTL
	if !newToken.Expiry.IsZero() {
		ttl = time.Until(newToken.Expiry)
	}

	record := models.GmailToken{
		AccessToken:  newToken.AccessToken,
		RefreshToken: current.RefreshToken,
		ExpiresAt:    now.Add(ttl).Unix(),
	}
	// Persist rotated refresh token if provided (RFC 6749 compliance)
	if newToken.RefreshToken != "" && newToken.RefreshToken != current.RefreshToken {
		log.Printf("🔄 Rotating Gmail refresh token")
		record.RefreshToken = newToken.RefreshToken
	}

	saved, err := m.store.Append(ctx, record)
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues("error").Inc()
		return models.GmailToken{}, fmt.Errorf("save refreshed token: %w", err)
	}

	metrics.TokenRefreshes.WithLabelValues("success").Inc()
	log.Printf("✅ Refreshed Gmail token %s (expires: %s)", logging.MaskToken(saved.AccessToken), time.Unix(saved.ExpiresAt, 0).Format(time.RFC3339))
	return saved, nil
}

// providerPayload prefers the token endpoint's response body. oauth2 only
// attaches it to error responses; a 200 without access_token comes back as a
// bare error, so the captured body is used instead.
func providerPayload(err error, captured []byte) string {
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) && len(rErr.Body) > 0 {
		return string(rErr.Body)
	}
	if len(bytes.TrimSpace(captured)) > 0 {
		return string(captured)
	}
	return err.Error()
}

// maxCapturedBody matches the limit oauth2 applies when reading token responses.
const maxCapturedBody = 1 << 20

// responseCapture keeps the last token endpoint response body.
type responseCapture struct {
	base http.RoundTripper

	mu   sync.Mutex
	body []byte
}

func (c *responseCapture) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := c.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCapturedBody))
	resp.Body.Close()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.body = body
	c.mu.Unlock()

	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, nil
}

func (c *responseCapture) Body() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.body
}

// contextTransport returns the transport of an HTTP client placed in ctx
// for oauth2, or the default transport.
func contextTransport(ctx context.Context) http.RoundTripper {
	if hc, ok := ctx.Value(oauth2.HTTPClient).(*http.Client); ok && hc.Transport != nil {
		return hc.Transport
	}
	return http.DefaultTransport
}

func isPermanentRefreshError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	permanentMarkers := []string{
		"invalid_grant",
		"invalid_client",
		"unauthorized_client",
		"token has been expired or revoked",
		"revoked",
	}
	for _, marker := range permanentMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

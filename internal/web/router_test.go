package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rentaldesk/rentaldesk/internal/auth/token"
	"github.com/rentaldesk/rentaldesk/internal/config"
	"github.com/rentaldesk/rentaldesk/internal/db"
	"github.com/rentaldesk/rentaldesk/internal/db/models"
	"github.com/rentaldesk/rentaldesk/internal/gmail"
	"github.com/rentaldesk/rentaldesk/internal/inbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

type fakeTokens struct {
	status     token.Status
	refreshErr error
}

func (f *fakeTokens) Status(context.Context) (token.Status, error) { return f.status, nil }

func (f *fakeTokens) ForceRefresh(context.Context) (models.GmailToken, error) {
	if f.refreshErr != nil {
		return models.GmailToken{}, f.refreshErr
	}
	return models.GmailToken{AccessToken: "ya29.new", ExpiresAt: 1_800_000_000}, nil
}

type fakeInbox struct {
	fetchErr  error
	gotLimit  int64
	gotFormat gmail.Format
	sendErr   error
	sent      inbox.SendRequest
	getErr    error
}

func (f *fakeInbox) Fetch(_ context.Context, limit int64, format gmail.Format) ([]gmail.NormalizedMessage, error) {
	f.gotLimit, f.gotFormat = limit, format
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return []gmail.NormalizedMessage{
		{ID: "m1", From: "Anna Huber", Subject: "Anfrage", Date: "14.10.2025, 12:05", Body: "Hallo"},
		{ID: "m2", From: gmail.UnknownSender, Subject: "Fehler beim Laden: timeout", Error: "timeout"},
	}, nil
}

func (f *fakeInbox) Send(_ context.Context, req inbox.SendRequest) (string, error) {
	f.sent = req
	if req.To == "" || req.Subject == "" || req.Body == "" {
		return "", gmail.OutgoingMessage{To: req.To, Subject: req.Subject, Body: req.Body}.Validate()
	}
	if f.sendErr != nil {
		return "", f.sendErr
	}
	return "sent-1", nil
}

func (f *fakeInbox) Message(_ context.Context, id string) (gmail.NormalizedMessage, error) {
	if f.getErr != nil {
		return gmail.NormalizedMessage{}, f.getErr
	}
	return gmail.NormalizedMessage{ID: id, Subject: "Schlüssel"}, nil
}

type fakeEmails struct {
	assigned map[string]string
}

func (f *fakeEmails) ListEmails(_ context.Context, bookingID string) ([]models.Email, error) {
	if bookingID == "none" {
		return nil, nil
	}
	b := "b-7"
	return []models.Email{{ID: "m1", Subject: "Anfrage", BookingID: &b}}, nil
}

func (f *fakeEmails) AssignEmail(_ context.Context, emailID, bookingID string) error {
	if emailID == "missing" {
		return db.ErrNotFound
	}
	f.assigned[emailID] = bookingID
	return nil
}

type fakeActivity struct {
	mu  sync.Mutex
	ops []string
}

func (f *fakeActivity) Track(_ context.Context, op string) func(count, failed int, err error) {
	return func(int, int, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.ops = append(f.ops, op)
	}
}

func (f *fakeActivity) Recent(limit int, operation string) []models.Activity {
	return []models.Activity{{ID: "a1", Operation: "fetch", Status: "success"}}
}

func (f *fakeActivity) Stats() models.ActivityStats {
	return models.ActivityStats{Total: 1, Success: 1}
}

type memSaver struct{ saved []models.GmailToken }

func (m *memSaver) Append(_ context.Context, tok models.GmailToken) (models.GmailToken, error) {
	m.saved = append(m.saved, tok)
	return tok, nil
}

type testEnv struct {
	tokens   *fakeTokens
	inbox    *fakeInbox
	emails   *fakeEmails
	activity *fakeActivity
	saver    *memSaver
	handler  http.Handler
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Gmail.ClientID = "client-123"
	cfg.Gmail.ClientSecret = "secret-456"
	if mutate != nil {
		mutate(&cfg)
	}

	env := &testEnv{
		tokens:   &fakeTokens{status: token.Status{Authenticated: true, Valid: true, ExpiresIn: 1200}},
		inbox:    &fakeInbox{},
		emails:   &fakeEmails{assigned: map[string]string{}},
		activity: &fakeActivity{},
		saver:    &memSaver{},
	}
	env.handler = NewRouter(Deps{
		Config:   cfg,
		Tokens:   env.tokens,
		Saver:    env.saver,
		Inbox:    env.inbox,
		Emails:   env.emails,
		Activity: env.activity,
	})
	return env
}

func (e *testEnv) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(http.MethodGet, "/healthz", "")

	rec := env.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `rentaldesk_http_requests_total{code="200",route="/healthz"}`)
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(http.MethodGet, "/api/gmail/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, true, body["configured"])
	assert.Equal(t, true, body["authenticated"])
	assert.Equal(t, float64(1200), body["expiresIn"])
	assert.Contains(t, rec.Header().Get("Cache-Control"), "no-cache")
}

func TestAuthRedirect(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(http.MethodGet, "/api/gmail/auth", "")
	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "client-123", loc.Query().Get("client_id"))
	assert.Equal(t, "http://example.com/api/gmail/callback", loc.Query().Get("redirect_uri"))
}

func TestCallbackMissingCode(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(http.MethodGet, "/api/gmail/callback", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Authorization failed")
}

func TestCallbackRecordsAuthorization(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"ya29.cb","refresh_token":"1//cb","expires_in":3600,"token_type":"Bearer"}`))
	}))
	defer tokenSrv.Close()

	env := newTestEnv(t, func(c *config.Config) { c.Gmail.TokenURL = tokenSrv.URL })

	auth := env.do(http.MethodGet, "/api/gmail/auth", "")
	loc, err := url.Parse(auth.Header().Get("Location"))
	require.NoError(t, err)
	state := loc.Query().Get("state")

	rec := env.do(http.MethodGet, "/api/gmail/callback?code=abc&state="+state, "")
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	require.Len(t, env.saver.saved, 1)
	assert.Equal(t, "ya29.cb", env.saver.saved[0].AccessToken)
	assert.Contains(t, env.activity.ops, "authorize")
}

func TestRefresh(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(http.MethodPost, "/api/gmail/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, time.Unix(1_800_000_000, 0).UTC().Format(time.RFC3339), body["expiresAt"])
	assert.Equal(t, []string{"refresh"}, env.activity.ops)
}

func TestRefreshFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.tokens.refreshErr = &token.RefreshFailedError{Payload: `{"error":"invalid_grant"}`}

	rec := env.do(http.MethodPost, "/api/gmail/refresh", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, decode(t, rec)["details"], "invalid_grant")
}

func TestRefreshRequiresPost(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(http.MethodGet, "/api/gmail/refresh", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestFetch(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(http.MethodGet, "/api/gmail/fetch?limit=10&format=metadata", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var msgs []gmail.NormalizedMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msgs))
	require.Len(t, msgs, 2)
	assert.Equal(t, "Anna Huber", msgs[0].From)
	assert.True(t, msgs[1].Failed())
	assert.Equal(t, int64(10), env.inbox.gotLimit)
	assert.Equal(t, gmail.FormatMetadata, env.inbox.gotFormat)
}

func TestFetchBadLimit(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(http.MethodGet, "/api/gmail/fetch?limit=lots", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFetchUnauthenticated(t *testing.T) {
	env := newTestEnv(t, nil)
	env.inbox.fetchErr = token.ErrUnauthenticated

	rec := env.do(http.MethodGet, "/api/gmail/fetch", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Not authenticated with Gmail", decode(t, rec)["error"])
}

func TestMessage(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(http.MethodGet, "/api/gmail/messages/18c2f0a", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "18c2f0a", decode(t, rec)["id"])
}

func TestMessageNotFound(t *testing.T) {
	env := newTestEnv(t, nil)
	env.inbox.getErr = fmt.Errorf("get message nope: %w", &googleapi.Error{Code: http.StatusNotFound, Message: "Requested entity was not found."})

	rec := env.do(http.MethodGet, "/api/gmail/messages/nope", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Message not found", body["error"])
	assert.Equal(t, "Requested entity was not found.", body["details"])
}

func TestMessageProviderErrorIs500(t *testing.T) {
	env := newTestEnv(t, nil)
	env.inbox.getErr = fmt.Errorf("get message m1: %w", &googleapi.Error{Code: http.StatusInternalServerError, Message: "backend"})

	rec := env.do(http.MethodGet, "/api/gmail/messages/m1", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSend(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(http.MethodPost, "/api/gmail/send", `{"to":"guest@example.com","subject":"Anreise","body":"Hallo"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "sent-1", body["messageId"])
	assert.Equal(t, "guest@example.com", env.inbox.sent.To)
}

func TestSendErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		sendErr error
		want    int
	}{
		{name: "malformed json", body: `{"to":`, want: http.StatusBadRequest},
		{name: "missing fields", body: `{"to":"guest@example.com"}`, want: http.StatusBadRequest},
		{name: "provider forbids", body: `{"to":"g@x.com","subject":"s","body":"b"}`,
			sendErr: &gmail.SendFailedError{StatusCode: http.StatusForbidden, Body: "Insufficient Permission"}, want: http.StatusForbidden},
		{name: "unauthenticated", body: `{"to":"g@x.com","subject":"s","body":"b"}`,
			sendErr: token.ErrUnauthenticated, want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			env.inbox.sendErr = tt.sendErr
			rec := env.do(http.MethodPost, "/api/gmail/send", tt.body)
			assert.Equal(t, tt.want, rec.Code)
			assert.NotEmpty(t, decode(t, rec)["error"])
		})
	}
}

func TestEmails(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(http.MethodGet, "/api/gmail/emails?bookingId=b-7", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var emails []models.Email
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &emails))
	require.Len(t, emails, 1)
	assert.Equal(t, "b-7", *emails[0].BookingID)

	rec = env.do(http.MethodGet, "/api/gmail/emails?bookingId=none", "")
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestAssignEmail(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(http.MethodPost, "/api/gmail/emails/assign", `{"emailId":"m1","bookingId":"b-7"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["success"])
	assert.Equal(t, "b-7", env.emails.assigned["m1"])

	rec = env.do(http.MethodPost, "/api/gmail/emails/assign", `{"emailId":"missing","bookingId":"b-7"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodPost, "/api/gmail/emails/assign", `{"bookingId":"b-7"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestActivity(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(http.MethodGet, "/api/gmail/activity?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Len(t, body["entries"], 1)
	assert.Equal(t, float64(1), body["stats"].(map[string]any)["total"])
}

func TestAdminPassword(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Admin.Password = "s3cret" })

	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/api/gmail/status", "").Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/healthz", "").Code)
	// The OAuth callback is reached by Google's redirect and stays open.
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/gmail/callback", "").Code)

	req := httptest.NewRequest(http.MethodGet, "/api/gmail/status", nil)
	req.SetBasicAuth("admin", "s3cret")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

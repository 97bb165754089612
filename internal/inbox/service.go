// Package inbox composes token handling, the Gmail client and local storage
// into the operations the dashboard calls.
package inbox

import (
	"context"
	"fmt"
	"log"

	"github.com/rentaldesk/rentaldesk/internal/activity"
	"github.com/rentaldesk/rentaldesk/internal/db/models"
	"github.com/rentaldesk/rentaldesk/internal/gmail"
	"github.com/rentaldesk/rentaldesk/internal/logging"
)

// MaxFetchLimit caps a single listing.
const MaxFetchLimit = 500

type TokenProvider interface {
	GetValidAccessToken(ctx context.Context) (string, error)
}

// Mailbox is the subset of *gmail.Client the service uses.
type Mailbox interface {
	ListRecentMessages(ctx context.Context, limit int64, format gmail.Format) ([]gmail.NormalizedMessage, error)
	GetMessage(ctx context.Context, id string) (gmail.NormalizedMessage, error)
	SendMessage(ctx context.Context, to, subject, body string) (string, error)
}

// ClientFactory builds a Mailbox for one access token.
type ClientFactory func(ctx context.Context, accessToken string) (Mailbox, error)

// EmailSaver stores fetched messages. SaveEmailHeaders is used for
// metadata reads and must not overwrite a stored body.
type EmailSaver interface {
	SaveEmails(ctx context.Context, emails []models.Email) error
	SaveEmailHeaders(ctx context.Context, emails []models.Email) error
}

type Tracker interface {
	Track(ctx context.Context, op string) func(count, failed int, err error)
}

// SendRequest is the body of a send call.
type SendRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type Service struct {
	tokens       TokenProvider
	newClient    ClientFactory
	emails       EmailSaver
	activity     Tracker
	defaultLimit int64
}

func NewService(tokens TokenProvider, newClient ClientFactory, emails EmailSaver, tracker Tracker, defaultLimit int64) *Service {
	if defaultLimit <= 0 {
		defaultLimit = 50
	}
	return &Service{
		tokens:       tokens,
		newClient:    newClient,
		emails:       emails,
		activity:     tracker,
		defaultLimit: defaultLimit,
	}
}

// GmailClientFactory adapts gmail.NewClient to a ClientFactory.
func GmailClientFactory(opts gmail.Options) ClientFactory {
	return func(ctx context.Context, accessToken string) (Mailbox, error) {
		return gmail.NewClient(ctx, accessToken, opts)
	}
}

// Fetch lists recent messages and stores the ones that loaded cleanly.
// Placeholders for failed messages are returned but never stored.
func (s *Service) Fetch(ctx context.Context, limit int64, format gmail.Format) (msgs []gmail.NormalizedMessage, err error) {
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > MaxFetchLimit {
		limit = MaxFetchLimit
	}

	failed := 0
	done := s.activity.Track(ctx, activity.OpFetch)
	defer func() { done(len(msgs), failed, err) }()

	client, err := s.client(ctx)
	if err != nil {
		return nil, err
	}
	msgs, err = client.ListRecentMessages(ctx, limit, format)
	if err != nil {
		return nil, err
	}

	records := make([]models.Email, 0, len(msgs))
	for _, m := range msgs {
		if m.Failed() {
			failed++
			continue
		}
		records = append(records, toRecord(m, format))
	}
	save := s.emails.SaveEmails
	if format == gmail.FormatMetadata {
		save = s.emails.SaveEmailHeaders
	}
	if err := save(ctx, records); err != nil {
		// The listing itself succeeded; storage problems are logged only.
		log.Printf("⚠️ [%s] Failed to store %d fetched emails: %v", logging.GetRequestID(ctx), len(records), err)
	}

	log.Printf("📬 [%s] Fetched %d messages (%d failed, format=%s)", logging.GetRequestID(ctx), len(msgs), failed, format)
	return msgs, nil
}

// Send validates req before touching tokens or the network.
func (s *Service) Send(ctx context.Context, req SendRequest) (id string, err error) {
	if err := (gmail.OutgoingMessage{To: req.To, Subject: req.Subject, Body: req.Body}).Validate(); err != nil {
		return "", err
	}

	done := s.activity.Track(ctx, activity.OpSend)
	defer func() {
		count := 0
		if err == nil {
			count = 1
		}
		done(count, 0, err)
	}()

	client, err := s.client(ctx)
	if err != nil {
		return "", err
	}
	id, err = client.SendMessage(ctx, req.To, req.Subject, req.Body)
	if err != nil {
		return "", err
	}
	log.Printf("📤 [%s] Sent message %s", logging.GetRequestID(ctx), id)
	return id, nil
}

// Message reads one message in full.
func (s *Service) Message(ctx context.Context, id string) (gmail.NormalizedMessage, error) {
	client, err := s.client(ctx)
	if err != nil {
		return gmail.NormalizedMessage{}, err
	}
	return client.GetMessage(ctx, id)
}

func (s *Service) client(ctx context.Context) (Mailbox, error) {
	accessToken, err := s.tokens.GetValidAccessToken(ctx)
	if err != nil {
		return nil, err
	}
	client, err := s.newClient(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("create gmail client: %w", err)
	}
	return client, nil
}

func toRecord(m gmail.NormalizedMessage, format gmail.Format) models.Email {
	body := m.Body
	if format == gmail.FormatMetadata {
		// Metadata reads carry no body; m.Body is only the snippet fallback.
		body = ""
	}
	return models.Email{
		ID:         m.ID,
		ThreadID:   m.ThreadID,
		FromEmail:  m.FromEmail,
		FromName:   m.From,
		Subject:    m.Subject,
		Snippet:    m.Snippet,
		Body:       body,
		Date:       m.Date,
		ReceivedAt: m.ReceivedAt,
	}
}

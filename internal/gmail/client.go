package gmail

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const (
	user = "me"

	defaultConcurrency    = 8
	defaultMessageTimeout = 15 * time.Second
)

// Options configures a Client. Zero values select sensible defaults.
type Options struct {
	// Endpoint overrides the Gmail API base URL (tests, proxies).
	Endpoint string
	// Transport is the base round tripper under the OAuth transport.
	Transport http.RoundTripper
	// SendFrom is written as the From header of outgoing mail when set.
	SendFrom string
	// Location is used to render message dates.
	Location *time.Location
	// Concurrency bounds parallel per-message fetches.
	Concurrency int
	// MessageTimeout bounds each per-message fetch.
	MessageTimeout time.Duration
}

// Client wraps the Gmail Users service for a single access token.
type Client struct {
	svc         *gmail.UsersService
	from        string
	loc         *time.Location
	concurrency int
	timeout     time.Duration
}

// NewClient creates a Gmail client authorized with accessToken.
func NewClient(ctx context.Context, accessToken string, opts Options) (*Client, error) {
	base := opts.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	httpClient := &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
			Base:   base,
		},
	}

	svcOpts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if opts.Endpoint != "" {
		svcOpts = append(svcOpts, option.WithEndpoint(opts.Endpoint))
	}
	svc, err := gmail.NewService(ctx, svcOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	c := &Client{
		svc:         svc.Users,
		from:        opts.SendFrom,
		loc:         opts.Location,
		concurrency: opts.Concurrency,
		timeout:     opts.MessageTimeout,
	}
	if c.loc == nil {
		c.loc = time.Local
	}
	if c.concurrency <= 0 {
		c.concurrency = defaultConcurrency
	}
	if c.timeout <= 0 {
		c.timeout = defaultMessageTimeout
	}
	return c, nil
}

// ListRecentMessages lists up to limit messages, newest first, and reads
// each one in the given format. A message that cannot be read becomes an
// error placeholder in its slot; only the listing call itself can fail.
func (c *Client) ListRecentMessages(ctx context.Context, limit int64, format Format) ([]NormalizedMessage, error) {
	res, err := c.svc.Messages.List(user).MaxResults(limit).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	if len(res.Messages) == 0 {
		return []NormalizedMessage{}, nil
	}

	out := make([]NormalizedMessage, len(res.Messages))
	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, ref := range res.Messages {
		i, ref := i, ref
		g.Go(func() error {
			out[i] = c.fetchOne(ctx, ref.Id, format)
			return nil
		})
	}
	_ = g.Wait()

	return out, nil
}

// GetMessage reads and normalizes a single message.
func (c *Client) GetMessage(ctx context.Context, id string) (NormalizedMessage, error) {
	msg, err := c.svc.Messages.Get(user, id).Format(string(FormatFull)).Context(ctx).Do()
	if err != nil {
		return NormalizedMessage{}, fmt.Errorf("get message %s: %w", id, err)
	}
	return Normalize(msg, c.loc), nil
}

func (c *Client) fetchOne(ctx context.Context, id string, format Format) NormalizedMessage {
	msgCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	call := c.svc.Messages.Get(user, id).Format(string(format))
	if format == FormatMetadata {
		call = call.MetadataHeaders(metadataHeaders...)
	}
	msg, err := call.Context(msgCtx).Do()
	if delay, limited := rateLimitDelay(err); limited && delay <= maxRetryDelay {
		log.Printf("[gmail] ⏳ Rate limited on message %s, retrying in %v", id, delay)
		select {
		case <-time.After(delay):
			msg, err = call.Context(msgCtx).Do()
		case <-msgCtx.Done():
			err = msgCtx.Err()
		}
	}
	if err != nil {
		log.Printf("[gmail] ⚠️ Failed to fetch message %s: %v", id, err)
		return errorPlaceholder(id, err)
	}
	return Normalize(msg, c.loc)
}

// Normalize converts a provider message into a NormalizedMessage.
func Normalize(msg *gmail.Message, loc *time.Location) NormalizedMessage {
	payload := msg.Payload

	fromHeader, _ := FindHeader(payload, "From")
	name, email := ParseAddress(fromHeader)
	if email == "" {
		email = name
	}

	subject, _ := FindHeader(payload, "Subject")
	if strings.TrimSpace(subject) == "" {
		subject = NoSubject
	}

	dateHeader, _ := FindHeader(payload, "Date")

	body := ExtractBody(payload)
	if body == "" {
		body = msg.Snippet
	}

	return NormalizedMessage{
		ID:         msg.Id,
		ThreadID:   msg.ThreadId,
		From:       ParseSender(fromHeader),
		FromEmail:  email,
		Subject:    subject,
		Date:       FormatDate(dateHeader, loc),
		Body:       body,
		Snippet:    msg.Snippet,
		ReceivedAt: msg.InternalDate / 1000,
	}
}

func errorPlaceholder(id string, err error) NormalizedMessage {
	return NormalizedMessage{
		ID:      id,
		From:    UnknownSender,
		Subject: "Fehler beim Laden: " + err.Error(),
		Error:   err.Error(),
	}
}

package gmail

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"

	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
)

// ErrInvalidRequest is returned when a send request lacks required fields.
var ErrInvalidRequest = errors.New("invalid request")

// SendFailedError carries the provider's rejection of a send.
type SendFailedError struct {
	StatusCode int
	Body       string
}

func (e *SendFailedError) Error() string {
	return fmt.Sprintf("send failed with status %d: %s", e.StatusCode, e.Body)
}

// OutgoingMessage is a plain-text message to compose and send.
type OutgoingMessage struct {
	From    string
	To      string
	Subject string
	Body    string
}

// Validate reports missing required fields as ErrInvalidRequest.
func (m OutgoingMessage) Validate() error {
	var missing []string
	if strings.TrimSpace(m.To) == "" {
		missing = append(missing, "to")
	}
	if strings.TrimSpace(m.Subject) == "" {
		missing = append(missing, "subject")
	}
	if m.Body == "" {
		missing = append(missing, "body")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required fields: %s", ErrInvalidRequest, strings.Join(missing, ", "))
	}
	return nil
}

// ComposeMessage renders m as an RFC 2822 message with CRLF line endings.
func ComposeMessage(m OutgoingMessage) string {
	lines := make([]string, 0, 7)
	if m.From != "" {
		lines = append(lines, "From: "+headerValue(m.From))
	}
	lines = append(lines,
		"To: "+headerValue(m.To),
		"Subject: "+mime.QEncoding.Encode("utf-8", headerValue(m.Subject)),
		"Content-Type: text/plain; charset=utf-8",
		"MIME-Version: 1.0",
		"",
		m.Body,
	)
	return strings.Join(lines, "\r\n")
}

// headerValue strips line breaks so a value cannot start a new header.
func headerValue(v string) string {
	return strings.NewReplacer("\r", "", "\n", " ").Replace(strings.TrimSpace(v))
}

// SendMessage composes a plain-text message and submits it. Validation
// happens before any network call.
func (c *Client) SendMessage(ctx context.Context, to, subject, body string) (string, error) {
	msg := OutgoingMessage{From: c.from, To: to, Subject: subject, Body: body}
	if err := msg.Validate(); err != nil {
		return "", err
	}

	raw := EncodeBase64URL([]byte(ComposeMessage(msg)))
	sent, err := c.svc.Messages.Send(user, &gmail.Message{Raw: raw}).Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			return "", &SendFailedError{StatusCode: apiErr.Code, Body: apiErr.Body}
		}
		return "", fmt.Errorf("send message: %w", err)
	}
	return sent.Id, nil
}

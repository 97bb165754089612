package gmail

import (
	"mime"
	"net/mail"
	"regexp"
	"strings"
	"time"

	gmail "google.golang.org/api/gmail/v1"
)

const (
	// UnknownSender is shown when a message carries no From header.
	UnknownSender = "Unbekannt"
	// NoSubject is shown when a message carries no Subject header.
	NoSubject = "(kein Betreff)"

	// DateLayout renders dates as day.month.year, hour:minute.
	DateLayout = "02.01.2006, 15:04"
)

var (
	senderPattern = regexp.MustCompile(`^\s*"?([^"<]*?)"?\s*<([^>]*)>`)
	wordDecoder   = new(mime.WordDecoder)
)

// FindHeader returns the value of the named header of the top-level part.
// Names match case-insensitively; nested parts are not searched.
func FindHeader(part *gmail.MessagePart, name string) (string, bool) {
	if part == nil {
		return "", false
	}
	for _, h := range part.Headers {
		if h != nil && strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

// ParseAddress splits a From header into display name and email address.
// A header that is not in `name <email>` form is returned as the address.
func ParseAddress(from string) (name, email string) {
	m := senderPattern.FindStringSubmatch(from)
	if m == nil {
		return "", strings.TrimSpace(from)
	}
	name = strings.TrimSpace(m[1])
	if decoded, err := wordDecoder.DecodeHeader(name); err == nil {
		name = strings.TrimSpace(decoded)
	}
	return name, strings.TrimSpace(m[2])
}

// ParseSender returns the display name of a From header, falling back to
// the email address, then the raw header, then UnknownSender.
func ParseSender(from string) string {
	if strings.TrimSpace(from) == "" {
		return UnknownSender
	}
	name, email := ParseAddress(from)
	switch {
	case name != "":
		return name
	case email != "":
		return email
	default:
		return strings.TrimSpace(from)
	}
}

// FormatDate renders an RFC 5322 date header in DateLayout in loc.
// Unparseable headers are returned unchanged.
func FormatDate(header string, loc *time.Location) string {
	if header == "" {
		return ""
	}
	t, err := parseDate(header)
	if err != nil {
		return header
	}
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DateLayout)
}

func parseDate(header string) (time.Time, error) {
	value := strings.TrimSpace(header)
	// Drop a trailing zone comment such as "(UTC)" or "(PDT)".
	if open := strings.LastIndex(value, "("); open > 0 && strings.HasSuffix(value, ")") {
		value = strings.TrimSpace(value[:open])
	}
	return mail.ParseDate(value)
}

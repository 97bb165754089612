package gmail

// Format selects how much of each message the fetcher reads.
type Format string

const (
	// FormatFull reads headers and body.
	FormatFull Format = "full"
	// FormatMetadata reads the From, Subject and Date headers only.
	FormatMetadata Format = "metadata"
)

// ParseFormat maps a query value onto a Format, defaulting to FormatFull.
func ParseFormat(s string) Format {
	if Format(s) == FormatMetadata {
		return FormatMetadata
	}
	return FormatFull
}

// metadataHeaders are requested in FormatMetadata reads.
var metadataHeaders = []string{"From", "Subject", "Date"}

// NormalizedMessage is a provider message reduced to what the dashboard shows.
// Error is set on placeholders for messages that could not be fetched.
type NormalizedMessage struct {
	ID         string `json:"id"`
	ThreadID   string `json:"threadId,omitempty"`
	From       string `json:"from"`
	FromEmail  string `json:"fromEmail,omitempty"`
	Subject    string `json:"subject"`
	Date       string `json:"date"`
	Body       string `json:"body"`
	Snippet    string `json:"snippet,omitempty"`
	ReceivedAt int64  `json:"receivedAt,omitempty"` // unix seconds
	Error      string `json:"error,omitempty"`
}

// Failed reports whether m is an error placeholder.
func (m NormalizedMessage) Failed() bool {
	return m.Error != ""
}

package gmail

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"google.golang.org/api/googleapi"
)

const (
	// defaultRetryDelay applies to a 429 that carries no retry hint.
	defaultRetryDelay = time.Second
	// maxRetryDelay is the longest hint honored; longer waits fail the message.
	maxRetryDelay = 5 * time.Second
)

// retryInfo is the structured error body Google APIs send with a 429.
type retryInfo struct {
	Error struct {
		Details []struct {
			Reason     string            `json:"reason"`
			RetryDelay string            `json:"retryDelay"` // e.g. "3.5s"
			Metadata   map[string]string `json:"metadata"`
		} `json:"details"`
	} `json:"error"`
}

// rateLimitDelay reports whether err is a 429 from the Gmail API and how long
// to wait before retrying. The Retry-After header wins over the body.
func rateLimitDelay(err error) (time.Duration, bool) {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) || gerr.Code != http.StatusTooManyRequests {
		return 0, false
	}

	if retryAfter := gerr.Header.Get("Retry-After"); retryAfter != "" {
		if seconds, err := strconv.Atoi(retryAfter); err == nil {
			return time.Duration(seconds) * time.Second, true
		}
		if t, err := http.ParseTime(retryAfter); err == nil {
			return time.Until(t), true
		}
	}

	var info retryInfo
	if err := json.Unmarshal([]byte(gerr.Body), &info); err == nil {
		for _, detail := range info.Error.Details {
			if d, err := time.ParseDuration(detail.RetryDelay); err == nil {
				return d, true
			}
			if d, err := time.ParseDuration(detail.Metadata["retryDelay"]); err == nil {
				return d, true
			}
		}
	}
	return defaultRetryDelay, true
}

package gmail

import (
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"
)

var base64URLReplacer = strings.NewReplacer("-", "+", "_", "/")

// DecodeBase64URL decodes a Gmail body payload into text.
// Malformed input yields an empty string so one broken part never breaks
// the whole message.
func DecodeBase64URL(data string) string {
	text, err := decodeBase64URL(data)
	if err != nil {
		return ""
	}
	return text
}

// decodeBase64URL accepts padded and unpadded base64url input.
func decodeBase64URL(data string) (string, error) {
	data = base64URLReplacer.Replace(strings.TrimSpace(data))
	data = strings.TrimRight(data, "=")

	raw, err := base64.RawStdEncoding.DecodeString(data)
	if err != nil {
		return "", fmt.Errorf("decode base64url: %w", err)
	}
	if !utf8.Valid(raw) {
		return strings.ToValidUTF8(string(raw), "�"), nil
	}
	return string(raw), nil
}

// EncodeBase64URL encodes b the way the Gmail send endpoint expects it:
// URL-safe alphabet, no padding.
func EncodeBase64URL(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

package gmail

import (
	"strings"

	gmail "google.golang.org/api/gmail/v1"
)

// ExtractBody concatenates every decoded text/plain and text/html leaf of
// the part tree. It returns "" when the tree carries no text body.
func ExtractBody(payload *gmail.MessagePart) string {
	var sb strings.Builder
	collectText(payload, &sb)
	return sb.String()
}

func collectText(part *gmail.MessagePart, sb *strings.Builder) {
	if part == nil {
		return
	}
	if len(part.Parts) > 0 {
		for _, child := range part.Parts {
			collectText(child, sb)
		}
		return
	}
	if !isTextPart(part.MimeType) || part.Body == nil || part.Body.Data == "" {
		return
	}
	sb.WriteString(DecodeBase64URL(part.Body.Data))
}

func isTextPart(mimeType string) bool {
	return strings.EqualFold(mimeType, "text/plain") || strings.EqualFold(mimeType, "text/html")
}

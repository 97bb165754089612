package gmail

import (
	"testing"

	"github.com/stretchr/testify/assert"
	gmail "google.golang.org/api/gmail/v1"
)

func TestExtractBody_SinglePlainPart(t *testing.T) {
	payload := &gmail.MessagePart{
		MimeType: "multipart/mixed",
		Parts: []*gmail.MessagePart{
			{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: "SGVsbG8="}},
		},
	}
	assert.Equal(t, "Hello", ExtractBody(payload))
}

func TestExtractBody_NestedAlternative(t *testing.T) {
	payload := &gmail.MessagePart{
		MimeType: "multipart/mixed",
		Parts: []*gmail.MessagePart{
			{
				MimeType: "multipart/alternative",
				Parts: []*gmail.MessagePart{
					{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: "SGFsbG8gQW5uYSwNCndpciBmcmV1ZW4gdW5zLg=="}},
					{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: "PHA-SGFsbG88L3A-"}},
				},
			},
			{MimeType: "application/pdf", Filename: "rechnung.pdf", Body: &gmail.MessagePartBody{AttachmentId: "att-1"}},
		},
	}
	assert.Equal(t, "Hallo Anna,\r\nwir freuen uns.<p>Hallo</p>", ExtractBody(payload))
}

func TestExtractBody_SinglePartMessage(t *testing.T) {
	payload := &gmail.MessagePart{
		MimeType: "text/plain",
		Body:     &gmail.MessagePartBody{Data: "SGVsbG8"},
	}
	assert.Equal(t, "Hello", ExtractBody(payload))
}

func TestExtractBody_NoTextParts(t *testing.T) {
	payload := &gmail.MessagePart{
		MimeType: "multipart/mixed",
		Parts: []*gmail.MessagePart{
			{MimeType: "image/png", Body: &gmail.MessagePartBody{Data: "iVBORw0KGgo"}},
			{MimeType: "text/plain", Body: &gmail.MessagePartBody{}},
			{MimeType: "text/plain"},
		},
	}
	assert.Empty(t, ExtractBody(payload))
	assert.Empty(t, ExtractBody(nil))
}

func TestExtractBody_MalformedPartSkipped(t *testing.T) {
	payload := &gmail.MessagePart{
		Parts: []*gmail.MessagePart{
			{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: "***"}},
			{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: "SGVsbG8="}},
		},
	}
	assert.Equal(t, "Hello", ExtractBody(payload))
}

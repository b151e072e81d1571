package whatsapp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyKinds(t *testing.T) {
	tests := []struct {
		name     string
		content  *MessageContent
		kind     Kind
		text     string
		mediaURL string
	}{
		{
			name:    "conversation",
			content: &MessageContent{Conversation: "olá"},
			kind:    KindText, text: "olá",
		},
		{
			name:    "extended text",
			content: &MessageContent{ExtendedText: &ExtendedTextMessage{Text: "link https://escola.com.br"}},
			kind:    KindText, text: "link https://escola.com.br",
		},
		{
			name:    "image",
			content: &MessageContent{Image: &MediaMessage{URL: "https://m/1.jpg", MimeType: "image/jpeg", Caption: "boletim"}},
			kind:    KindImage, mediaURL: "https://m/1.jpg",
		},
		{
			name:    "document",
			content: &MessageContent{Document: &MediaMessage{URL: "https://m/c.pdf", FileName: "contrato.pdf"}},
			kind:    KindDocument, mediaURL: "https://m/c.pdf",
		},
		{
			name:    "sticker",
			content: &MessageContent{Sticker: &MediaMessage{URL: "https://m/s.webp"}},
			kind:    KindSticker, mediaURL: "https://m/s.webp",
		},
		{
			name:    "location",
			content: &MessageContent{Location: &LocationMessage{Latitude: -22.9068, Longitude: -43.1729}},
			kind:    KindLocation, text: "-22.9068,-43.1729",
		},
		{
			name:    "contact",
			content: &MessageContent{Contact: &ContactMessage{DisplayName: "Secretaria", VCard: "BEGIN:VCARD"}},
			kind:    KindContact, text: "Secretaria",
		},
		{
			name:    "ephemeral wrapper",
			content: &MessageContent{Ephemeral: &WrappedMessage{Message: &MessageContent{Conversation: "some"}}},
			kind:    KindText, text: "some",
		},
		{
			name:    "unknown",
			content: &MessageContent{},
			kind:    KindText, text: UnsupportedBody,
		},
		{
			name:    "nil message",
			content: nil,
			kind:    KindText, text: UnsupportedBody,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(Envelope{Message: tt.content})
			assert.Equal(t, tt.kind, c.Kind)
			assert.Equal(t, tt.text, c.Text)
			assert.Equal(t, tt.mediaURL, c.MediaURL)
			if c.Kind.IsMedia() {
				assert.Empty(t, c.Text)
			} else {
				assert.NotEmpty(t, c.Text)
				assert.Empty(t, c.MediaURL)
			}
		})
	}
}

func TestClassifyPrecedence(t *testing.T) {
	c := Classify(Envelope{Message: &MessageContent{
		Conversation: "texto",
		Image:        &MediaMessage{URL: "https://m/1.jpg"},
		Location:     &LocationMessage{Latitude: 1, Longitude: 2},
	}})
	assert.Equal(t, KindText, c.Kind)

	c = Classify(Envelope{Message: &MessageContent{
		Video: &MediaMessage{URL: "https://m/v.mp4"},
		Audio: &MediaMessage{URL: "https://m/a.ogg", PTT: true},
	}})
	assert.Equal(t, KindAudio, c.Kind)
	assert.True(t, c.Voice)
}

func TestClassifyUnsupportedFlag(t *testing.T) {
	c := Classify(Envelope{Message: &MessageContent{Contact: &ContactMessage{}}})
	assert.True(t, c.Unsupported)
	assert.Equal(t, UnsupportedBody, c.Text)
}

func TestClassifyWhitespaceTextStaysText(t *testing.T) {
	c := Classify(Envelope{Message: &MessageContent{Conversation: "   "}})
	assert.Equal(t, KindText, c.Kind)
	assert.Equal(t, "   ", c.Text)
	assert.False(t, c.Unsupported)

	c = Classify(Envelope{Message: &MessageContent{ExtendedText: &ExtendedTextMessage{Text: "\n"}}})
	assert.Equal(t, KindText, c.Kind)
	assert.Equal(t, "\n", c.Text)
	assert.False(t, c.Unsupported)
}

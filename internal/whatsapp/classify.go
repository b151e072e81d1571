package whatsapp

import (
	"strconv"
	"strings"
)

// Kind is the persisted message type.
type Kind string

const (
	KindText     Kind = "text"
	KindImage    Kind = "image"
	KindAudio    Kind = "audio"
	KindVideo    Kind = "video"
	KindDocument Kind = "document"
	KindSticker  Kind = "sticker"
	KindLocation Kind = "location"
	KindContact  Kind = "contact"
)

// UnsupportedBody is stored for message types the inbox cannot render.
const UnsupportedBody = "[unsupported message]"

// IsMedia reports whether the kind carries a media reference instead of a body.
func (k Kind) IsMedia() bool {
	switch k {
	case KindImage, KindAudio, KindVideo, KindDocument, KindSticker:
		return true
	}
	return false
}

// Classified is the storable form of an inbound message. Media kinds fill
// MediaURL and leave Text empty; the others fill Text.
type Classified struct {
	Kind        Kind
	Text        string
	MediaURL    string
	MimeType    string
	FileName    string
	Caption     string
	Voice       bool
	Unsupported bool
}

// Classify picks the message kind with a fixed precedence: text, image,
// audio, video, document, sticker, location, contact. It never fails;
// unknown content becomes a text placeholder.
func Classify(env Envelope) Classified {
	msg := unwrapContent(env.Message)
	if msg == nil {
		return unsupported()
	}

	if msg.Conversation != "" || msg.ExtendedText != nil {
		text := firstNonEmpty(msg.Conversation, extendedText(msg.ExtendedText))
		if text == "" {
			// Whitespace-only text is still text; keep it as typed.
			text = msg.Conversation + extendedText(msg.ExtendedText)
		}
		return Classified{Kind: KindText, Text: text}
	}
	if msg.Image != nil {
		return media(KindImage, msg.Image)
	}
	if msg.Audio != nil {
		c := media(KindAudio, msg.Audio)
		c.Voice = msg.Audio.PTT
		c.Caption = ""
		return c
	}
	if msg.Video != nil {
		return media(KindVideo, msg.Video)
	}
	if msg.Document != nil {
		return media(KindDocument, msg.Document)
	}
	if msg.Sticker != nil {
		c := media(KindSticker, msg.Sticker)
		c.Caption = ""
		return c
	}
	if msg.Location != nil {
		return Classified{
			Kind: KindLocation,
			Text: formatCoordinate(msg.Location.Latitude) + "," + formatCoordinate(msg.Location.Longitude),
		}
	}
	if msg.Contact != nil {
		name := firstNonEmpty(msg.Contact.DisplayName, msg.Contact.VCard)
		if name == "" {
			return unsupported()
		}
		return Classified{Kind: KindContact, Text: name}
	}
	return unsupported()
}

func unwrapContent(msg *MessageContent) *MessageContent {
	for depth := 0; msg != nil && depth < 3; depth++ {
		switch {
		case msg.Ephemeral != nil && msg.Ephemeral.Message != nil:
			msg = msg.Ephemeral.Message
		case msg.ViewOnce != nil && msg.ViewOnce.Message != nil:
			msg = msg.ViewOnce.Message
		default:
			return msg
		}
	}
	return msg
}

func media(kind Kind, m *MediaMessage) Classified {
	return Classified{
		Kind:     kind,
		MediaURL: strings.TrimSpace(m.URL),
		MimeType: m.MimeType,
		FileName: m.FileName,
		Caption:  strings.TrimSpace(m.Caption),
	}
}

func unsupported() Classified {
	return Classified{Kind: KindText, Text: UnsupportedBody, Unsupported: true}
}

func extendedText(m *ExtendedTextMessage) string {
	if m == nil {
		return ""
	}
	return m.Text
}

func formatCoordinate(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

package whatsapp

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Envelope is the canonical inbound message shape. Alternate vendor shapes
// are remapped into it by AdaptPayload.
type Envelope struct {
	Key       MessageKey      `json:"key"`
	PushName  string          `json:"pushName,omitempty"`
	Timestamp FlexInt64       `json:"messageTimestamp,omitempty"`
	Message   *MessageContent `json:"message,omitempty"`
}

// MessageKey identifies a message and its chat.
type MessageKey struct {
	RemoteJID   string `json:"remoteJid"`
	FromMe      bool   `json:"fromMe"`
	ID          string `json:"id"`
	Participant string `json:"participant,omitempty"`
}

// MessageContent holds the typed sub-messages. At most one is expected to be
// set, but the classifier applies a fixed precedence when several are.
type MessageContent struct {
	Conversation string               `json:"conversation,omitempty"`
	ExtendedText *ExtendedTextMessage `json:"extendedTextMessage,omitempty"`
	Image        *MediaMessage        `json:"imageMessage,omitempty"`
	Audio        *MediaMessage        `json:"audioMessage,omitempty"`
	Video        *MediaMessage        `json:"videoMessage,omitempty"`
	Document     *MediaMessage        `json:"documentMessage,omitempty"`
	Sticker      *MediaMessage        `json:"stickerMessage,omitempty"`
	Location     *LocationMessage     `json:"locationMessage,omitempty"`
	Contact      *ContactMessage      `json:"contactMessage,omitempty"`

	Ephemeral *WrappedMessage `json:"ephemeralMessage,omitempty"`
	ViewOnce  *WrappedMessage `json:"viewOnceMessage,omitempty"`
}

// WrappedMessage carries a nested message (disappearing or view-once).
type WrappedMessage struct {
	Message *MessageContent `json:"message,omitempty"`
}

type ExtendedTextMessage struct {
	Text string `json:"text"`
}

type MediaMessage struct {
	URL      string `json:"url,omitempty"`
	MimeType string `json:"mimetype,omitempty"`
	Caption  string `json:"caption,omitempty"`
	FileName string `json:"fileName,omitempty"`
	PTT      bool   `json:"ptt,omitempty"`
}

type LocationMessage struct {
	Latitude  float64 `json:"degreesLatitude"`
	Longitude float64 `json:"degreesLongitude"`
	Name      string  `json:"name,omitempty"`
}

type ContactMessage struct {
	DisplayName string `json:"displayName,omitempty"`
	VCard       string `json:"vcard,omitempty"`
}

// Phone returns the normalized phone of the chat.
func (e Envelope) Phone() string {
	return NormalizePhone(e.Key.RemoteJID)
}

// SentAt converts the vendor timestamp, in seconds or milliseconds, to a
// time. It falls back to now when the payload carried none.
func (e Envelope) SentAt(now time.Time) time.Time {
	ts := int64(e.Timestamp)
	switch {
	case ts <= 0:
		return now.UTC()
	case ts > 1e12:
		return time.UnixMilli(ts).UTC()
	default:
		return time.Unix(ts, 0).UTC()
	}
}

// FlexInt64 decodes numbers sent either as JSON numbers or numeric strings.
// Anything else decodes to zero.
type FlexInt64 int64

func (f *FlexInt64) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	raw := string(data)
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
	}
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*f = FlexInt64(v)
		return nil
	}
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		*f = FlexInt64(v)
		return nil
	}
	*f = 0
	return nil
}

// FlexString decodes strings and numbers into their textual form. Objects,
// arrays and null decode to the empty string.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		*f = ""
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(strings.TrimSpace(s))
	case '{', '[', 'n':
		*f = ""
	default:
		*f = FlexString(string(data))
	}
	return nil
}

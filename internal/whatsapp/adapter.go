package whatsapp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Shape names the payload layout a webhook body was recognized as.
type Shape string

const (
	ShapeCanonical Shape = "canonical"
	ShapeAlternate Shape = "alternate"
)

type payloadShape struct {
	Key     *MessageKey     `json:"key"`
	Message json.RawMessage `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// alternateMessage is the gateway's flat layout, where the chat id, the
// sender flag and the media reference live inside "message".
type alternateMessage struct {
	ChatID      string          `json:"chatid"`
	FromMe      bool            `json:"fromMe"`
	MessageID   string          `json:"messageid"`
	ID          string          `json:"id"`
	Text        string          `json:"text"`
	SenderName  string          `json:"senderName"`
	Timestamp   FlexInt64       `json:"messageTimestamp"`
	MediaType   string          `json:"mediaType"`
	MessageType string          `json:"messageType"`
	Content     json.RawMessage `json:"content"`
}

type alternateContent struct {
	URL      string `json:"URL"`
	MimeType string `json:"mimetype"`
	FileName string `json:"fileName"`
	Caption  string `json:"caption"`
}

// AdaptPayload decodes an inbound webhook body into the canonical Envelope.
// Bodies already carrying key.remoteJid pass through unchanged; bodies
// carrying message.chatid are remapped. A body wrapped in a top-level
// "data" object is unwrapped once. Anything else yields
// ErrUnrecognizedPayloadShape.
func AdaptPayload(body []byte) (Envelope, Shape, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || !json.Valid(body) {
		return Envelope{}, "", ErrMalformedPayload
	}
	return adapt(body, true)
}

func adapt(body []byte, unwrap bool) (Envelope, Shape, error) {
	var shape payloadShape
	if err := json.Unmarshal(body, &shape); err != nil {
		return Envelope{}, "", fmt.Errorf("%w: %v", ErrUnrecognizedPayloadShape, err)
	}

	if shape.Key != nil && strings.TrimSpace(shape.Key.RemoteJID) != "" {
		var env Envelope
		if err := json.Unmarshal(body, &env); err != nil {
			return Envelope{}, "", fmt.Errorf("%w: %v", ErrUnrecognizedPayloadShape, err)
		}
		return env, ShapeCanonical, nil
	}

	if isObject(shape.Message) {
		var alt alternateMessage
		if err := json.Unmarshal(shape.Message, &alt); err == nil && strings.TrimSpace(alt.ChatID) != "" {
			return remapAlternate(alt), ShapeAlternate, nil
		}
	}

	if unwrap && isObject(shape.Data) {
		return adapt(shape.Data, false)
	}

	return Envelope{}, "", ErrUnrecognizedPayloadShape
}

func remapAlternate(alt alternateMessage) Envelope {
	id := strings.TrimSpace(alt.MessageID)
	if id == "" {
		id = strings.TrimSpace(alt.ID)
	}
	env := Envelope{
		Key: MessageKey{
			RemoteJID: strings.TrimSpace(alt.ChatID),
			FromMe:    alt.FromMe,
			ID:        id,
		},
		PushName:  strings.TrimSpace(alt.SenderName),
		Timestamp: alt.Timestamp,
		Message:   &MessageContent{},
	}

	content, contentText := decodeAlternateContent(alt.Content)
	text := alt.Text
	if text == "" {
		text = contentText
	}
	if content.Caption == "" && text != "" {
		content.Caption = text
	}

	media := &MediaMessage{
		URL:      strings.TrimSpace(content.URL),
		MimeType: content.MimeType,
		FileName: content.FileName,
		Caption:  content.Caption,
	}
	if media.URL != "" {
		switch declaredMediaType(alt) {
		case "ptt":
			media.PTT = true
			env.Message.Audio = media
			return env
		case "audio":
			env.Message.Audio = media
			return env
		case "image":
			env.Message.Image = media
			return env
		case "video":
			env.Message.Video = media
			return env
		case "document":
			env.Message.Document = media
			return env
		case "sticker":
			media.Caption = ""
			env.Message.Sticker = media
			return env
		}
	}

	env.Message.Conversation = text
	return env
}

// declaredMediaType prefers the explicit media type and falls back to the
// message type with its "Message" suffix removed ("AudioMessage" -> "audio").
func declaredMediaType(alt alternateMessage) string {
	t := strings.ToLower(strings.TrimSpace(alt.MediaType))
	if t == "" {
		t = strings.ToLower(strings.TrimSpace(alt.MessageType))
		t = strings.TrimSuffix(t, "message")
	}
	switch t {
	case "myaudio", "voice":
		return "audio"
	}
	return t
}

func decodeAlternateContent(raw json.RawMessage) (alternateContent, string) {
	var content alternateContent
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return content, ""
	}
	switch raw[0] {
	case '{':
		_ = json.Unmarshal(raw, &content)
		return content, ""
	case '"':
		var s string
		_ = json.Unmarshal(raw, &s)
		return content, s
	}
	return content, ""
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

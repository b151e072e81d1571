package whatsapp

import (
	"bytes"
	"encoding/json"
	"strings"
)

// MessageStatus is the delivery state stored on a message row.
type MessageStatus string

const (
	StatusEnqueued  MessageStatus = "enqueued"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusError     MessageStatus = "error"
)

var statusCodes = map[string]MessageStatus{
	"1":            StatusSent,
	"server_ack":   StatusSent,
	"2":            StatusDelivered,
	"delivery_ack": StatusDelivered,
	"3":            StatusRead,
	"read":         StatusRead,
	"4":            StatusRead,
	"played":       StatusRead,
	"5":            StatusError,
	"error":        StatusError,
}

// MapStatusCode translates a vendor acknowledgement code. ok is false for
// codes outside the table; callers must leave the row untouched.
func MapStatusCode(code string) (status MessageStatus, ok bool) {
	status, ok = statusCodes[strings.ToLower(strings.TrimSpace(code))]
	return status, ok
}

// sourceRank orders stored statuses; error is terminal.
func (s MessageStatus) sourceRank() int {
	switch s {
	case StatusEnqueued:
		return 0
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	case StatusError:
		return 4
	}
	return 0
}

// targetRank places error next to delivered so that it only overrides
// rows that were never confirmed by the handset.
func (s MessageStatus) targetRank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered, StatusError:
		return 2
	case StatusRead:
		return 3
	}
	return 0
}

// CanAdvance reports whether a row in status from may move to status to.
// Late or repeated acknowledgements never move a row backwards.
func CanAdvance(from, to MessageStatus) bool {
	return to.targetRank() > from.sourceRank()
}

// StatusRank exposes the ordering used by CanAdvance so stores can express
// it in SQL.
func StatusRank(s MessageStatus, asTarget bool) int {
	if asTarget {
		return s.targetRank()
	}
	return s.sourceRank()
}

// StatusEvent is one acknowledgement extracted from a status webhook.
type StatusEvent struct {
	MessageID string
	Code      string
}

type rawStatusEvent struct {
	Key *struct {
		ID string `json:"id"`
	} `json:"key"`
	ID        string     `json:"id"`
	MessageID string     `json:"messageId"`
	Status    FlexString `json:"status"`
	Update    *struct {
		Status FlexString `json:"status"`
	} `json:"update"`
	Ack FlexString `json:"ack"`
}

// ParseStatusEvents accepts either an array of events or a single event,
// optionally wrapped once in a top-level "data" member.
// Elements that are not objects produce an empty event so the caller can
// count them as ignored.
func ParseStatusEvents(body []byte) ([]StatusEvent, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || !json.Valid(body) {
		return nil, ErrMalformedPayload
	}
	body = unwrapStatusData(body)
	if body[0] != '[' {
		return []StatusEvent{parseStatusEvent(body)}, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, ErrMalformedPayload
	}
	events := make([]StatusEvent, 0, len(items))
	for _, item := range items {
		events = append(events, parseStatusEvent(item))
	}
	return events, nil
}

func parseStatusEvent(raw json.RawMessage) StatusEvent {
	var ev rawStatusEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return StatusEvent{}
	}
	var id string
	if ev.Key != nil {
		id = ev.Key.ID
	}
	id = firstNonEmpty(id, ev.ID, ev.MessageID)

	code := string(ev.Status)
	if code == "" && ev.Update != nil {
		code = string(ev.Update.Status)
	}
	if code == "" {
		code = string(ev.Ack)
	}
	return StatusEvent{MessageID: strings.TrimSpace(id), Code: strings.TrimSpace(code)}
}

// LooksLikeStatus reports whether a webhook body is a delivery
// acknowledgement batch rather than a message: an array, an object with an
// "update" member, or an object with status/ack and no "message". The same
// single "data" unwrap as AdaptPayload applies.
func LooksLikeStatus(body []byte) bool {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return false
	}
	body = unwrapStatusData(body)
	if body[0] == '[' {
		return true
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return false
	}
	if _, ok := fields["update"]; ok {
		return true
	}
	if _, ok := fields["message"]; ok {
		return false
	}
	_, hasStatus := fields["status"]
	_, hasAck := fields["ack"]
	return hasStatus || hasAck
}

// unwrapStatusData returns the "data" member of an event envelope such as
// {"event":"messages.update","data":{...}}. Bodies that carry event fields
// at the top level are returned unchanged.
func unwrapStatusData(body []byte) []byte {
	if len(body) == 0 || body[0] != '{' {
		return body
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return body
	}
	for _, field := range []string{"key", "message", "update", "status", "ack"} {
		if _, ok := top[field]; ok {
			return body
		}
	}
	data := bytes.TrimSpace(top["data"])
	if len(data) == 0 || (data[0] != '{' && data[0] != '[') {
		return body
	}
	return data
}

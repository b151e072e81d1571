package scheduling

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a scheduled message.
type Status string

const (
	StatusPending Status = "pending"
	StatusSending Status = "sending"
	StatusSent    Status = "sent"
	StatusError   Status = "error"
)

// transitions lists every allowed move. sent and error are terminal.
var transitions = map[Status][]Status{
	StatusPending: {StatusSending},
	StatusSending: {StatusSent, StatusError},
}

// ParseStatus validates a status name.
func ParseStatus(value string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(value)))
	switch s {
	case StatusPending, StatusSending, StatusSent, StatusError:
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, value)
}

// CanTransition reports whether the table allows moving from s to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Transition returns next when the move is allowed and ErrInvalidTransition
// otherwise.
func (s Status) Transition(next Status) (Status, error) {
	if !s.CanTransition(next) {
		return s, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, next)
	}
	return next, nil
}

// ScheduledMessage is a text to send into a conversation at a future time.
type ScheduledMessage struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	LeadID         string     `json:"lead_id"`
	Body           string     `json:"body"`
	DueAt          time.Time  `json:"due_at"`
	Status         Status     `json:"status"`
	ErrorDetail    string     `json:"error_detail,omitempty"`
	MessageID      string     `json:"message_id,omitempty"`
	ClaimedAt      *time.Time `json:"claimed_at,omitempty"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// CreateRequest schedules a new message.
type CreateRequest struct {
	ConversationID string    `json:"conversation_id"`
	Body           string    `json:"body"`
	DueAt          time.Time `json:"due_at"`
}

// Validate validates the create request
func (r *CreateRequest) Validate() error {
	r.ConversationID = strings.TrimSpace(r.ConversationID)
	r.Body = strings.TrimSpace(r.Body)
	if r.ConversationID == "" {
		return ErrMissingConversation
	}
	if r.Body == "" {
		return ErrEmptyBody
	}
	if r.DueAt.IsZero() {
		return ErrMissingDueAt
	}
	return nil
}

// ListFilter narrows a listing of scheduled messages.
type ListFilter struct {
	Status         Status
	ConversationID string
	Limit          int
	Offset         int
}

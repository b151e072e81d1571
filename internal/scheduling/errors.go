package scheduling

import "errors"

var (
	ErrInvalidTransition = errors.New("scheduling: invalid status transition")
	ErrInvalidStatus     = errors.New("scheduling: invalid status")

	ErrMissingConversation = errors.New("scheduling: conversation_id is required")
	ErrEmptyBody           = errors.New("scheduling: body is required")
	ErrMissingDueAt        = errors.New("scheduling: due_at is required")

	// ErrUnknownConversation is returned when scheduling into a conversation
	// that does not exist.
	ErrUnknownConversation = errors.New("scheduling: conversation not found")
)

package assistant

import "errors"

var (
	ErrEmptyReply     = errors.New("assistant: model returned an empty reply")
	ErrNoPendingTurn  = errors.New("assistant: conversation has no unanswered inbound message")
	ErrMissingHistory = errors.New("assistant: conversation history is empty")
)

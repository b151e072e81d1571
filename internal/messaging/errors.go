package messaging

import "errors"

var (
	// ErrIdentityResolution is returned when the lead, conversation or
	// message row for an inbound event could not be written.
	ErrIdentityResolution = errors.New("messaging: identity resolution failed")

	// ErrStatusUpdateNotFound is returned when no message carries the
	// acknowledged vendor id.
	ErrStatusUpdateNotFound = errors.New("messaging: status update target not found")

	// ErrVendorSend is returned when the gateway did not accept an outbound send.
	ErrVendorSend = errors.New("messaging: vendor send failed")

	// ErrConversationNotFound is returned for unknown conversation ids.
	ErrConversationNotFound = errors.New("messaging: conversation not found")

	// ErrEmptyMessage is returned when an outbound send has no text.
	ErrEmptyMessage = errors.New("messaging: message text is required")
)

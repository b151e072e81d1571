package whatsapp

import "errors"

var (
	// ErrMalformedPayload is returned when the body is not valid JSON.
	ErrMalformedPayload = errors.New("whatsapp: malformed payload")

	// ErrUnrecognizedPayloadShape is returned when a body matches neither the
	// canonical nor the alternate vendor shape.
	ErrUnrecognizedPayloadShape = errors.New("whatsapp: unrecognized payload shape")

	// ErrMissingSender is returned when the remote JID carries no phone digits.
	ErrMissingSender = errors.New("whatsapp: missing sender")
)

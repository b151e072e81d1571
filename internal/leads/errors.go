package leads

import "errors"

var (
	// ErrInvalidPhone is returned when a phone number normalizes to nothing
	ErrInvalidPhone = errors.New("leads: phone is required")

	// ErrLeadNotFound is returned when a lead is not found
	ErrLeadNotFound = errors.New("leads: lead not found")

	// ErrEmptyUpdate is returned when an update carries no fields
	ErrEmptyUpdate = errors.New("leads: nothing to update")
)

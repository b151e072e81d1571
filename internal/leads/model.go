package leads

import (
	"strings"
	"time"
)

// Lead is a prospective student or guardian, keyed by normalized phone.
type Lead struct {
	ID          string    `json:"id"`
	Phone       string    `json:"phone"`
	Name        string    `json:"name"`
	WhatsAppJID string    `json:"whatsapp_jid,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ListLeadsFilter contains pagination and search for listing leads
type ListLeadsFilter struct {
	Search string
	Limit  int
	Offset int
}

// UpdateLeadRequest carries operator edits. Nil fields are left unchanged.
type UpdateLeadRequest struct {
	Name  *string `json:"name,omitempty"`
	Notes *string `json:"notes,omitempty"`
}

// Validate validates the update request
func (r *UpdateLeadRequest) Validate() error {
	if r.Name == nil && r.Notes == nil {
		return ErrEmptyUpdate
	}
	if r.Name != nil {
		trimmed := strings.TrimSpace(*r.Name)
		r.Name = &trimmed
	}
	return nil
}

package scheduling

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a Store for tests and database-less local runs. leadOf
// resolves a conversation to its lead; an empty result rejects the create.
type MemoryStore struct {
	mu     sync.Mutex
	rows   map[string]*ScheduledMessage
	leadOf func(conversationID string) string
}

func NewMemoryStore(leadOf func(conversationID string) string) *MemoryStore {
	if leadOf == nil {
		leadOf = func(string) string { return "" }
	}
	return &MemoryStore{rows: make(map[string]*ScheduledMessage), leadOf: leadOf}
}

func (s *MemoryStore) Create(ctx context.Context, req CreateRequest) (*ScheduledMessage, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	leadID := s.leadOf(req.ConversationID)
	if leadID == "" {
		return nil, ErrUnknownConversation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	msg := &ScheduledMessage{
		ID:             uuid.New().String(),
		ConversationID: req.ConversationID,
		LeadID:         leadID,
		Body:           req.Body,
		DueAt:          req.DueAt.UTC(),
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.rows[msg.ID] = msg
	copied := *msg
	return &copied, nil
}

func (s *MemoryStore) List(ctx context.Context, filter ListFilter) ([]*ScheduledMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*ScheduledMessage
	for _, row := range s.rows {
		if filter.Status != "" && row.Status != filter.Status {
			continue
		}
		if filter.ConversationID != "" && row.ConversationID != filter.ConversationID {
			continue
		}
		copied := *row
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt.After(out[j].DueAt) })
	if filter.Offset >= len(out) {
		return nil, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) ListDue(ctx context.Context, now time.Time, limit int) ([]*ScheduledMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*ScheduledMessage
	for _, row := range s.rows {
		if row.Status == StatusPending && !row.DueAt.After(now) {
			copied := *row
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Claim(ctx context.Context, id string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[id]
	if !ok || row.Status != StatusPending {
		return false, nil
	}
	row.Status = StatusSending
	claimedAt := now.UTC()
	row.ClaimedAt = &claimedAt
	return true, nil
}

func (s *MemoryStore) MarkSent(ctx context.Context, id, messageID string, sentAt time.Time) error {
	return s.finish(id, StatusSent, func(row *ScheduledMessage) {
		at := sentAt.UTC()
		row.SentAt = &at
		row.MessageID = messageID
		row.ErrorDetail = ""
	})
}

func (s *MemoryStore) MarkError(ctx context.Context, id, detail string) error {
	return s.finish(id, StatusError, func(row *ScheduledMessage) {
		row.ErrorDetail = detail
	})
}

func (s *MemoryStore) finish(id string, next Status, apply func(*ScheduledMessage)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[id]
	if !ok {
		return fmt.Errorf("%w: %s not found", ErrInvalidTransition, id)
	}
	status, err := row.Status.Transition(next)
	if err != nil {
		return err
	}
	row.Status = status
	row.UpdatedAt = time.Now().UTC()
	apply(row)
	return nil
}

func (s *MemoryStore) ReclaimStale(ctx context.Context, claimedBefore time.Time, detail string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, row := range s.rows {
		if row.Status == StatusSending && row.ClaimedAt != nil && row.ClaimedAt.Before(claimedBefore) {
			row.Status = StatusError
			row.ErrorDetail = detail
			n++
		}
	}
	return n, nil
}

// Get returns a copy of one row.
func (s *MemoryStore) Get(id string) (ScheduledMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[id]
	if !ok {
		return ScheduledMessage{}, false
	}
	return *row, true
}

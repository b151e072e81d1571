package messaging

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/school-whatsapp-hub/internal/whatsapp"
)

// MemoryStore is a ConversationStore for tests and database-less local runs.
// It applies the same uniqueness rules as the Postgres schema.
type MemoryStore struct {
	mu            sync.Mutex
	conversations map[string]*Conversation
	openByLead    map[string]string
	messages      map[string]*Message
	byVendorID    map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*Conversation),
		openByLead:    make(map[string]string),
		messages:      make(map[string]*Message),
		byVendorID:    make(map[string]string),
	}
}

func (s *MemoryStore) EnsureConversation(ctx context.Context, leadID, jid string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if id, ok := s.openByLead[leadID]; ok {
		conv := s.conversations[id]
		if jid != "" {
			conv.WhatsAppJID = jid
		}
		conv.UpdatedAt = now
		copied := *conv
		return &copied, nil
	}
	conv := &Conversation{
		ID:          uuid.New().String(),
		LeadID:      leadID,
		WhatsAppJID: jid,
		Status:      conversationOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.conversations[conv.ID] = conv
	s.openByLead[leadID] = conv.ID
	copied := *conv
	return &copied, nil
}

func (s *MemoryStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrConversationNotFound
	}
	copied := *conv
	return &copied, nil
}

func (s *MemoryStore) InsertMessage(ctx context.Context, msg *Message) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.VendorMessageID != "" {
		if id, ok := s.byVendorID[msg.VendorMessageID]; ok {
			existing := s.messages[id]
			msg.ID = existing.ID
			msg.Status = existing.Status
			msg.CreatedAt = existing.CreatedAt
			return false, nil
		}
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if msg.SentAt.IsZero() {
		msg.SentAt = now
	}
	msg.CreatedAt = now

	stored := *msg
	s.messages[stored.ID] = &stored
	if stored.VendorMessageID != "" {
		s.byVendorID[stored.VendorMessageID] = stored.ID
	}
	if conv, ok := s.conversations[stored.ConversationID]; ok {
		if conv.LastMessageAt == nil || stored.SentAt.After(*conv.LastMessageAt) {
			at := stored.SentAt
			conv.LastMessageAt = &at
		}
	}
	return true, nil
}

func (s *MemoryStore) ApplyStatus(ctx context.Context, vendorMessageID string, status whatsapp.MessageStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byVendorID[vendorMessageID]
	if !ok {
		return false, ErrStatusUpdateNotFound
	}
	msg := s.messages[id]
	if !whatsapp.CanAdvance(msg.Status, status) {
		return false, nil
	}
	msg.Status = status
	if status == whatsapp.StatusError {
		msg.ErrorDetail = "delivery failed"
	}
	return true, nil
}

func (s *MemoryStore) MarkOutboundSent(ctx context.Context, messageID, vendorMessageID string, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[messageID]
	if !ok {
		return nil
	}
	msg.Status = whatsapp.StatusSent
	msg.SentAt = sentAt
	if vendorMessageID == "" {
		return nil
	}
	if echoID, taken := s.byVendorID[vendorMessageID]; taken && echoID != messageID {
		echo := s.messages[echoID]
		if echo.Direction != DirectionOutbound {
			return nil
		}
		if whatsapp.CanAdvance(msg.Status, echo.Status) {
			msg.Status = echo.Status
		}
		delete(s.messages, echoID)
	}
	msg.VendorMessageID = vendorMessageID
	s.byVendorID[vendorMessageID] = messageID
	return nil
}

func (s *MemoryStore) MarkOutboundFailed(ctx context.Context, messageID, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg, ok := s.messages[messageID]; ok {
		msg.Status = whatsapp.StatusError
		msg.ErrorDetail = detail
	}
	return nil
}

func (s *MemoryStore) SetArchivedMedia(ctx context.Context, messageID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg, ok := s.messages[messageID]; ok {
		msg.ArchivedMediaKey = key
	}
	return nil
}

func (s *MemoryStore) RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Message
	for _, msg := range s.messages {
		if msg.ConversationID == conversationID {
			out = append(out, *msg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SentAt.Before(out[j].SentAt) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// Messages returns every stored message, oldest first.
func (s *MemoryStore) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Message, 0, len(s.messages))
	for _, msg := range s.messages {
		out = append(out, *msg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Conversations returns every stored conversation.
func (s *MemoryStore) Conversations() []Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		out = append(out, *conv)
	}
	return out
}

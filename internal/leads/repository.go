package leads

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for lead storage
type Repository interface {
	// GetOrCreateByPhone returns the lead for phone, creating it when absent.
	// A non-empty name only fills a lead whose name is still empty.
	GetOrCreateByPhone(ctx context.Context, phone, name, jid string) (*Lead, error)
	GetByID(ctx context.Context, id string) (*Lead, error)
	List(ctx context.Context, filter ListLeadsFilter) ([]*Lead, error)
	Update(ctx context.Context, id string, req *UpdateLeadRequest) (*Lead, error)
}

// InMemoryRepository is a Repository for tests and local runs
type InMemoryRepository struct {
	mu      sync.RWMutex
	leads   map[string]*Lead
	byPhone map[string]string
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		leads:   make(map[string]*Lead),
		byPhone: make(map[string]string),
	}
}

func (r *InMemoryRepository) GetOrCreateByPhone(ctx context.Context, phone, name, jid string) (*Lead, error) {
	if strings.TrimSpace(phone) == "" {
		return nil, ErrInvalidPhone
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	if id, ok := r.byPhone[phone]; ok {
		lead := r.leads[id]
		if lead.Name == "" && name != "" {
			lead.Name = name
		}
		if jid != "" {
			lead.WhatsAppJID = jid
		}
		lead.UpdatedAt = now
		copied := *lead
		return &copied, nil
	}

	lead := &Lead{
		ID:          uuid.New().String(),
		Phone:       phone,
		Name:        name,
		WhatsAppJID: jid,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.leads[lead.ID] = lead
	r.byPhone[phone] = lead.ID
	copied := *lead
	return &copied, nil
}

// GetByID retrieves a lead by ID
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lead, ok := r.leads[id]
	if !ok {
		return nil, ErrLeadNotFound
	}
	copied := *lead
	return &copied, nil
}

func (r *InMemoryRepository) List(ctx context.Context, filter ListLeadsFilter) ([]*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	out := make([]*Lead, 0, len(r.leads))
	for _, lead := range r.leads {
		if search != "" &&
			!strings.Contains(strings.ToLower(lead.Name), search) &&
			!strings.Contains(lead.Phone, search) {
			continue
		}
		copied := *lead
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })

	if filter.Offset >= len(out) {
		return []*Lead{}, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *InMemoryRepository) Update(ctx context.Context, id string, req *UpdateLeadRequest) (*Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	lead, ok := r.leads[id]
	if !ok {
		return nil, ErrLeadNotFound
	}
	if req.Name != nil {
		lead.Name = *req.Name
	}
	if req.Notes != nil {
		lead.Notes = *req.Notes
	}
	lead.UpdatedAt = time.Now().UTC()
	copied := *lead
	return &copied, nil
}

package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultProcessedTTL = 24 * time.Hour

// ProcessedStore records webhook events that were already handled so that
// vendor redeliveries do not trigger side effects twice.
type ProcessedStore struct {
	client redis.Cmdable
	ttl    time.Duration
	prefix string
}

func NewProcessedStore(client redis.Cmdable, ttl time.Duration) *ProcessedStore {
	if client == nil {
		panic("events: redis client required")
	}
	if ttl <= 0 {
		ttl = defaultProcessedTTL
	}
	return &ProcessedStore{client: client, ttl: ttl, prefix: "processed"}
}

func (s *ProcessedStore) key(provider, eventID string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, strings.ToLower(provider), eventID)
}

// AlreadyProcessed checks if we've seen this provider event id.
func (s *ProcessedStore) AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(provider, eventID)).Result()
	if err != nil {
		return false, fmt.Errorf("events: check processed: %w", err)
	}
	return n > 0, nil
}

// MarkProcessed records the event id, returning false if it was already there.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.key(provider, eventID), time.Now().UTC().Unix(), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("events: mark processed: %w", err)
	}
	return ok, nil
}

// Forget drops a mark so a later redelivery is handled again.
func (s *ProcessedStore) Forget(ctx context.Context, provider, eventID string) error {
	if err := s.client.Del(ctx, s.key(provider, eventID)).Err(); err != nil {
		return fmt.Errorf("events: forget processed: %w", err)
	}
	return nil
}

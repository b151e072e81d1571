package events

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestProcessedStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewProcessedStore(client, time.Hour)
	ctx := context.Background()

	processed, err := store.AlreadyProcessed(ctx, "whatsapp", "evt")
	if err != nil || processed {
		t.Fatalf("expected unseen event, got processed=%v err=%v", processed, err)
	}

	ok, err := store.MarkProcessed(ctx, "whatsapp", "evt")
	if err != nil || !ok {
		t.Fatalf("expected first mark to win, got %v %v", ok, err)
	}
	ok, err = store.MarkProcessed(ctx, "WhatsApp", "evt")
	if err != nil || ok {
		t.Fatalf("expected redelivery to be rejected, got %v %v", ok, err)
	}

	processed, err = store.AlreadyProcessed(ctx, "whatsapp", "evt")
	if err != nil || !processed {
		t.Fatalf("expected processed event, got processed=%v err=%v", processed, err)
	}
	if ttl := mr.TTL("processed:whatsapp:evt"); ttl != time.Hour {
		t.Fatalf("expected 1h ttl, got %v", ttl)
	}
}

func TestProcessedStoreExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewProcessedStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute)
	ctx := context.Background()

	if ok, _ := store.MarkProcessed(ctx, "whatsapp", "evt"); !ok {
		t.Fatal("expected first mark")
	}
	mr.FastForward(2 * time.Minute)
	if ok, _ := store.MarkProcessed(ctx, "whatsapp", "evt"); !ok {
		t.Fatal("expected mark after expiry")
	}
}

func TestProcessedStoreForget(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewProcessedStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), 0)
	ctx := context.Background()

	_, _ = store.MarkProcessed(ctx, "whatsapp", "evt")
	if err := store.Forget(ctx, "whatsapp", "evt"); err != nil {
		t.Fatalf("forget: %v", err)
	}
	if ok, _ := store.MarkProcessed(ctx, "whatsapp", "evt"); !ok {
		t.Fatal("expected mark after forget")
	}
}

func TestProcessedStoreRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewProcessedStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), 0)
	mr.Close()

	if _, err := store.MarkProcessed(context.Background(), "whatsapp", "evt"); err == nil {
		t.Fatal("expected error when redis is unavailable")
	}
}

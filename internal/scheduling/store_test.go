package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

var scheduledCols = []string{"id", "conversation_id", "lead_id", "body", "due_at", "status", "error_detail",
	"message_id", "claimed_at", "sent_at", "created_at", "updated_at"}

func TestPostgresStoreCreate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	due := time.Now().Add(time.Hour).UTC()
	now := time.Now().UTC()
	mock.ExpectQuery("INSERT INTO scheduled_messages").
		WithArgs(pgxmock.AnyArg(), "conv-1", "Lembrete da reunião", due).
		WillReturnRows(pgxmock.NewRows(scheduledCols).
			AddRow("s-1", "conv-1", "lead-1", "Lembrete da reunião", due, "pending", "", "", (*time.Time)(nil), (*time.Time)(nil), now, now))

	store := NewPostgresStore(mock)
	msg, err := store.Create(context.Background(), CreateRequest{ConversationID: "conv-1", Body: "Lembrete da reunião", DueAt: due})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if msg.Status != StatusPending || msg.LeadID != "lead-1" {
		t.Fatalf("unexpected row %+v", msg)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresStoreCreateUnknownConversation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery("INSERT INTO scheduled_messages").WillReturnError(pgx.ErrNoRows)

	_, err = NewPostgresStore(mock).Create(context.Background(), CreateRequest{ConversationID: "nope", Body: "oi", DueAt: time.Now()})
	if !errors.Is(err, ErrUnknownConversation) {
		t.Fatalf("expected ErrUnknownConversation, got %v", err)
	}
}

func TestPostgresStoreListDue(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	now := time.Now().UTC()
	mock.ExpectQuery("WHERE status = 'pending' AND due_at <= \\$1").
		WithArgs(now, 20).
		WillReturnRows(pgxmock.NewRows(scheduledCols).
			AddRow("s-1", "conv-1", "lead-1", "a", now.Add(-2*time.Minute), "pending", "", "", (*time.Time)(nil), (*time.Time)(nil), now, now).
			AddRow("s-2", "conv-2", "lead-2", "b", now.Add(-time.Minute), "pending", "", "", (*time.Time)(nil), (*time.Time)(nil), now, now))

	rows, err := NewPostgresStore(mock).ListDue(context.Background(), now, 20)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(rows) != 2 || rows[0].ID != "s-1" {
		t.Fatalf("unexpected rows %+v", rows)
	}
}

func TestPostgresStoreClaim(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{"claimed", 1, true},
		{"lost race", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			if err != nil {
				t.Fatalf("pgxmock: %v", err)
			}
			defer mock.Close()

			now := time.Now().UTC()
			mock.ExpectExec("SET status = 'sending'").
				WithArgs("s-1", now).
				WillReturnResult(pgxmock.NewResult("UPDATE", tt.affected))

			claimed, err := NewPostgresStore(mock).Claim(context.Background(), "s-1", now)
			if err != nil {
				t.Fatalf("claim: %v", err)
			}
			if claimed != tt.want {
				t.Fatalf("expected claimed=%v, got %v", tt.want, claimed)
			}
		})
	}
}

func TestPostgresStoreMarkSentRequiresSending(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	sentAt := time.Now().UTC()
	mock.ExpectExec("SET status = 'sent'").
		WithArgs("s-1", "msg-1", sentAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = NewPostgresStore(mock).MarkSent(context.Background(), "s-1", "msg-1", sentAt)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestPostgresStoreReclaimStale(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	cutoff := time.Now().UTC().Add(-10 * time.Minute)
	mock.ExpectExec("WHERE status = 'sending' AND claimed_at < \\$1").
		WithArgs(cutoff, "claim expired").
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	n, err := NewPostgresStore(mock).ReclaimStale(context.Background(), cutoff, "claim expired")
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 reclaimed, got %d", n)
	}
}

func TestMemoryStoreClaimIsExclusive(t *testing.T) {
	store := NewMemoryStore(func(string) string { return "lead-1" })
	ctx := context.Background()
	msg, err := store.Create(ctx, CreateRequest{ConversationID: "conv-1", Body: "oi", DueAt: time.Now().Add(-time.Minute)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	first, _ := store.Claim(ctx, msg.ID, time.Now())
	second, _ := store.Claim(ctx, msg.ID, time.Now())
	if !first || second {
		t.Fatalf("expected exactly one claim, got first=%v second=%v", first, second)
	}
	if err := store.MarkSent(ctx, msg.ID, "m-1", time.Now()); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	if err := store.MarkError(ctx, msg.ID, "late"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected terminal sent row, got %v", err)
	}
}

func TestMemoryStoreListDueOrdersByDueAt(t *testing.T) {
	store := NewMemoryStore(func(string) string { return "lead-1" })
	ctx := context.Background()
	now := time.Now()
	for _, offset := range []time.Duration{-time.Minute, -3 * time.Minute, time.Hour, -2 * time.Minute} {
		if _, err := store.Create(ctx, CreateRequest{ConversationID: "conv-1", Body: "oi", DueAt: now.Add(offset)}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	due, err := store.ListDue(ctx, now, 2)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("expected batch of 2, got %d", len(due))
	}
	if !due[0].DueAt.Before(due[1].DueAt) || !due[0].DueAt.Equal(now.Add(-3*time.Minute).UTC()) {
		t.Fatalf("expected oldest first, got %v then %v", due[0].DueAt, due[1].DueAt)
	}
}

func TestMemoryStoreCreateUnknownConversation(t *testing.T) {
	store := NewMemoryStore(nil)
	_, err := store.Create(context.Background(), CreateRequest{ConversationID: "x", Body: "oi", DueAt: time.Now()})
	if !errors.Is(err, ErrUnknownConversation) {
		t.Fatalf("expected ErrUnknownConversation, got %v", err)
	}
}

package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Store persists scheduled messages.
type Store interface {
	Create(ctx context.Context, req CreateRequest) (*ScheduledMessage, error)
	List(ctx context.Context, filter ListFilter) ([]*ScheduledMessage, error)
	// ListDue returns pending rows due at or before now, oldest due first.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*ScheduledMessage, error)
	// Claim moves a pending row to sending. claimed is false when another
	// dispatcher got there first.
	Claim(ctx context.Context, id string, now time.Time) (claimed bool, err error)
	MarkSent(ctx context.Context, id, messageID string, sentAt time.Time) error
	MarkError(ctx context.Context, id, detail string) error
	// ReclaimStale fails rows stuck in sending since before claimedBefore.
	ReclaimStale(ctx context.Context, claimedBefore time.Time, detail string) (int64, error)
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore is the Store used in production.
type PostgresStore struct {
	db querier
}

func NewPostgresStore(db querier) *PostgresStore {
	if db == nil {
		panic("scheduling: pgx pool required")
	}
	return &PostgresStore{db: db}
}

const scheduledColumns = `id, conversation_id, lead_id, body, due_at, status, error_detail,
	COALESCE(message_id, ''), claimed_at, sent_at, created_at, updated_at`

// Create copies the lead from the conversation so the row stays valid even
// if the request names only the conversation.
func (s *PostgresStore) Create(ctx context.Context, req CreateRequest) (*ScheduledMessage, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	query := `
		INSERT INTO scheduled_messages (id, conversation_id, lead_id, body, due_at)
		SELECT $1, c.id, c.lead_id, $3, $4
		FROM conversations c
		WHERE c.id = $2
		RETURNING ` + scheduledColumns
	msg, err := scanScheduled(s.db.QueryRow(ctx, query, uuid.New().String(), req.ConversationID, req.Body, req.DueAt.UTC()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUnknownConversation
		}
		return nil, fmt.Errorf("scheduling: insert failed: %w", err)
	}
	return msg, nil
}

func (s *PostgresStore) List(ctx context.Context, filter ListFilter) ([]*ScheduledMessage, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	query := `
		SELECT ` + scheduledColumns + `
		FROM scheduled_messages
		WHERE ($1 = '' OR status = $1)
			AND ($2 = '' OR conversation_id::text = $2)
		ORDER BY due_at DESC
		LIMIT $3 OFFSET $4`
	return s.queryList(ctx, query, string(filter.Status), filter.ConversationID, filter.Limit, filter.Offset)
}

func (s *PostgresStore) ListDue(ctx context.Context, now time.Time, limit int) ([]*ScheduledMessage, error) {
	query := `
		SELECT ` + scheduledColumns + `
		FROM scheduled_messages
		WHERE status = 'pending' AND due_at <= $1
		ORDER BY due_at ASC
		LIMIT $2`
	return s.queryList(ctx, query, now.UTC(), limit)
}

func (s *PostgresStore) Claim(ctx context.Context, id string, now time.Time) (bool, error) {
	query := `
		UPDATE scheduled_messages
		SET status = 'sending', claimed_at = $2, updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`
	tag, err := s.db.Exec(ctx, query, id, now.UTC())
	if err != nil {
		return false, fmt.Errorf("scheduling: claim failed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) MarkSent(ctx context.Context, id, messageID string, sentAt time.Time) error {
	query := `
		UPDATE scheduled_messages
		SET status = 'sent', message_id = NULLIF($2, '')::uuid, sent_at = $3, error_detail = '', updated_at = now()
		WHERE id = $1 AND status = 'sending'
	`
	return s.finish(ctx, "mark sent", query, id, messageID, sentAt.UTC())
}

func (s *PostgresStore) MarkError(ctx context.Context, id, detail string) error {
	query := `
		UPDATE scheduled_messages
		SET status = 'error', error_detail = $2, updated_at = now()
		WHERE id = $1 AND status = 'sending'
	`
	return s.finish(ctx, "mark error", query, id, detail)
}

func (s *PostgresStore) finish(ctx context.Context, op, query string, args ...any) error {
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("scheduling: %s failed: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s on a row that is not sending", ErrInvalidTransition, op)
	}
	return nil
}

func (s *PostgresStore) ReclaimStale(ctx context.Context, claimedBefore time.Time, detail string) (int64, error) {
	query := `
		UPDATE scheduled_messages
		SET status = 'error', error_detail = $2, updated_at = now()
		WHERE status = 'sending' AND claimed_at < $1
	`
	tag, err := s.db.Exec(ctx, query, claimedBefore.UTC(), detail)
	if err != nil {
		return 0, fmt.Errorf("scheduling: reclaim stale failed: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) queryList(ctx context.Context, query string, args ...any) ([]*ScheduledMessage, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("scheduling: list failed: %w", err)
	}
	defer rows.Close()

	var out []*ScheduledMessage
	for rows.Next() {
		msg, err := scanScheduled(rows)
		if err != nil {
			return nil, fmt.Errorf("scheduling: scan failed: %w", err)
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scheduling: list failed: %w", err)
	}
	return out, nil
}

func scanScheduled(row pgx.Row) (*ScheduledMessage, error) {
	var (
		msg    ScheduledMessage
		status string
	)
	if err := row.Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.LeadID,
		&msg.Body,
		&msg.DueAt,
		&status,
		&msg.ErrorDetail,
		&msg.MessageID,
		&msg.ClaimedAt,
		&msg.SentAt,
		&msg.CreatedAt,
		&msg.UpdatedAt,
	); err != nil {
		return nil, err
	}
	msg.Status = Status(status)
	return &msg, nil
}

package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wolfman30/school-whatsapp-hub/internal/whatsapp"
)

// ConversationStore persists conversations and their messages.
type ConversationStore interface {
	EnsureConversation(ctx context.Context, leadID, jid string) (*Conversation, error)
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	// InsertMessage writes msg and fills its ID. A message whose vendor id is
	// already stored is not written again; inserted is false and msg carries
	// the existing row's id.
	InsertMessage(ctx context.Context, msg *Message) (inserted bool, err error)
	// ApplyStatus moves the message with vendorMessageID forward to status.
	// It returns ErrStatusUpdateNotFound when no row matches and
	// changed=false when the row is already at or past status.
	ApplyStatus(ctx context.Context, vendorMessageID string, status whatsapp.MessageStatus) (changed bool, err error)
	MarkOutboundSent(ctx context.Context, messageID, vendorMessageID string, sentAt time.Time) error
	MarkOutboundFailed(ctx context.Context, messageID, detail string) error
	SetArchivedMedia(ctx context.Context, messageID, key string) error
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error)
}

type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Querier
}

// Store persists the inbox in Postgres.
type Store struct {
	pool PgxPool
}

func NewStore(pool PgxPool) *Store {
	if pool == nil {
		return nil
	}
	return &Store{pool: pool}
}

const conversationColumns = `id, lead_id, whatsapp_jid, status, last_message_at, created_at, updated_at`

const messageColumns = `id, conversation_id, lead_id, direction, kind, body, caption, media_url, mime_type,
	file_name, archived_media_key, sender, status, COALESCE(vendor_message_id, ''), error_detail,
	transcription, sent_at, created_at`

// EnsureConversation returns the open conversation for the lead, creating it
// when absent. The partial unique index on open conversations makes this
// safe under concurrent deliveries.
func (s *Store) EnsureConversation(ctx context.Context, leadID, jid string) (*Conversation, error) {
	query := `
		INSERT INTO conversations (id, lead_id, whatsapp_jid)
		VALUES ($1, $2, $3)
		ON CONFLICT (lead_id) WHERE status = 'open'
		DO UPDATE SET
			whatsapp_jid = COALESCE(NULLIF(EXCLUDED.whatsapp_jid, ''), conversations.whatsapp_jid),
			updated_at = now()
		RETURNING ` + conversationColumns
	conv, err := scanConversation(s.pool.QueryRow(ctx, query, uuid.New().String(), leadID, jid))
	if err != nil {
		return nil, fmt.Errorf("messaging: ensure conversation: %w", err)
	}
	return conv, nil
}

func (s *Store) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`
	conv, err := scanConversation(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("messaging: get conversation: %w", err)
	}
	return conv, nil
}

func (s *Store) InsertMessage(ctx context.Context, msg *Message) (bool, error) {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("messaging: begin insert message: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		INSERT INTO messages (
			id, conversation_id, lead_id, direction, kind, body, caption, media_url,
			mime_type, file_name, sender, status, vendor_message_id, error_detail, sent_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NULLIF($13, ''),$14,$15)
		ON CONFLICT (vendor_message_id) WHERE vendor_message_id IS NOT NULL DO NOTHING
		RETURNING created_at
	`
	err = tx.QueryRow(ctx, query,
		msg.ID,
		msg.ConversationID,
		msg.LeadID,
		string(msg.Direction),
		string(msg.Kind),
		msg.Body,
		msg.Caption,
		msg.MediaURL,
		msg.MimeType,
		msg.FileName,
		msg.Sender,
		string(msg.Status),
		msg.VendorMessageID,
		msg.ErrorDetail,
		msg.SentAt,
	).Scan(&msg.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		var existingID, status string
		lookup := `SELECT id, status, created_at FROM messages WHERE vendor_message_id = $1`
		if err := tx.QueryRow(ctx, lookup, msg.VendorMessageID).Scan(&existingID, &status, &msg.CreatedAt); err != nil {
			return false, fmt.Errorf("messaging: load duplicate message: %w", err)
		}
		msg.ID = existingID
		msg.Status = whatsapp.MessageStatus(status)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("messaging: insert message: %w", err)
	}

	touch := `
		UPDATE conversations
		SET last_message_at = GREATEST(COALESCE(last_message_at, $2), $2),
			updated_at = now()
		WHERE id = $1
	`
	if _, err := tx.Exec(ctx, touch, msg.ConversationID, msg.SentAt); err != nil {
		return false, fmt.Errorf("messaging: touch conversation: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("messaging: commit insert message: %w", err)
	}
	return true, nil
}

func (s *Store) ApplyStatus(ctx context.Context, vendorMessageID string, status whatsapp.MessageStatus) (bool, error) {
	query := `
		WITH target AS (
			SELECT id FROM messages WHERE vendor_message_id = $1
		), updated AS (
			UPDATE messages m
			SET status = $2,
				error_detail = CASE WHEN $2 = 'error' THEN 'delivery failed' ELSE m.error_detail END,
				updated_at = now()
			FROM target
			WHERE m.id = target.id AND ` + rankSQL("m.status") + ` < $3
			RETURNING m.id
		)
		SELECT (SELECT count(*) FROM target), (SELECT count(*) FROM updated)
	`
	var found, updated int64
	if err := s.pool.QueryRow(ctx, query, vendorMessageID, string(status), whatsapp.StatusRank(status, true)).Scan(&found, &updated); err != nil {
		return false, fmt.Errorf("messaging: apply status: %w", err)
	}
	if found == 0 {
		return false, ErrStatusUpdateNotFound
	}
	return updated > 0, nil
}

// rankSQL mirrors whatsapp.CanAdvance for a stored status column.
func rankSQL(column string) string {
	var b strings.Builder
	b.WriteString("CASE ")
	b.WriteString(column)
	for _, st := range []whatsapp.MessageStatus{
		whatsapp.StatusEnqueued,
		whatsapp.StatusSent,
		whatsapp.StatusDelivered,
		whatsapp.StatusRead,
		whatsapp.StatusError,
	} {
		fmt.Fprintf(&b, " WHEN '%s' THEN %d", st, whatsapp.StatusRank(st, false))
	}
	b.WriteString(" ELSE 0 END")
	return b.String()
}

// MarkOutboundSent records the vendor id on an outbound row. When the
// gateway's echo of this send was stored first under the same vendor id, the
// echo row is folded into messageID: it is deleted, its status is kept when
// it is further along, and the vendor id moves to the original row.
func (s *Store) MarkOutboundSent(ctx context.Context, messageID, vendorMessageID string, sentAt time.Time) error {
	query := `
		UPDATE messages
		SET status = 'sent', vendor_message_id = NULLIF($2, ''), sent_at = $3, updated_at = now()
		WHERE id = $1
	`
	_, err := s.pool.Exec(ctx, query, messageID, vendorMessageID, sentAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		err = s.foldOutboundEcho(ctx, messageID, vendorMessageID, sentAt)
	}
	if err != nil {
		return fmt.Errorf("messaging: mark outbound sent: %w", err)
	}
	return nil
}

func (s *Store) foldOutboundEcho(ctx context.Context, messageID, vendorMessageID string, sentAt time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin fold echo: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	status := whatsapp.StatusSent
	var echoStatus string
	deleteEcho := `
		DELETE FROM messages
		WHERE vendor_message_id = $2 AND direction = 'outbound' AND id <> $1
		RETURNING status
	`
	err = tx.QueryRow(ctx, deleteEcho, messageID, vendorMessageID).Scan(&echoStatus)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// the vendor id belongs to an inbound row; keep ours without it
		vendorMessageID = ""
	case err != nil:
		return fmt.Errorf("delete echo: %w", err)
	case whatsapp.CanAdvance(status, whatsapp.MessageStatus(echoStatus)):
		status = whatsapp.MessageStatus(echoStatus)
	}

	update := `
		UPDATE messages
		SET status = $4, vendor_message_id = NULLIF($2, ''), sent_at = $3, updated_at = now()
		WHERE id = $1
	`
	if _, err := tx.Exec(ctx, update, messageID, vendorMessageID, sentAt, string(status)); err != nil {
		return fmt.Errorf("assign vendor id: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit fold echo: %w", err)
	}
	return nil
}

func (s *Store) MarkOutboundFailed(ctx context.Context, messageID, detail string) error {
	query := `
		UPDATE messages
		SET status = 'error', error_detail = $2, updated_at = now()
		WHERE id = $1
	`
	if _, err := s.pool.Exec(ctx, query, messageID, detail); err != nil {
		return fmt.Errorf("messaging: mark outbound failed: %w", err)
	}
	return nil
}

func (s *Store) SetArchivedMedia(ctx context.Context, messageID, key string) error {
	query := `UPDATE messages SET archived_media_key = $2, updated_at = now() WHERE id = $1`
	if _, err := s.pool.Exec(ctx, query, messageID, key); err != nil {
		return fmt.Errorf("messaging: set archived media: %w", err)
	}
	return nil
}

// RecentMessages returns up to limit messages in chronological order.
func (s *Store) RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = $1
		ORDER BY sent_at DESC
		LIMIT $2`
	rows, err := s.pool.Query(ctx, query, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("messaging: recent messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("messaging: scan message: %w", err)
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("messaging: recent messages: %w", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func scanConversation(row pgx.Row) (*Conversation, error) {
	var conv Conversation
	if err := row.Scan(
		&conv.ID,
		&conv.LeadID,
		&conv.WhatsAppJID,
		&conv.Status,
		&conv.LastMessageAt,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &conv, nil
}

func scanMessage(row pgx.Row) (Message, error) {
	var (
		msg                     Message
		direction, kind, status string
	)
	err := row.Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.LeadID,
		&direction,
		&kind,
		&msg.Body,
		&msg.Caption,
		&msg.MediaURL,
		&msg.MimeType,
		&msg.FileName,
		&msg.ArchivedMediaKey,
		&msg.Sender,
		&status,
		&msg.VendorMessageID,
		&msg.ErrorDetail,
		&msg.Transcription,
		&msg.SentAt,
		&msg.CreatedAt,
	)
	msg.Direction = Direction(direction)
	msg.Kind = whatsapp.Kind(kind)
	msg.Status = whatsapp.MessageStatus(status)
	return msg, err
}

package leads

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores leads in the relational database.
type PostgresRepository struct {
	db querier
}

// NewPostgresRepository initializes a repo backed by a pgx pool.
func NewPostgresRepository(db querier) *PostgresRepository {
	if db == nil {
		panic("leads: pgx pool required")
	}
	return &PostgresRepository{db: db}
}

const leadColumns = `id, phone, name, whatsapp_jid, notes, created_at, updated_at`

// GetOrCreateByPhone upserts on the unique phone so concurrent first
// contacts from the same number converge on one row.
func (r *PostgresRepository) GetOrCreateByPhone(ctx context.Context, phone, name, jid string) (*Lead, error) {
	if strings.TrimSpace(phone) == "" {
		return nil, ErrInvalidPhone
	}
	query := `
		INSERT INTO leads (id, phone, name, whatsapp_jid)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (phone) DO UPDATE SET
			name = CASE WHEN leads.name = '' THEN EXCLUDED.name ELSE leads.name END,
			whatsapp_jid = COALESCE(NULLIF(EXCLUDED.whatsapp_jid, ''), leads.whatsapp_jid),
			updated_at = now()
		RETURNING ` + leadColumns
	lead, err := scanLead(r.db.QueryRow(ctx, query, uuid.New(), phone, strings.TrimSpace(name), jid))
	if err != nil {
		return nil, fmt.Errorf("leads: upsert failed: %w", err)
	}
	return lead, nil
}

// GetByID fetches a lead.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE id = $1`
	lead, err := scanLead(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: select failed: %w", err)
	}
	return lead, nil
}

// List returns leads ordered by most recent activity.
func (r *PostgresRepository) List(ctx context.Context, filter ListLeadsFilter) ([]*Lead, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	query := `SELECT ` + leadColumns + ` FROM leads`
	args := []any{}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+search+"%")
		query += ` WHERE name ILIKE $1 OR phone LIKE $1`
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(` ORDER BY updated_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("leads: list failed: %w", err)
	}
	defer rows.Close()

	var out []*Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("leads: scan failed: %w", err)
		}
		out = append(out, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("leads: list failed: %w", err)
	}
	return out, nil
}

// Update applies operator edits. Leads are never deleted.
func (r *PostgresRepository) Update(ctx context.Context, id string, req *UpdateLeadRequest) (*Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	query := `
		UPDATE leads SET
			name = COALESCE($2, name),
			notes = COALESCE($3, notes),
			updated_at = now()
		WHERE id = $1
		RETURNING ` + leadColumns
	lead, err := scanLead(r.db.QueryRow(ctx, query, id, req.Name, req.Notes))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: update failed: %w", err)
	}
	return lead, nil
}

func scanLead(row pgx.Row) (*Lead, error) {
	var lead Lead
	if err := row.Scan(
		&lead.ID,
		&lead.Phone,
		&lead.Name,
		&lead.WhatsAppJID,
		&lead.Notes,
		&lead.CreatedAt,
		&lead.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &lead, nil
}

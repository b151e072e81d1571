package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/wolfman30/school-whatsapp-hub/pkg/logging"
)

// AdminDashboardHandler handles the main dashboard overview endpoint.
type AdminDashboardHandler struct {
	db     *sql.DB
	logger *logging.Logger
	now    func() time.Time
}

// NewAdminDashboardHandler creates a new admin dashboard handler.
func NewAdminDashboardHandler(db *sql.DB, logger *logging.Logger) *AdminDashboardHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminDashboardHandler{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// DashboardOverviewResponse contains the main dashboard metrics.
type DashboardOverviewResponse struct {
	Period        string              `json:"period"`
	Since         *string             `json:"since,omitempty"`
	Leads         LeadMetrics         `json:"leads"`
	Conversations ConversationMetrics `json:"conversations"`
	Messages      MessageMetrics      `json:"messages"`
	Scheduled     map[string]int      `json:"scheduled"`
}

// LeadMetrics contains lead-related dashboard metrics.
type LeadMetrics struct {
	Total     int `json:"total"`
	NewPeriod int `json:"new_in_period"`
}

// ConversationMetrics contains conversation-related dashboard metrics.
type ConversationMetrics struct {
	Total        int `json:"total"`
	Open         int `json:"open"`
	ActivePeriod int `json:"active_in_period"`
}

// MessageMetrics counts messages in the period by direction and by status.
type MessageMetrics struct {
	Total       int            `json:"total"`
	ByDirection map[string]int `json:"by_direction"`
	ByStatus    map[string]int `json:"by_status"`
}

// GetDashboardOverview returns KPI counts for the period (week, month, all).
// GET /admin/dashboard?period=week
func (h *AdminDashboardHandler) GetDashboardOverview(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	if period == "" {
		period = "week"
	}
	var since time.Time
	now := h.now().UTC()
	switch period {
	case "week":
		since = now.AddDate(0, 0, -7)
	case "month":
		since = now.AddDate(0, -1, 0)
	case "all":
	default:
		http.Error(w, "invalid period", http.StatusBadRequest)
		return
	}

	resp := DashboardOverviewResponse{
		Period: period,
		Messages: MessageMetrics{
			ByDirection: map[string]int{},
			ByStatus:    map[string]int{},
		},
		Scheduled: map[string]int{},
	}
	if !since.IsZero() {
		formatted := since.Format(time.RFC3339)
		resp.Since = &formatted
	}

	ctx := r.Context()
	steps := []struct {
		name string
		fn   func(context.Context, time.Time, *DashboardOverviewResponse) error
	}{
		{"leads", h.leadMetrics},
		{"conversations", h.conversationMetrics},
		{"messages", h.messageMetrics},
		{"scheduled", h.scheduledMetrics},
	}
	for _, step := range steps {
		if err := step.fn(ctx, since, &resp); err != nil {
			h.logger.Error("dashboard query failed", "section", step.name, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *AdminDashboardHandler) leadMetrics(ctx context.Context, since time.Time, resp *DashboardOverviewResponse) error {
	query := `SELECT COUNT(*), COUNT(*) FILTER (WHERE created_at >= $1) FROM leads`
	if err := h.db.QueryRowContext(ctx, query, since).Scan(&resp.Leads.Total, &resp.Leads.NewPeriod); err != nil {
		return fmt.Errorf("leads: %w", err)
	}
	return nil
}

func (h *AdminDashboardHandler) conversationMetrics(ctx context.Context, since time.Time, resp *DashboardOverviewResponse) error {
	query := `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = 'open'),
			COUNT(*) FILTER (WHERE last_message_at >= $1)
		FROM conversations
	`
	c := &resp.Conversations
	if err := h.db.QueryRowContext(ctx, query, since).Scan(&c.Total, &c.Open, &c.ActivePeriod); err != nil {
		return fmt.Errorf("conversations: %w", err)
	}
	return nil
}

func (h *AdminDashboardHandler) messageMetrics(ctx context.Context, since time.Time, resp *DashboardOverviewResponse) error {
	query := `
		SELECT direction, status, COUNT(*)
		FROM messages
		WHERE sent_at >= $1
		GROUP BY direction, status
	`
	rows, err := h.db.QueryContext(ctx, query, since)
	if err != nil {
		return fmt.Errorf("messages: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var direction, status string
		var count int
		if err := rows.Scan(&direction, &status, &count); err != nil {
			return fmt.Errorf("messages: scan: %w", err)
		}
		resp.Messages.Total += count
		resp.Messages.ByDirection[direction] += count
		resp.Messages.ByStatus[status] += count
	}
	return rows.Err()
}

func (h *AdminDashboardHandler) scheduledMetrics(ctx context.Context, _ time.Time, resp *DashboardOverviewResponse) error {
	rows, err := h.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM scheduled_messages GROUP BY status`)
	if err != nil {
		return fmt.Errorf("scheduled: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return fmt.Errorf("scheduled: scan: %w", err)
		}
		resp.Scheduled[status] = count
	}
	return rows.Err()
}

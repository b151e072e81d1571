package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/school-whatsapp-hub/pkg/logging"
)

// AdminConversationsHandler serves the read side of the inbox for operators.
type AdminConversationsHandler struct {
	db     *sql.DB
	logger *logging.Logger
}

// NewAdminConversationsHandler creates a new admin conversations handler.
func NewAdminConversationsHandler(db *sql.DB, logger *logging.Logger) *AdminConversationsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminConversationsHandler{
		db:     db,
		logger: logger,
	}
}

// ConversationListItem represents a conversation in list responses.
type ConversationListItem struct {
	ID              string  `json:"id"`
	LeadID          string  `json:"lead_id"`
	LeadName        string  `json:"lead_name"`
	LeadPhone       string  `json:"lead_phone"`
	Status          string  `json:"status"`
	MessageCount    int     `json:"message_count"`
	InboundCount    int     `json:"inbound_count"`
	LastMessageBody string  `json:"last_message_body,omitempty"`
	StartedAt       string  `json:"started_at"`
	LastMessageAt   *string `json:"last_message_at,omitempty"`
}

// ConversationsListResponse represents a paginated list of conversations.
type ConversationsListResponse struct {
	Conversations []ConversationListItem `json:"conversations"`
	Total         int                    `json:"total"`
	Page          int                    `json:"page"`
	PageSize      int                    `json:"page_size"`
	TotalPages    int                    `json:"total_pages"`
}

// MessageResponse represents a message in a conversation.
type MessageResponse struct {
	ID               string  `json:"id"`
	Direction        string  `json:"direction"`
	Kind             string  `json:"kind"`
	Body             string  `json:"body,omitempty"`
	Caption          string  `json:"caption,omitempty"`
	MediaURL         string  `json:"media_url,omitempty"`
	MimeType         string  `json:"mime_type,omitempty"`
	FileName         string  `json:"file_name,omitempty"`
	ArchivedMediaKey string  `json:"archived_media_key,omitempty"`
	Sender           string  `json:"sender"`
	Status           string  `json:"status"`
	ErrorDetail      string  `json:"error_detail,omitempty"`
	Transcription    string  `json:"transcription,omitempty"`
	SentAt           string  `json:"sent_at"`
	VendorMessageID  *string `json:"vendor_message_id,omitempty"`
}

// ConversationMessagesResponse is the thread view of one conversation.
type ConversationMessagesResponse struct {
	ConversationID string            `json:"conversation_id"`
	LeadID         string            `json:"lead_id"`
	Status         string            `json:"status"`
	Messages       []MessageResponse `json:"messages"`
	HasMore        bool              `json:"has_more"`
}

// ListConversations returns a paginated list of conversations, most recent first.
// GET /admin/conversations?status=&phone=&page=&page_size=
func (h *AdminConversationsHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	where := " WHERE 1=1"
	var args []any
	argNum := 1
	if status := strings.TrimSpace(r.URL.Query().Get("status")); status != "" {
		where += " AND c.status = $" + strconv.Itoa(argNum)
		args = append(args, status)
		argNum++
	}
	if phone := r.URL.Query().Get("phone"); phone != "" {
		digits := phoneDigitsCandidates(phone)
		if len(digits) == 0 {
			http.Error(w, "invalid phone filter", http.StatusBadRequest)
			return
		}
		where += appendPhoneDigitsFilter("l.phone", digits, &args, &argNum)
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM conversations c JOIN leads l ON l.id = c.lead_id` + where
	if err := h.db.QueryRowContext(r.Context(), countQuery, args...).Scan(&total); err != nil {
		h.logger.Error("failed to count conversations", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	query := `
		SELECT c.id, c.lead_id, l.name, l.phone, c.status,
			COUNT(m.id) AS message_count,
			COUNT(m.id) FILTER (WHERE m.direction = 'inbound') AS inbound_count,
			COALESCE((
				SELECT COALESCE(NULLIF(lm.body, ''), '[' || lm.kind || ']')
				FROM messages lm
				WHERE lm.conversation_id = c.id
				ORDER BY lm.sent_at DESC
				LIMIT 1
			), '') AS last_message_body,
			c.created_at, c.last_message_at
		FROM conversations c
		JOIN leads l ON l.id = c.lead_id
		LEFT JOIN messages m ON m.conversation_id = c.id` + where + `
		GROUP BY c.id, l.name, l.phone
		ORDER BY COALESCE(c.last_message_at, c.created_at) DESC
		LIMIT $` + strconv.Itoa(argNum) + ` OFFSET $` + strconv.Itoa(argNum+1)
	args = append(args, pageSize, offset)

	rows, err := h.db.QueryContext(r.Context(), query, args...)
	if err != nil {
		h.logger.Error("failed to query conversations", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	conversations := []ConversationListItem{}
	for rows.Next() {
		var (
			conv          ConversationListItem
			startedAt     time.Time
			lastMessageAt sql.NullTime
		)
		if err := rows.Scan(
			&conv.ID, &conv.LeadID, &conv.LeadName, &conv.LeadPhone, &conv.Status,
			&conv.MessageCount, &conv.InboundCount, &conv.LastMessageBody,
			&startedAt, &lastMessageAt,
		); err != nil {
			h.logger.Error("failed to scan conversation", "error", err)
			continue
		}
		conv.StartedAt = startedAt.Format(time.RFC3339)
		if lastMessageAt.Valid {
			formatted := lastMessageAt.Time.Format(time.RFC3339)
			conv.LastMessageAt = &formatted
		}
		conversations = append(conversations, conv)
	}
	if err := rows.Err(); err != nil {
		h.logger.Error("failed to iterate conversations", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, ConversationsListResponse{
		Conversations: conversations,
		Total:         total,
		Page:          page,
		PageSize:      pageSize,
		TotalPages:    (total + pageSize - 1) / pageSize,
	})
}

// GetMessages returns the thread of one conversation in chronological order.
// Pass before=<RFC3339> to page backwards.
// GET /admin/conversations/{conversationID}/messages
func (h *AdminConversationsHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	if conversationID == "" {
		http.Error(w, "missing conversationID", http.StatusBadRequest)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 200 {
		limit = 50
	}
	before := time.Now().UTC().Add(time.Minute)
	if raw := r.URL.Query().Get("before"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "invalid before timestamp", http.StatusBadRequest)
			return
		}
		before = t
	}

	resp := ConversationMessagesResponse{ConversationID: conversationID, Messages: []MessageResponse{}}
	err := h.db.QueryRowContext(r.Context(),
		`SELECT lead_id, status FROM conversations WHERE id = $1`, conversationID,
	).Scan(&resp.LeadID, &resp.Status)
	if errors.Is(err, sql.ErrNoRows) {
		http.Error(w, "conversation not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to load conversation", "error", err, "conversation_id", conversationID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	query := `
		SELECT id, direction, kind, body, caption, media_url, mime_type, file_name,
			archived_media_key, sender, status, error_detail, transcription, sent_at, vendor_message_id
		FROM messages
		WHERE conversation_id = $1 AND sent_at < $2
		ORDER BY sent_at DESC
		LIMIT $3
	`
	rows, err := h.db.QueryContext(r.Context(), query, conversationID, before, limit+1)
	if err != nil {
		h.logger.Error("failed to query messages", "error", err, "conversation_id", conversationID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	for rows.Next() {
		var (
			msg      MessageResponse
			sentAt   time.Time
			vendorID sql.NullString
		)
		if err := rows.Scan(
			&msg.ID, &msg.Direction, &msg.Kind, &msg.Body, &msg.Caption, &msg.MediaURL,
			&msg.MimeType, &msg.FileName, &msg.ArchivedMediaKey, &msg.Sender, &msg.Status,
			&msg.ErrorDetail, &msg.Transcription, &sentAt, &vendorID,
		); err != nil {
			h.logger.Error("failed to scan message", "error", err)
			continue
		}
		msg.SentAt = sentAt.Format(time.RFC3339)
		if vendorID.Valid {
			msg.VendorMessageID = &vendorID.String
		}
		resp.Messages = append(resp.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		h.logger.Error("failed to iterate messages", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if len(resp.Messages) > limit {
		resp.HasMore = true
		resp.Messages = resp.Messages[:limit]
	}
	for i, j := 0, len(resp.Messages)-1; i < j; i, j = i+1, j-1 {
		resp.Messages[i], resp.Messages[j] = resp.Messages[j], resp.Messages[i]
	}
	writeJSON(w, http.StatusOK, resp)
}

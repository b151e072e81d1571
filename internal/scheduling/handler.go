package scheduling

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/wolfman30/school-whatsapp-hub/pkg/logging"
)

// Handler exposes the admin scheduling endpoints.
type Handler struct {
	store  Store
	logger *logging.Logger
}

func NewHandler(store Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, logger: logger}
}

type listResponse struct {
	ScheduledMessages []*ScheduledMessage `json:"scheduled_messages"`
	Count             int                 `json:"count"`
	Limit             int                 `json:"limit"`
	Offset            int                 `json:"offset"`
}

// Create handles POST /admin/scheduled-messages
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	msg, err := h.store.Create(r.Context(), req)
	switch {
	case errors.Is(err, ErrMissingConversation), errors.Is(err, ErrEmptyBody), errors.Is(err, ErrMissingDueAt):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, ErrUnknownConversation):
		http.Error(w, "conversation not found", http.StatusNotFound)
		return
	case err != nil:
		h.logger.Error("failed to schedule message", "error", err, "conversation_id", req.ConversationID)
		http.Error(w, "failed to schedule message", http.StatusInternalServerError)
		return
	}

	h.logger.Info("message scheduled", "scheduled_id", msg.ID, "conversation_id", msg.ConversationID, "due_at", msg.DueAt)
	writeJSON(w, http.StatusCreated, msg)
}

// List handles GET /admin/scheduled-messages
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		ConversationID: q.Get("conversation_id"),
		Limit:          50,
	}
	if raw := q.Get("status"); raw != "" {
		status, err := ParseStatus(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		filter.Status = status
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit > 0 && limit <= 200 {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(q.Get("offset")); err == nil && offset >= 0 {
		filter.Offset = offset
	}

	rows, err := h.store.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list scheduled messages", "error", err)
		http.Error(w, "failed to list scheduled messages", http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []*ScheduledMessage{}
	}
	writeJSON(w, http.StatusOK, listResponse{
		ScheduledMessages: rows,
		Count:             len(rows),
		Limit:             filter.Limit,
		Offset:            filter.Offset,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

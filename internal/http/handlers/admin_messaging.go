package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	httpmiddleware "github.com/wolfman30/school-whatsapp-hub/internal/http/middleware"
	"github.com/wolfman30/school-whatsapp-hub/internal/messaging"
	"github.com/wolfman30/school-whatsapp-hub/internal/whatsapp"
	"github.com/wolfman30/school-whatsapp-hub/pkg/logging"
)

const maxManualMessageLength = 4096

type outboundSender interface {
	Send(ctx context.Context, req messaging.OutboundRequest) (*messaging.Message, error)
}

// AdminMessagingHandler lets operators reply inside a conversation.
type AdminMessagingHandler struct {
	sender outboundSender
	logger *logging.Logger
}

func NewAdminMessagingHandler(sender outboundSender, logger *logging.Logger) *AdminMessagingHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminMessagingHandler{sender: sender, logger: logger}
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

type sendMessageResponse struct {
	Message *messaging.Message `json:"message"`
	Error   string             `json:"error,omitempty"`
}

// SendMessage handles POST /admin/conversations/{conversationID}/messages.
// The stored row is returned even when the gateway rejects the send, with
// status "error" and a 502.
func (h *AdminMessagingHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	if conversationID == "" {
		http.Error(w, "missing conversationID", http.StatusBadRequest)
		return
	}
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}
	if len(text) > maxManualMessageLength {
		http.Error(w, "text too long", http.StatusBadRequest)
		return
	}

	msg, err := h.sender.Send(r.Context(), messaging.OutboundRequest{
		ConversationID: conversationID,
		Text:           text,
		Sender:         messaging.SenderStaff,
	})
	switch {
	case err == nil:
		h.logger.Info("manual message sent",
			"conversation_id", conversationID,
			"message_id", msg.ID,
			"operator", httpmiddleware.AdminSubject(r.Context()),
		)
		writeJSON(w, http.StatusCreated, sendMessageResponse{Message: msg})
	case errors.Is(err, messaging.ErrConversationNotFound):
		http.Error(w, "conversation not found", http.StatusNotFound)
	case errors.Is(err, messaging.ErrEmptyMessage):
		http.Error(w, "text is required", http.StatusBadRequest)
	case errors.Is(err, whatsapp.ErrMissingSender):
		http.Error(w, "conversation has no phone", http.StatusUnprocessableEntity)
	case errors.Is(err, messaging.ErrVendorSend):
		writeJSON(w, http.StatusBadGateway, sendMessageResponse{Message: msg, Error: "whatsapp gateway rejected the message"})
	default:
		h.logger.Error("manual send failed", "conversation_id", conversationID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

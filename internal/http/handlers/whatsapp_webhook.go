package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/school-whatsapp-hub/internal/archive"
	"github.com/wolfman30/school-whatsapp-hub/internal/assistant"
	"github.com/wolfman30/school-whatsapp-hub/internal/messaging"
	observemetrics "github.com/wolfman30/school-whatsapp-hub/internal/observability/metrics"
	"github.com/wolfman30/school-whatsapp-hub/internal/whatsapp"
	"github.com/wolfman30/school-whatsapp-hub/pkg/logging"
)

var tracer = otel.Tracer("school.internal.http.handlers")

const (
	maxWebhookBody = 1 << 20
	processedKey   = "whatsapp"
)

type inboundResolver interface {
	Resolve(ctx context.Context, env whatsapp.Envelope, classified whatsapp.Classified) (*messaging.Resolution, error)
}

type statusApplier interface {
	Apply(ctx context.Context, events []whatsapp.StatusEvent) messaging.StatusSummary
}

type processedTracker interface {
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
	Forget(ctx context.Context, provider, eventID string) error
}

type replyPublisher interface {
	EnqueueReply(ctx context.Context, job assistant.Job) error
}

type mediaArchiver interface {
	ArchiveMedia(ctx context.Context, item archive.MediaItem) (string, error)
}

// WhatsAppWebhookConfig wires the inbox dispatcher. Processed, Assistant and
// Archiver are optional.
type WhatsAppWebhookConfig struct {
	Resolver  inboundResolver
	Statuses  statusApplier
	Processed processedTracker
	Assistant replyPublisher
	Archiver  mediaArchiver
	Logger    *logging.Logger
	Metrics   *observemetrics.MessagingMetrics
}

// WhatsAppWebhookHandler accepts every gateway callback on one route and
// branches between delivery acknowledgements and inbox messages.
type WhatsAppWebhookHandler struct {
	resolver  inboundResolver
	statuses  statusApplier
	processed processedTracker
	assistant replyPublisher
	archiver  mediaArchiver
	logger    *logging.Logger
	metrics   *observemetrics.MessagingMetrics

	// runAsync runs post-response work; tests replace it to run inline.
	runAsync func(func())
}

func NewWhatsAppWebhookHandler(cfg WhatsAppWebhookConfig) *WhatsAppWebhookHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &WhatsAppWebhookHandler{
		resolver:  cfg.Resolver,
		statuses:  cfg.Statuses,
		processed: cfg.Processed,
		assistant: cfg.Assistant,
		archiver:  cfg.Archiver,
		logger:    cfg.Logger.WithComponent("whatsapp_webhook"),
		metrics:   cfg.Metrics,
		runAsync:  func(fn func()) { go fn() },
	}
}

type statusResponse struct {
	Success bool `json:"success"`
	messaging.StatusSummary
}

type inboxResponse struct {
	Success        bool   `json:"success"`
	Processed      int    `json:"processadas"`
	Duplicate      bool   `json:"duplicada,omitempty"`
	Ignored        string `json:"ignorada,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
	LeadID         string `json:"lead_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// Handle processes POST /webhooks/whatsapp and its aliases. It answers 200
// for everything the gateway should not redeliver; only malformed JSON (400)
// and storage failures during identity resolution (500) are reported.
func (h *WhatsAppWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			// A redelivery would be just as large; acknowledge and drop it.
			h.logger.Warn("oversized webhook body dropped", "limit_bytes", tooLarge.Limit)
			h.metrics.ObserveInbound("unknown", "oversized")
			writeJSON(w, http.StatusOK, inboxResponse{Success: true, Ignored: "payload muito grande"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid body"})
		return
	}

	ctx, span := tracer.Start(r.Context(), "whatsapp.webhook")
	defer span.End()

	route := "inbox"
	if whatsapp.LooksLikeStatus(body) {
		route = "status"
		h.handleStatus(ctx, w, body)
	} else {
		h.handleInbox(ctx, w, body)
	}
	span.SetAttributes(attribute.String("whatsapp.route", route))
	h.metrics.ObserveWebhookLatency(route, time.Since(start).Seconds())
}

func (h *WhatsAppWebhookHandler) handleStatus(ctx context.Context, w http.ResponseWriter, body []byte) {
	events, err := whatsapp.ParseStatusEvents(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed payload"})
		return
	}
	summary := h.statuses.Apply(ctx, events)
	h.logger.Info("status batch processed",
		"total", summary.Total,
		"updated", summary.Updated,
		"not_found", summary.NotFound,
		"ignored", summary.Ignored,
		"failed", summary.Failed,
	)
	writeJSON(w, http.StatusOK, statusResponse{Success: true, StatusSummary: summary})
}

func (h *WhatsAppWebhookHandler) handleInbox(ctx context.Context, w http.ResponseWriter, body []byte) {
	env, shape, err := whatsapp.AdaptPayload(body)
	switch {
	case errors.Is(err, whatsapp.ErrMalformedPayload):
		h.metrics.ObserveInbound("unknown", "malformed")
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed payload"})
		return
	case errors.Is(err, whatsapp.ErrUnrecognizedPayloadShape):
		h.logger.Warn("unrecognized webhook payload dropped", "body", truncate(string(body), 512))
		h.metrics.ObserveInbound("unknown", "unrecognized")
		writeJSON(w, http.StatusOK, inboxResponse{Success: true, Ignored: "formato desconhecido"})
		return
	case err != nil:
		h.logger.Error("adapt webhook payload", "error", err)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed payload"})
		return
	}

	if whatsapp.IsGroupJID(env.Key.RemoteJID) {
		h.metrics.ObserveInbound("group", "ignored")
		writeJSON(w, http.StatusOK, inboxResponse{Success: true, Ignored: "grupo"})
		return
	}

	classified := whatsapp.Classify(env)
	res, err := h.resolver.Resolve(ctx, env, classified)
	if errors.Is(err, whatsapp.ErrMissingSender) {
		h.logger.Warn("inbound message without sender dropped", "vendor_message_id", env.Key.ID)
		h.metrics.ObserveInbound(string(classified.Kind), "ignored")
		writeJSON(w, http.StatusOK, inboxResponse{Success: true, Ignored: "remetente ausente"})
		return
	}
	if err != nil {
		h.logger.Error("identity resolution failed", "error", err, "vendor_message_id", env.Key.ID)
		h.metrics.ObserveInbound(string(classified.Kind), "error")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "identity resolution failed"})
		return
	}

	resp := inboxResponse{
		Success:        true,
		Duplicate:      res.Duplicate,
		MessageID:      res.Message.ID,
		LeadID:         res.Lead.ID,
		ConversationID: res.Conversation.ID,
	}
	if res.Duplicate {
		h.metrics.ObserveInbound(string(classified.Kind), "duplicate")
		writeJSON(w, http.StatusOK, resp)
		return
	}
	resp.Processed = 1

	h.logger.Info("inbound message stored",
		"shape", string(shape),
		"kind", string(res.Message.Kind),
		"direction", string(res.Message.Direction),
		"message_id", res.Message.ID,
		"phone", logging.MaskPhone(res.Lead.Phone),
	)
	h.metrics.ObserveInbound(string(classified.Kind), "stored")

	if res.Message.Direction == messaging.DirectionInbound {
		if res.Message.Kind.IsMedia() {
			h.archiveMedia(res.Message)
		}
		if res.Message.Kind == whatsapp.KindText && !classified.Unsupported {
			h.enqueueReply(ctx, res)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *WhatsAppWebhookHandler) archiveMedia(msg *messaging.Message) {
	if h.archiver == nil || msg.MediaURL == "" {
		return
	}
	item := archive.MediaItem{
		MessageID:  msg.ID,
		URL:        msg.MediaURL,
		MimeType:   msg.MimeType,
		ReceivedAt: msg.SentAt,
	}
	h.runAsync(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if _, err := h.archiver.ArchiveMedia(ctx, item); err != nil {
			h.logger.Warn("media archival failed", "error", err, "message_id", item.MessageID)
		}
	})
}

// enqueueReply publishes at most one assistant job per vendor message id.
func (h *WhatsAppWebhookHandler) enqueueReply(ctx context.Context, res *messaging.Resolution) {
	if h.assistant == nil {
		return
	}
	vendorID := res.Message.VendorMessageID
	if h.processed != nil && vendorID != "" {
		fresh, err := h.processed.MarkProcessed(ctx, processedKey, vendorID)
		if err != nil {
			h.logger.Warn("processed mark failed; enqueueing anyway", "error", err, "vendor_message_id", vendorID)
		} else if !fresh {
			return
		}
	}
	job := assistant.Job{
		ConversationID:  res.Conversation.ID,
		LeadID:          res.Lead.ID,
		MessageID:       res.Message.ID,
		VendorMessageID: vendorID,
	}
	if err := h.assistant.EnqueueReply(ctx, job); err != nil {
		h.logger.Error("assistant enqueue failed", "error", err, "message_id", res.Message.ID)
		span := trace.SpanFromContext(ctx)
		span.RecordError(err)
		span.SetStatus(codes.Error, "assistant enqueue failed")
		if h.processed != nil && vendorID != "" {
			if ferr := h.processed.Forget(ctx, processedKey, vendorID); ferr != nil {
				h.logger.Warn("processed forget failed", "error", ferr, "vendor_message_id", vendorID)
			}
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

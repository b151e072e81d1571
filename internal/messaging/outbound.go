package messaging

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/school-whatsapp-hub/internal/messaging/gatewayclient"
	"github.com/wolfman30/school-whatsapp-hub/internal/observability/metrics"
	"github.com/wolfman30/school-whatsapp-hub/internal/whatsapp"
	"github.com/wolfman30/school-whatsapp-hub/pkg/logging"
)

// TextSender is the gateway operation the inbox needs.
type TextSender interface {
	SendText(ctx context.Context, req gatewayclient.SendTextRequest) (*gatewayclient.SendResult, error)
}

// OutboundRequest is a text the school sends into an existing conversation.
type OutboundRequest struct {
	ConversationID string
	Text           string
	Sender         string
}

// OutboundSender records outbound messages and hands them to the gateway.
type OutboundSender struct {
	store   ConversationStore
	client  TextSender
	metrics *metrics.MessagingMetrics
	logger  *logging.Logger
	delayMS int
	now     func() time.Time
}

// OutboundOption customizes an OutboundSender.
type OutboundOption func(*OutboundSender)

// WithTypingDelay sets the presence delay the gateway shows before sending.
func WithTypingDelay(ms int) OutboundOption {
	return func(s *OutboundSender) {
		if ms >= 0 {
			s.delayMS = ms
		}
	}
}

func WithOutboundMetrics(m *metrics.MessagingMetrics) OutboundOption {
	return func(s *OutboundSender) {
		s.metrics = m
	}
}

func NewOutboundSender(store ConversationStore, client TextSender, logger *logging.Logger, opts ...OutboundOption) *OutboundSender {
	if store == nil {
		panic("messaging: conversation store required")
	}
	if client == nil {
		panic("messaging: gateway client required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &OutboundSender{
		store:  store,
		client: client,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send stores the message as enqueued, calls the gateway, then records the
// outcome on the row. A gateway failure leaves the row in error and returns
// an error wrapping ErrVendorSend together with the stored message.
func (s *OutboundSender) Send(ctx context.Context, req OutboundRequest) (*Message, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	conv, err := s.store.GetConversation(ctx, req.ConversationID)
	if err != nil {
		return nil, err
	}
	number := whatsapp.NormalizePhone(conv.WhatsAppJID)
	if number == "" {
		return nil, fmt.Errorf("messaging: conversation %s has no phone: %w", conv.ID, whatsapp.ErrMissingSender)
	}
	sender := req.Sender
	if sender == "" {
		sender = SenderStaff
	}

	msg := &Message{
		ConversationID: conv.ID,
		LeadID:         conv.LeadID,
		Direction:      DirectionOutbound,
		Kind:           whatsapp.KindText,
		Body:           text,
		Sender:         sender,
		Status:         whatsapp.StatusEnqueued,
		SentAt:         s.now().UTC(),
	}
	if _, err := s.store.InsertMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("messaging: persist outbound: %w", err)
	}

	res, sendErr := s.client.SendText(ctx, gatewayclient.SendTextRequest{
		Number:   number,
		Text:     text,
		Delay:    s.delayMS,
		ReadChat: true,
	})
	if sendErr != nil {
		msg.Status = whatsapp.StatusError
		msg.ErrorDetail = sendErr.Error()
		if err := s.store.MarkOutboundFailed(ctx, msg.ID, msg.ErrorDetail); err != nil {
			s.logger.Error("failed to record outbound failure", "message_id", msg.ID, "error", err)
		}
		s.metrics.ObserveOutbound(sender, string(whatsapp.StatusError))
		s.logger.Warn("outbound send failed",
			"message_id", msg.ID,
			"conversation_id", conv.ID,
			"to", logging.MaskPhone(number),
			"error", sendErr,
		)
		return msg, fmt.Errorf("%w: %v", ErrVendorSend, sendErr)
	}

	sentAt := s.now().UTC()
	msg.Status = whatsapp.StatusSent
	msg.VendorMessageID = res.MessageID
	msg.SentAt = sentAt
	if err := s.store.MarkOutboundSent(ctx, msg.ID, res.MessageID, sentAt); err != nil {
		// the gateway accepted the message; only the bookkeeping is behind
		s.logger.Error("failed to record outbound send", "message_id", msg.ID, "vendor_message_id", res.MessageID, "error", err)
	}
	s.metrics.ObserveOutbound(sender, string(whatsapp.StatusSent))
	s.logger.Info("outbound message sent",
		"message_id", msg.ID,
		"vendor_message_id", res.MessageID,
		"conversation_id", conv.ID,
		"to", logging.MaskPhone(number),
	)
	return msg, nil
}

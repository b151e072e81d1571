package assistant

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/school-whatsapp-hub/internal/messaging"
	"github.com/wolfman30/school-whatsapp-hub/internal/observability/metrics"
	"github.com/wolfman30/school-whatsapp-hub/pkg/logging"
)

var tracer = otel.Tracer("school.internal.assistant")

const (
	defaultHistoryLimit = 12
	defaultMaxTokens    = 512
	defaultTemperature  = 0.4
)

type historyStore interface {
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]messaging.Message, error)
}

type replySender interface {
	Send(ctx context.Context, req messaging.OutboundRequest) (*messaging.Message, error)
}

// ResponderConfig holds the prompt and model settings.
type ResponderConfig struct {
	SystemPrompt string
	HistoryLimit int
	Model        string
	MaxTokens    int32
	Temperature  float32
}

// Responder answers the latest inbound message of a conversation.
type Responder struct {
	history historyStore
	llm     LLMClient
	sender  replySender
	metrics *metrics.MessagingMetrics
	logger  *logging.Logger
	cfg     ResponderConfig
}

func NewResponder(history historyStore, llm LLMClient, sender replySender, cfg ResponderConfig, logger *logging.Logger) *Responder {
	if history == nil || llm == nil || sender == nil {
		panic("assistant: history, llm and sender are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = defaultTemperature
	}
	return &Responder{history: history, llm: llm, sender: sender, logger: logger, cfg: cfg}
}

func (r *Responder) WithMetrics(m *metrics.MessagingMetrics) *Responder {
	r.metrics = m
	return r
}

// Respond loads the conversation, asks the model for a reply and sends it.
// It returns ErrNoPendingTurn when the last message is already an outbound
// one, so a late job never answers twice.
func (r *Responder) Respond(ctx context.Context, job Job) (*messaging.Message, error) {
	ctx, span := tracer.Start(ctx, "assistant.respond")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", job.ConversationID))

	history, err := r.history.RecentMessages(ctx, job.ConversationID, r.cfg.HistoryLimit)
	if err != nil {
		r.metrics.ObserveAssistant("failed")
		span.RecordError(err)
		return nil, fmt.Errorf("assistant: load history: %w", err)
	}
	if len(history) == 0 {
		r.metrics.ObserveAssistant("skipped")
		return nil, ErrMissingHistory
	}
	if history[len(history)-1].Direction != messaging.DirectionInbound {
		r.metrics.ObserveAssistant("skipped")
		return nil, ErrNoPendingTurn
	}

	var system []string
	if prompt := strings.TrimSpace(r.cfg.SystemPrompt); prompt != "" {
		system = append(system, prompt)
	}
	resp, err := r.llm.Complete(ctx, LLMRequest{
		Model:       r.cfg.Model,
		System:      system,
		Messages:    BuildChatHistory(history),
		MaxTokens:   r.cfg.MaxTokens,
		Temperature: r.cfg.Temperature,
	})
	if err != nil {
		r.metrics.ObserveAssistant("failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return nil, err
	}
	reply := strings.TrimSpace(resp.Text)
	if reply == "" {
		r.metrics.ObserveAssistant("failed")
		return nil, ErrEmptyReply
	}

	msg, err := r.sender.Send(ctx, messaging.OutboundRequest{
		ConversationID: job.ConversationID,
		Text:           reply,
		Sender:         messaging.SenderAssistant,
	})
	if err != nil {
		r.metrics.ObserveAssistant("failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		return msg, err
	}
	r.metrics.ObserveAssistant("replied")
	r.logger.Info("assistant replied",
		"conversation_id", job.ConversationID,
		"message_id", msg.ID,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
	)
	return msg, nil
}

// BuildChatHistory turns stored messages into alternating user/assistant
// turns starting with a user turn. Consecutive messages from the same side
// are joined with newlines.
func BuildChatHistory(history []messaging.Message) []ChatMessage {
	out := make([]ChatMessage, 0, len(history))
	for _, msg := range history {
		content := messageText(msg)
		if content == "" {
			continue
		}
		role := ChatRoleUser
		if msg.Direction == messaging.DirectionOutbound {
			role = ChatRoleAssistant
		}
		if len(out) == 0 && role == ChatRoleAssistant {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content += "\n" + content
			continue
		}
		out = append(out, ChatMessage{Role: role, Content: content})
	}
	return out
}

func messageText(msg messaging.Message) string {
	if msg.Kind.IsMedia() {
		label := "[" + string(msg.Kind) + "]"
		if caption := strings.TrimSpace(msg.Caption); caption != "" {
			return label + " " + caption
		}
		if t := strings.TrimSpace(msg.Transcription); t != "" {
			return label + " " + t
		}
		return label
	}
	return strings.TrimSpace(msg.Body)
}

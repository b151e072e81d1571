package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/wolfman30/school-whatsapp-hub/internal/assistant"
	appconfig "github.com/wolfman30/school-whatsapp-hub/internal/config"
	"github.com/wolfman30/school-whatsapp-hub/internal/messaging"
	"github.com/wolfman30/school-whatsapp-hub/internal/observability/metrics"
	"github.com/wolfman30/school-whatsapp-hub/pkg/logging"
)

const memoryQueueBuffer = 256

// BuildLLMClient picks the assistant model provider. Gemini and Bedrock are
// both wired when configured; the non-primary one becomes the fallback.
// Returns nil, nil when the assistant is disabled or no provider is usable.
func BuildLLMClient(ctx context.Context, cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (assistant.LLMClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if !cfg.AssistantEnabled {
		return nil, nil
	}

	var gemini, bedrock assistant.LLMClient
	if key := strings.TrimSpace(cfg.GeminiAPIKey); key != "" {
		client, err := assistant.NewGeminiLLMClient(ctx, key, cfg.GeminiModelID)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: gemini client: %w", err)
		}
		gemini = client
	}
	if awsCfg != nil && strings.TrimSpace(cfg.BedrockModelID) != "" {
		bedrock = assistant.NewBedrockLLMClient(bedrockruntime.NewFromConfig(*awsCfg), cfg.BedrockModelID)
	}

	primary, fallback := gemini, bedrock
	if strings.EqualFold(strings.TrimSpace(cfg.AssistantPrimaryProvider), "bedrock") {
		primary, fallback = bedrock, gemini
	}
	switch {
	case primary != nil && fallback != nil:
		logger.Info("assistant llm configured with fallback", "primary", cfg.AssistantPrimaryProvider)
		return assistant.NewFallbackLLMClient(primary, fallback, logger.Logger), nil
	case primary != nil:
		return primary, nil
	case fallback != nil:
		logger.Warn("assistant primary provider not configured, using fallback", "primary", cfg.AssistantPrimaryProvider)
		return fallback, nil
	default:
		logger.Warn("assistant enabled but no llm provider configured")
		return nil, nil
	}
}

// BuildAssistantQueue returns the in-process queue or the SQS queue. The
// boolean reports whether the queue is in-memory, which means the API
// process has to run the worker itself.
func BuildAssistantQueue(cfg *appconfig.Config, awsCfg *aws.Config) (assistant.Queue, bool, error) {
	if cfg == nil {
		return nil, false, fmt.Errorf("bootstrap: config is required")
	}
	if cfg.UseMemoryQueue || strings.TrimSpace(cfg.AssistantQueueURL) == "" {
		return assistant.NewMemoryQueue(memoryQueueBuffer), true, nil
	}
	if awsCfg == nil {
		return nil, false, fmt.Errorf("bootstrap: aws config is required for ASSISTANT_QUEUE_URL")
	}
	return assistant.NewSQSQueue(sqs.NewFromConfig(*awsCfg), cfg.AssistantQueueURL), false, nil
}

// BuildResponder assembles the responder around the conversation history and
// the shared outbound sender. The model id is left to each client.
func BuildResponder(cfg *appconfig.Config, store messaging.ConversationStore, llm assistant.LLMClient, sender *messaging.OutboundSender, m *metrics.MessagingMetrics, logger *logging.Logger) (*assistant.Responder, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if store == nil || llm == nil || sender == nil {
		return nil, fmt.Errorf("bootstrap: store, llm and sender are required")
	}
	return assistant.NewResponder(store, llm, sender, assistant.ResponderConfig{
		SystemPrompt: cfg.AssistantSystemPrompt,
		HistoryLimit: cfg.AssistantHistoryLimit,
	}, logger).WithMetrics(m), nil
}

package bootstrap

import (
	"fmt"
	"strings"

	appconfig "github.com/wolfman30/school-whatsapp-hub/internal/config"
	"github.com/wolfman30/school-whatsapp-hub/internal/messaging"
	"github.com/wolfman30/school-whatsapp-hub/internal/messaging/gatewayclient"
	"github.com/wolfman30/school-whatsapp-hub/internal/observability/metrics"
	"github.com/wolfman30/school-whatsapp-hub/internal/scheduling"
	scheduledworker "github.com/wolfman30/school-whatsapp-hub/internal/worker/scheduled"
	"github.com/wolfman30/school-whatsapp-hub/pkg/logging"
)

// BuildOutboundSender creates the gateway client and the sender every
// outbound path (manual, assistant, scheduled) goes through.
func BuildOutboundSender(cfg *appconfig.Config, store messaging.ConversationStore, m *metrics.MessagingMetrics, logger *logging.Logger) (*messaging.OutboundSender, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if store == nil {
		return nil, fmt.Errorf("bootstrap: conversation store is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if strings.TrimSpace(cfg.WhatsAppAPIBaseURL) == "" || strings.TrimSpace(cfg.WhatsAppAPIToken) == "" {
		return nil, fmt.Errorf("bootstrap: WHATSAPP_API_BASE_URL and WHATSAPP_API_TOKEN are required")
	}

	client, err := gatewayclient.New(gatewayclient.Config{
		BaseURL: cfg.WhatsAppAPIBaseURL,
		Token:   cfg.WhatsAppAPIToken,
		Timeout: cfg.WhatsAppSendTimeout,
		Logger:  logger.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: gateway client: %w", err)
	}
	return messaging.NewOutboundSender(store, client, logger,
		messaging.WithTypingDelay(cfg.WhatsAppSendDelayMS),
		messaging.WithOutboundMetrics(m),
	), nil
}

// BuildDispatcher wires the scheduled-send dispatcher. alerter may be nil.
func BuildDispatcher(cfg *appconfig.Config, store scheduling.Store, sender *messaging.OutboundSender, alerter scheduledworker.FailureAlerter, m *metrics.MessagingMetrics, logger *logging.Logger) *scheduledworker.Dispatcher {
	d := scheduledworker.NewDispatcher(store, sender, logger).
		WithMetrics(m)
	if cfg != nil {
		d = d.WithInterval(cfg.SchedulerInterval).
			WithBatchSize(cfg.SchedulerBatchSize).
			WithClaimTimeout(cfg.SchedulerClaimTimeout)
	}
	if alerter != nil {
		d = d.WithAlerter(alerter)
	}
	return d
}

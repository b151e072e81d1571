package messaging

import (
	"context"
	"errors"

	"github.com/wolfman30/school-whatsapp-hub/internal/observability/metrics"
	"github.com/wolfman30/school-whatsapp-hub/internal/whatsapp"
	"github.com/wolfman30/school-whatsapp-hub/pkg/logging"
)

// StatusSummary counts the outcome of each acknowledgement in a batch.
type StatusSummary struct {
	Total     int `json:"total"`
	Updated   int `json:"atualizadas"`
	NotFound  int `json:"nao_encontradas"`
	Ignored   int `json:"ignoradas"`
	Unchanged int `json:"inalteradas"`
	Failed    int `json:"falhas"`
}

// StatusUpdater applies delivery acknowledgements to stored messages.
type StatusUpdater struct {
	store   ConversationStore
	metrics *metrics.MessagingMetrics
	logger  *logging.Logger
}

func NewStatusUpdater(store ConversationStore, m *metrics.MessagingMetrics, logger *logging.Logger) *StatusUpdater {
	if store == nil {
		panic("messaging: conversation store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &StatusUpdater{store: store, metrics: m, logger: logger}
}

// Apply processes every event independently; one failing item never stops
// the rest of the batch. Unknown codes and unknown ids are logged and
// counted, never retried.
func (u *StatusUpdater) Apply(ctx context.Context, events []whatsapp.StatusEvent) StatusSummary {
	summary := StatusSummary{Total: len(events)}
	for _, ev := range events {
		outcome := u.applyOne(ctx, ev)
		u.metrics.ObserveStatusUpdate(outcome)
		switch outcome {
		case "updated":
			summary.Updated++
		case "not_found":
			summary.NotFound++
		case "unchanged":
			summary.Unchanged++
		case "failed":
			summary.Failed++
		default:
			summary.Ignored++
		}
	}
	return summary
}

func (u *StatusUpdater) applyOne(ctx context.Context, ev whatsapp.StatusEvent) string {
	if ev.MessageID == "" {
		u.logger.Warn("status event without message id ignored", "code", ev.Code)
		return "ignored"
	}
	status, ok := whatsapp.MapStatusCode(ev.Code)
	if !ok {
		u.logger.Info("unknown status code ignored", "vendor_message_id", ev.MessageID, "code", ev.Code)
		return "ignored"
	}

	changed, err := u.store.ApplyStatus(ctx, ev.MessageID, status)
	switch {
	case errors.Is(err, ErrStatusUpdateNotFound):
		u.logger.Warn("status update for unknown message", "vendor_message_id", ev.MessageID, "status", status)
		return "not_found"
	case err != nil:
		u.logger.Error("status update failed", "vendor_message_id", ev.MessageID, "status", status, "error", err)
		return "failed"
	case !changed:
		u.logger.Debug("status update left row unchanged", "vendor_message_id", ev.MessageID, "status", status)
		return "unchanged"
	}
	return "updated"
}

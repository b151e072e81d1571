package scheduledworker

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/school-whatsapp-hub/internal/messaging"
	"github.com/wolfman30/school-whatsapp-hub/internal/observability/metrics"
	"github.com/wolfman30/school-whatsapp-hub/internal/scheduling"
	"github.com/wolfman30/school-whatsapp-hub/pkg/logging"
)

var tracer = otel.Tracer("school.internal.worker.scheduled")

// ClaimExpiredDetail is recorded on rows that stayed in sending past the
// claim timeout.
const ClaimExpiredDetail = "claim expired"

type scheduleStore interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]*scheduling.ScheduledMessage, error)
	Claim(ctx context.Context, id string, now time.Time) (bool, error)
	MarkSent(ctx context.Context, id, messageID string, sentAt time.Time) error
	MarkError(ctx context.Context, id, detail string) error
	ReclaimStale(ctx context.Context, claimedBefore time.Time, detail string) (int64, error)
}

type outboundSender interface {
	Send(ctx context.Context, req messaging.OutboundRequest) (*messaging.Message, error)
}

// FailureAlerter is told about scheduled messages that could not be sent.
type FailureAlerter interface {
	ScheduledSendFailed(ctx context.Context, msg *scheduling.ScheduledMessage, detail string) error
}

// Summary counts one dispatch pass.
type Summary struct {
	Selected  int   `json:"selected"`
	Claimed   int   `json:"claimed"`
	Sent      int   `json:"sent"`
	Failed    int   `json:"failed"`
	Skipped   int   `json:"skipped"`
	Reclaimed int64 `json:"reclaimed"`
}

// Dispatcher sends scheduled messages whose due time has passed.
type Dispatcher struct {
	store        scheduleStore
	sender       outboundSender
	alerter      FailureAlerter
	metrics      *metrics.MessagingMetrics
	logger       *logging.Logger
	interval     time.Duration
	batchSize    int
	claimTimeout time.Duration
	now          func() time.Time
}

func NewDispatcher(store scheduleStore, sender outboundSender, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{
		store:        store,
		sender:       sender,
		logger:       logger,
		interval:     time.Minute,
		batchSize:    20,
		claimTimeout: 10 * time.Minute,
		now:          time.Now,
	}
}

func (d *Dispatcher) WithInterval(v time.Duration) *Dispatcher {
	if v > 0 {
		d.interval = v
	}
	return d
}

func (d *Dispatcher) WithBatchSize(n int) *Dispatcher {
	if n > 0 {
		d.batchSize = n
	}
	return d
}

func (d *Dispatcher) WithClaimTimeout(v time.Duration) *Dispatcher {
	if v > 0 {
		d.claimTimeout = v
	}
	return d
}

func (d *Dispatcher) WithAlerter(a FailureAlerter) *Dispatcher {
	d.alerter = a
	return d
}

func (d *Dispatcher) WithMetrics(m *metrics.MessagingMetrics) *Dispatcher {
	d.metrics = m
	return d
}

// Run dispatches once immediately and then on every tick until ctx ends.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	d.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

func (d *Dispatcher) tick(ctx context.Context) {
	summary, err := d.DispatchOnce(ctx)
	if err != nil {
		d.logger.Error("scheduled dispatch failed", "error", err)
		return
	}
	if summary.Selected > 0 || summary.Reclaimed > 0 {
		d.logger.Info("scheduled dispatch pass",
			"selected", summary.Selected,
			"claimed", summary.Claimed,
			"sent", summary.Sent,
			"failed", summary.Failed,
			"skipped", summary.Skipped,
			"reclaimed", summary.Reclaimed,
		)
	}
}

// DispatchOnce runs a single pass: expire stale claims, select due rows,
// claim each one and send it. A failing row never stops the rest of the
// batch; only a failed selection returns an error.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (Summary, error) {
	ctx, span := tracer.Start(ctx, "scheduled.dispatch_once")
	defer span.End()

	var summary Summary
	now := d.now().UTC()

	reclaimed, err := d.store.ReclaimStale(ctx, now.Add(-d.claimTimeout), ClaimExpiredDetail)
	if err != nil {
		d.logger.Error("reclaim stale claims failed", "error", err)
	} else if reclaimed > 0 {
		summary.Reclaimed = reclaimed
		d.logger.Warn("expired stuck scheduled messages", "count", reclaimed)
	}

	due, err := d.store.ListDue(ctx, now, d.batchSize)
	if err != nil {
		span.RecordError(err)
		return summary, err
	}
	summary.Selected = len(due)
	d.metrics.ObserveDispatchBatch(len(due))

	for _, row := range due {
		if ctx.Err() != nil {
			break
		}
		d.dispatch(ctx, row, &summary)
	}

	span.SetAttributes(
		attribute.Int("scheduled.selected", summary.Selected),
		attribute.Int("scheduled.sent", summary.Sent),
		attribute.Int("scheduled.failed", summary.Failed),
	)
	return summary, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, row *scheduling.ScheduledMessage, summary *Summary) {
	if _, err := row.Status.Transition(scheduling.StatusSending); err != nil {
		summary.Skipped++
		d.metrics.ObserveScheduled("skipped")
		return
	}
	claimed, err := d.store.Claim(ctx, row.ID, d.now().UTC())
	if err != nil {
		summary.Skipped++
		d.metrics.ObserveScheduled("skipped")
		d.logger.Error("claim scheduled message failed", "scheduled_id", row.ID, "error", err)
		return
	}
	if !claimed {
		summary.Skipped++
		d.metrics.ObserveScheduled("skipped")
		return
	}
	summary.Claimed++
	row.Status = scheduling.StatusSending

	msg, sendErr := d.sender.Send(ctx, messaging.OutboundRequest{
		ConversationID: row.ConversationID,
		Text:           row.Body,
		Sender:         messaging.SenderScheduler,
	})
	if sendErr != nil {
		summary.Failed++
		d.metrics.ObserveScheduled("failed")
		detail := sendErr.Error()
		if err := d.store.MarkError(ctx, row.ID, detail); err != nil {
			d.logger.Error("mark scheduled error failed", "scheduled_id", row.ID, "error", err)
		}
		d.logger.Warn("scheduled message failed", "scheduled_id", row.ID, "conversation_id", row.ConversationID, "error", sendErr)
		if d.alerter != nil {
			if err := d.alerter.ScheduledSendFailed(ctx, row, detail); err != nil {
				d.logger.Error("scheduled failure alert failed", "scheduled_id", row.ID, "error", err)
			}
		}
		return
	}

	summary.Sent++
	d.metrics.ObserveScheduled("sent")
	sentAt := d.now().UTC()
	messageID := ""
	if msg != nil {
		messageID = msg.ID
		sentAt = msg.SentAt
	}
	if err := d.store.MarkSent(ctx, row.ID, messageID, sentAt); err != nil {
		d.logger.Error("mark scheduled sent failed", "scheduled_id", row.ID, "message_id", messageID, "error", err)
	}
}

package assistant

import (
	"context"
	"fmt"

	"github.com/wolfman30/school-whatsapp-hub/pkg/logging"
)

// Publisher enqueues assistant jobs for asynchronous processing.
type Publisher struct {
	queue  Queue
	logger *logging.Logger
}

func NewPublisher(queue Queue, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("assistant: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{queue: queue, logger: logger}
}

// EnqueueReply publishes a job asking for a reply in the job's conversation.
func (p *Publisher) EnqueueReply(ctx context.Context, job Job) error {
	job, body, err := encodeJob(job)
	if err != nil {
		return err
	}
	if err := p.queue.Send(ctx, body); err != nil {
		return fmt.Errorf("assistant: failed to enqueue job: %w", err)
	}
	p.logger.Debug("assistant job enqueued", "job_id", job.ID, "conversation_id", job.ConversationID)
	return nil
}

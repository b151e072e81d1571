package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Queue carries encoded jobs between the webhook and the worker.
type Queue interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// Job asks the assistant to answer the latest inbound message of a
// conversation.
type Job struct {
	ID              string    `json:"id"`
	ConversationID  string    `json:"conversation_id"`
	LeadID          string    `json:"lead_id"`
	MessageID       string    `json:"message_id"`
	VendorMessageID string    `json:"vendor_message_id,omitempty"`
	EnqueuedAt      time.Time `json:"enqueued_at"`
}

func encodeJob(job Job) (Job, string, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	body, err := json.Marshal(job)
	if err != nil {
		return Job{}, "", fmt.Errorf("assistant: failed to encode job: %w", err)
	}
	return job, string(body), nil
}

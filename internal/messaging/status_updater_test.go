package messaging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/school-whatsapp-hub/internal/whatsapp"
)

func seedMessage(t *testing.T, store *MemoryStore, vendorID string, status whatsapp.MessageStatus) {
	t.Helper()
	conv, err := store.EnsureConversation(context.Background(), "lead-1", "5521987654321@s.whatsapp.net")
	require.NoError(t, err)
	_, err = store.InsertMessage(context.Background(), &Message{
		ConversationID:  conv.ID,
		LeadID:          "lead-1",
		Direction:       DirectionOutbound,
		Kind:            whatsapp.KindText,
		Body:            "Olá",
		Status:          status,
		VendorMessageID: vendorID,
	})
	require.NoError(t, err)
}

func statusOf(store *MemoryStore, vendorID string) whatsapp.MessageStatus {
	for _, m := range store.Messages() {
		if m.VendorMessageID == vendorID {
			return m.Status
		}
	}
	return ""
}

func TestStatusUpdaterSingleEvent(t *testing.T) {
	store := NewMemoryStore()
	seedMessage(t, store, "ABC", whatsapp.StatusSent)

	events, err := whatsapp.ParseStatusEvents([]byte(`{"key":{"id":"ABC"},"status":"2"}`))
	require.NoError(t, err)

	summary := NewStatusUpdater(store, nil, nil).Apply(context.Background(), events)
	assert.Equal(t, StatusSummary{Total: 1, Updated: 1}, summary)
	assert.Equal(t, whatsapp.StatusDelivered, statusOf(store, "ABC"))
}

func TestStatusUpdaterCodeTable(t *testing.T) {
	tests := []struct {
		code string
		want whatsapp.MessageStatus
	}{
		{"1", whatsapp.StatusSent},
		{"2", whatsapp.StatusDelivered},
		{"3", whatsapp.StatusRead},
		{"4", whatsapp.StatusRead},
		{"5", whatsapp.StatusError},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			store := NewMemoryStore()
			seedMessage(t, store, "M", whatsapp.StatusEnqueued)
			NewStatusUpdater(store, nil, nil).Apply(context.Background(), []whatsapp.StatusEvent{{MessageID: "M", Code: tt.code}})
			assert.Equal(t, tt.want, statusOf(store, "M"))
		})
	}
}

func TestStatusUpdaterBatchAccumulates(t *testing.T) {
	store := NewMemoryStore()
	seedMessage(t, store, "A", whatsapp.StatusSent)
	seedMessage(t, store, "B", whatsapp.StatusRead)

	events, err := whatsapp.ParseStatusEvents([]byte(`[
		{"key":{"id":"A"},"update":{"status":3}},
		{"id":"B","ack":2},
		{"id":"MISSING","status":"1"},
		{"id":"A","status":"9"},
		{"status":"1"}
	]`))
	require.NoError(t, err)

	summary := NewStatusUpdater(store, nil, nil).Apply(context.Background(), events)
	assert.Equal(t, StatusSummary{Total: 5, Updated: 1, Unchanged: 1, NotFound: 1, Ignored: 2}, summary)
	assert.Equal(t, whatsapp.StatusRead, statusOf(store, "A"))
	assert.Equal(t, whatsapp.StatusRead, statusOf(store, "B"), "late delivery ack must not downgrade read")
}

func TestStatusUpdaterUnknownCodeLeavesRow(t *testing.T) {
	store := NewMemoryStore()
	seedMessage(t, store, "A", whatsapp.StatusSent)

	summary := NewStatusUpdater(store, nil, nil).Apply(context.Background(), []whatsapp.StatusEvent{{MessageID: "A", Code: "PENDING"}})
	assert.Equal(t, 1, summary.Ignored)
	assert.Equal(t, whatsapp.StatusSent, statusOf(store, "A"))
}

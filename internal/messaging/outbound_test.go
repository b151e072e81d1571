package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/school-whatsapp-hub/internal/leads"
	"github.com/wolfman30/school-whatsapp-hub/internal/messaging/gatewayclient"
	"github.com/wolfman30/school-whatsapp-hub/internal/whatsapp"
)

type fakeTextSender struct {
	requests []gatewayclient.SendTextRequest
	result   *gatewayclient.SendResult
	err      error
	// beforeReturn runs after the gateway "accepted" the send, before the
	// response reaches the caller.
	beforeReturn func()
}

func (f *fakeTextSender) SendText(ctx context.Context, req gatewayclient.SendTextRequest) (*gatewayclient.SendResult, error) {
	f.requests = append(f.requests, req)
	if f.beforeReturn != nil {
		f.beforeReturn()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func newConversation(t *testing.T, store *MemoryStore) *Conversation {
	t.Helper()
	conv, err := store.EnsureConversation(context.Background(), "lead-1", "5521987654321@s.whatsapp.net")
	require.NoError(t, err)
	return conv
}

func TestOutboundSenderSuccess(t *testing.T) {
	store := NewMemoryStore()
	conv := newConversation(t, store)
	client := &fakeTextSender{result: &gatewayclient.SendResult{MessageID: "VENDOR-1"}}
	fixed := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	sender := NewOutboundSender(store, client, nil, WithTypingDelay(800))
	sender.now = func() time.Time { return fixed }

	msg, err := sender.Send(context.Background(), OutboundRequest{ConversationID: conv.ID, Text: "  Olá, tudo bem? ", Sender: SenderAssistant})
	require.NoError(t, err)

	require.Len(t, client.requests, 1)
	assert.Equal(t, gatewayclient.SendTextRequest{Number: "5521987654321", Text: "Olá, tudo bem?", Delay: 800, ReadChat: true}, client.requests[0])

	assert.Equal(t, whatsapp.StatusSent, msg.Status)
	assert.Equal(t, "VENDOR-1", msg.VendorMessageID)

	stored := store.Messages()
	require.Len(t, stored, 1)
	assert.Equal(t, whatsapp.StatusSent, stored[0].Status)
	assert.Equal(t, "VENDOR-1", stored[0].VendorMessageID)
	assert.Equal(t, DirectionOutbound, stored[0].Direction)
	assert.Equal(t, SenderAssistant, stored[0].Sender)
	assert.Equal(t, fixed, stored[0].SentAt)
}

func TestOutboundSenderVendorFailure(t *testing.T) {
	store := NewMemoryStore()
	conv := newConversation(t, store)
	client := &fakeTextSender{err: &gatewayclient.APIError{StatusCode: 500, Message: "instance offline"}}

	msg, err := NewOutboundSender(store, client, nil).Send(context.Background(), OutboundRequest{ConversationID: conv.ID, Text: "Lembrete"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrVendorSend))
	require.NotNil(t, msg)
	assert.Equal(t, whatsapp.StatusError, msg.Status)

	stored := store.Messages()
	require.Len(t, stored, 1)
	assert.Equal(t, whatsapp.StatusError, stored[0].Status)
	assert.Contains(t, stored[0].ErrorDetail, "instance offline")
	assert.Equal(t, SenderStaff, stored[0].Sender)
}

func TestOutboundSenderValidation(t *testing.T) {
	store := NewMemoryStore()
	client := &fakeTextSender{}
	sender := NewOutboundSender(store, client, nil)

	_, err := sender.Send(context.Background(), OutboundRequest{ConversationID: "x", Text: "   "})
	assert.True(t, errors.Is(err, ErrEmptyMessage))

	_, err = sender.Send(context.Background(), OutboundRequest{ConversationID: "missing", Text: "oi"})
	assert.True(t, errors.Is(err, ErrConversationNotFound))
	assert.Empty(t, client.requests)
}

func TestOutboundSenderFoldsEchoStoredBeforeResponse(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	leadRepo := leads.NewInMemoryRepository()
	lead, err := leadRepo.GetOrCreateByPhone(ctx, "5521987654321", "Maria", "5521987654321@s.whatsapp.net")
	require.NoError(t, err)
	conv, err := store.EnsureConversation(ctx, lead.ID, "5521987654321@s.whatsapp.net")
	require.NoError(t, err)

	resolver := NewResolver(leadRepo, store, nil)
	client := &fakeTextSender{result: &gatewayclient.SendResult{MessageID: "V1"}}
	client.beforeReturn = func() {
		env, classified := adapt(t, `{"key":{"remoteJid":"5521987654321@s.whatsapp.net","fromMe":true,"id":"V1"},"message":{"conversation":"Olá! A matrícula está aberta."}}`)
		res, err := resolver.Resolve(ctx, env, classified)
		require.NoError(t, err)
		require.False(t, res.Duplicate)
		_, err = store.ApplyStatus(ctx, "V1", whatsapp.StatusDelivered)
		require.NoError(t, err)
	}

	msg, err := NewOutboundSender(store, client, nil).Send(ctx, OutboundRequest{
		ConversationID: conv.ID,
		Text:           "Olá! A matrícula está aberta.",
		Sender:         SenderAssistant,
	})
	require.NoError(t, err)

	stored := store.Messages()
	require.Len(t, stored, 1, "one send must leave one outbound row")
	assert.Equal(t, msg.ID, stored[0].ID)
	assert.Equal(t, SenderAssistant, stored[0].Sender)
	assert.Equal(t, "V1", stored[0].VendorMessageID)
	assert.Equal(t, whatsapp.StatusDelivered, stored[0].Status)

	changed, err := store.ApplyStatus(ctx, "V1", whatsapp.StatusRead)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, whatsapp.StatusRead, store.Messages()[0].Status)
}

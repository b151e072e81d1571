package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/school-whatsapp-hub/internal/leads"
	"github.com/wolfman30/school-whatsapp-hub/internal/whatsapp"
)

type failingLeadRepo struct {
	leads.Repository
}

func (failingLeadRepo) GetOrCreateByPhone(ctx context.Context, phone, name, jid string) (*leads.Lead, error) {
	return nil, errors.New("connection refused")
}

func adapt(t *testing.T, body string) (whatsapp.Envelope, whatsapp.Classified) {
	t.Helper()
	env, _, err := whatsapp.AdaptPayload([]byte(body))
	require.NoError(t, err)
	return env, whatsapp.Classify(env)
}

func TestResolverCreatesLeadConversationAndMessage(t *testing.T) {
	leadRepo := leads.NewInMemoryRepository()
	store := NewMemoryStore()
	resolver := NewResolver(leadRepo, store, nil)

	env, c := adapt(t, `{"key":{"remoteJid":"021987654321@s.whatsapp.net","fromMe":false,"id":"ABC"},"pushName":"Maria","message":{"conversation":"oi"}}`)
	res, err := resolver.Resolve(context.Background(), env, c)
	require.NoError(t, err)

	assert.Equal(t, "5521987654321", res.Lead.Phone)
	assert.Equal(t, "Maria", res.Lead.Name)
	assert.Equal(t, res.Lead.ID, res.Conversation.LeadID)
	assert.Equal(t, DirectionInbound, res.Message.Direction)
	assert.Equal(t, "Maria", res.Message.Sender)
	assert.Equal(t, "oi", res.Message.Body)
	assert.Equal(t, whatsapp.StatusDelivered, res.Message.Status)
	assert.False(t, res.Duplicate)
	assert.Len(t, store.Messages(), 1)
}

func TestResolverFromMeIsOutbound(t *testing.T) {
	store := NewMemoryStore()
	resolver := NewResolver(leads.NewInMemoryRepository(), store, nil)

	env, c := adapt(t, `{"message":{"chatid":"5521987654321@s.whatsapp.net","text":"Bom dia!","fromMe":true,"senderName":"Escola","messageid":"OUT1"}}`)
	res, err := resolver.Resolve(context.Background(), env, c)
	require.NoError(t, err)

	assert.Equal(t, DirectionOutbound, res.Message.Direction)
	assert.Equal(t, SenderStaff, res.Message.Sender)
	assert.Empty(t, res.Lead.Name, "school push name must not become the lead name")
}

func TestResolverUnsupportedStillStoresOneRow(t *testing.T) {
	store := NewMemoryStore()
	resolver := NewResolver(leads.NewInMemoryRepository(), store, nil)

	env, c := adapt(t, `{"key":{"remoteJid":"5521987654321@s.whatsapp.net","id":"POLL1"},"message":{"pollCreationMessage":{"name":"?"}}}`)
	res, err := resolver.Resolve(context.Background(), env, c)
	require.NoError(t, err)

	assert.Equal(t, whatsapp.KindText, res.Message.Kind)
	assert.Equal(t, whatsapp.UnsupportedBody, res.Message.Body)
	assert.Len(t, store.Messages(), 1)
}

func TestResolverRedeliveryKeepsSingleRow(t *testing.T) {
	store := NewMemoryStore()
	resolver := NewResolver(leads.NewInMemoryRepository(), store, nil)
	body := `{"key":{"remoteJid":"5521987654321@s.whatsapp.net","id":"DUP"},"message":{"conversation":"oi"}}`

	env, c := adapt(t, body)
	first, err := resolver.Resolve(context.Background(), env, c)
	require.NoError(t, err)
	second, err := resolver.Resolve(context.Background(), env, c)
	require.NoError(t, err)

	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Message.ID, second.Message.ID)
	assert.Len(t, store.Messages(), 1)
}

func TestResolverConcurrentFirstContact(t *testing.T) {
	leadRepo := leads.NewInMemoryRepository()
	store := NewMemoryStore()
	resolver := NewResolver(leadRepo, store, nil)

	bodies := []string{
		`{"key":{"remoteJid":"5521987654321@s.whatsapp.net","id":"C1"},"message":{"conversation":"oi"}}`,
		`{"message":{"chatid":"021987654321@s.whatsapp.net","text":"tudo bem?","messageid":"C2"}}`,
	}
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		for _, body := range bodies {
			env, c := adapt(t, body)
			env.Key.ID = env.Key.ID + string(rune('a'+i))
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := resolver.Resolve(context.Background(), env, c); err != nil {
					t.Errorf("resolve: %v", err)
				}
			}()
		}
	}
	wg.Wait()

	all, err := leadRepo.List(context.Background(), leads.ListLeadsFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Len(t, store.Conversations(), 1)
	assert.Len(t, store.Messages(), 20)
}

func TestResolverErrors(t *testing.T) {
	resolver := NewResolver(failingLeadRepo{}, NewMemoryStore(), nil)

	env, c := adapt(t, `{"key":{"remoteJid":"5521987654321@s.whatsapp.net","id":"X"},"message":{"conversation":"oi"}}`)
	_, err := resolver.Resolve(context.Background(), env, c)
	assert.True(t, errors.Is(err, ErrIdentityResolution))

	env.Key.RemoteJID = "@s.whatsapp.net"
	_, err = resolver.Resolve(context.Background(), env, c)
	assert.True(t, errors.Is(err, whatsapp.ErrMissingSender))
}

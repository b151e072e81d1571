package messaging

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/school-whatsapp-hub/internal/leads"
	"github.com/wolfman30/school-whatsapp-hub/internal/whatsapp"
	"github.com/wolfman30/school-whatsapp-hub/pkg/logging"
)

// Resolver turns an inbound event into lead, conversation and message rows.
type Resolver struct {
	leads  leads.Repository
	store  ConversationStore
	logger *logging.Logger
	now    func() time.Time
}

func NewResolver(leadRepo leads.Repository, store ConversationStore, logger *logging.Logger) *Resolver {
	if leadRepo == nil {
		panic("messaging: lead repository required")
	}
	if store == nil {
		panic("messaging: conversation store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Resolver{
		leads:  leadRepo,
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Resolution is the persisted outcome of one inbound event.
type Resolution struct {
	Lead         *leads.Lead
	Conversation *Conversation
	Message      *Message
	// Duplicate is true when the vendor redelivered an event already stored.
	Duplicate bool
}

// Resolve finds or creates the lead and its open conversation and stores the
// message. Storage failures are reported as ErrIdentityResolution.
func (r *Resolver) Resolve(ctx context.Context, env whatsapp.Envelope, classified whatsapp.Classified) (*Resolution, error) {
	phone := env.Phone()
	if phone == "" {
		return nil, whatsapp.ErrMissingSender
	}
	jid := strings.TrimSpace(env.Key.RemoteJID)

	// the push name on our own echoes is the school's account, not the lead's
	name := ""
	if !env.Key.FromMe {
		name = strings.TrimSpace(env.PushName)
	}

	lead, err := r.leads.GetOrCreateByPhone(ctx, phone, name, jid)
	if err != nil {
		return nil, fmt.Errorf("%w: lead: %v", ErrIdentityResolution, err)
	}
	conv, err := r.store.EnsureConversation(ctx, lead.ID, jid)
	if err != nil {
		return nil, fmt.Errorf("%w: conversation: %v", ErrIdentityResolution, err)
	}

	msg := &Message{
		ConversationID:  conv.ID,
		LeadID:          lead.ID,
		VendorMessageID: strings.TrimSpace(env.Key.ID),
		SentAt:          env.SentAt(r.now()),
	}
	msg.applyClassified(classified)
	if env.Key.FromMe {
		msg.Direction = DirectionOutbound
		msg.Sender = SenderStaff
		msg.Status = whatsapp.StatusSent
	} else {
		msg.Direction = DirectionInbound
		msg.Sender = firstNonEmpty(lead.Name, name, phone)
		msg.Status = whatsapp.StatusDelivered
	}

	inserted, err := r.store.InsertMessage(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("%w: message: %v", ErrIdentityResolution, err)
	}
	if !inserted {
		r.logger.Info("duplicate inbound event ignored",
			"vendor_message_id", msg.VendorMessageID,
			"message_id", msg.ID,
			"phone", logging.MaskPhone(phone),
		)
	}

	return &Resolution{
		Lead:         lead,
		Conversation: conv,
		Message:      msg,
		Duplicate:    !inserted,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

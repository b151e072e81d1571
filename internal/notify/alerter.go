package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/school-whatsapp-hub/internal/leads"
	"github.com/wolfman30/school-whatsapp-hub/internal/scheduling"
	"github.com/wolfman30/school-whatsapp-hub/pkg/logging"
)

type leadLookup interface {
	GetByID(ctx context.Context, id string) (*leads.Lead, error)
}

// OperatorAlerter emails the school staff when something needs a human.
type OperatorAlerter struct {
	email  EmailSender
	to     string
	leads  leadLookup
	logger *logging.Logger
	loc    *time.Location
}

// NewOperatorAlerter returns nil when there is no sender or recipient, so
// callers can wire it unconditionally.
func NewOperatorAlerter(email EmailSender, to string, leadsRepo leadLookup, logger *logging.Logger) *OperatorAlerter {
	to = strings.TrimSpace(to)
	if email == nil || to == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		loc = time.UTC
	}
	return &OperatorAlerter{email: email, to: to, leads: leadsRepo, logger: logger, loc: loc}
}

// ScheduledSendFailed reports a scheduled message that ended in error.
func (a *OperatorAlerter) ScheduledSendFailed(ctx context.Context, msg *scheduling.ScheduledMessage, detail string) error {
	if a == nil || msg == nil {
		return nil
	}

	contact := msg.LeadID
	if a.leads != nil && msg.LeadID != "" {
		if lead, err := a.leads.GetByID(ctx, msg.LeadID); err == nil && lead != nil {
			contact = lead.Name
			if contact == "" {
				contact = logging.MaskPhone(lead.Phone)
			}
		} else if err != nil {
			a.logger.Warn("notify: lead lookup failed", "lead_id", msg.LeadID, "error", err)
		}
	}

	subject := fmt.Sprintf("Falha no envio agendado para %s", contact)
	var body strings.Builder
	fmt.Fprintf(&body, "Uma mensagem agendada não pôde ser enviada.\n\n")
	fmt.Fprintf(&body, "Contato: %s\n", contact)
	fmt.Fprintf(&body, "Conversa: %s\n", msg.ConversationID)
	fmt.Fprintf(&body, "Horário previsto: %s\n", msg.DueAt.In(a.loc).Format("02/01/2006 15:04"))
	fmt.Fprintf(&body, "Erro: %s\n\n", detail)
	fmt.Fprintf(&body, "Mensagem:\n%s\n", msg.Body)

	if err := a.email.Send(ctx, EmailMessage{To: a.to, Subject: subject, Body: body.String()}); err != nil {
		return fmt.Errorf("notify: scheduled failure alert: %w", err)
	}
	return nil
}

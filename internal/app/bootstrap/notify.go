package bootstrap

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/wolfman30/school-whatsapp-hub/internal/config"
	"github.com/wolfman30/school-whatsapp-hub/internal/leads"
	"github.com/wolfman30/school-whatsapp-hub/internal/notify"
	scheduledworker "github.com/wolfman30/school-whatsapp-hub/internal/worker/scheduled"
	"github.com/wolfman30/school-whatsapp-hub/pkg/logging"
)

// BuildEmailSender prefers SendGrid, then SES, then a logging stub.
func BuildEmailSender(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (notify.EmailSender, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); sg != nil {
		return sg, nil
	}
	if awsCfg != nil && strings.TrimSpace(cfg.SESFromEmail) != "" {
		if ses := notify.NewSESSender(sesv2.NewFromConfig(*awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); ses != nil {
			return ses, nil
		}
	}
	logger.Info("no email provider configured, operator alerts will only be logged")
	return notify.NewStubEmailSender(logger), nil
}

// BuildFailureAlerter returns nil when OPERATOR_ALERT_EMAIL is unset.
func BuildFailureAlerter(cfg *appconfig.Config, email notify.EmailSender, leadsRepo leads.Repository, logger *logging.Logger) scheduledworker.FailureAlerter {
	if cfg == nil {
		return nil
	}
	alerter := notify.NewOperatorAlerter(email, cfg.OperatorAlertEmail, leadsRepo, logger)
	if alerter == nil {
		return nil
	}
	return alerter
}

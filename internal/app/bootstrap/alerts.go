package bootstrap

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/wolfman30/payment-sms-relay/internal/config"
	"github.com/wolfman30/payment-sms-relay/internal/notify"
	"github.com/wolfman30/payment-sms-relay/pkg/logging"
)

// BuildAlerter returns the abandoned-delivery alerter, or nil when
// ALERT_EMAIL_TO is unset. sesClient is only needed for the ses provider.
func BuildAlerter(cfg *appconfig.Config, sesClient *sesv2.Client, logger *logging.Logger) (*notify.DeliveryAlerter, error) {
	if cfg == nil || cfg.AlertEmailTo == "" {
		return nil, nil
	}
	if logger == nil {
		logger = logging.Default()
	}

	var sender notify.EmailSender
	switch cfg.AlertProvider {
	case "", appconfig.AlertProviderLog:
		sender = notify.NewLogSender(logger)
	case appconfig.AlertProviderSES:
		if sesClient == nil {
			return nil, errors.New("bootstrap: ses client is required for ALERT_EMAIL_PROVIDER=ses")
		}
		sender = notify.NewSESSender(sesClient, notify.SESConfig{FromEmail: cfg.AlertEmailFrom, FromName: cfg.AlertEmailFromName}, logger)
	case appconfig.AlertProviderSendGrid:
		sg := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.AlertEmailFrom,
			FromName:  cfg.AlertEmailFromName,
		}, logger)
		if sg == nil {
			return nil, errors.New("bootstrap: SENDGRID_API_KEY is required for ALERT_EMAIL_PROVIDER=sendgrid")
		}
		sender = sg
	default:
		return nil, fmt.Errorf("bootstrap: unknown alert provider %q", cfg.AlertProvider)
	}

	logger.Info("abandoned delivery alerts enabled", "provider", cfg.AlertProvider, "to", cfg.AlertEmailTo)
	return notify.NewDeliveryAlerter(sender, cfg.AlertEmailTo, cfg.AlertMinInterval, logger), nil
}

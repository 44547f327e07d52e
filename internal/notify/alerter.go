package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/payment-sms-relay/internal/delivery"
	"github.com/wolfman30/payment-sms-relay/internal/sms"
	"github.com/wolfman30/payment-sms-relay/pkg/logging"
)

const alertSendTimeout = 10 * time.Second

// DeliveryAlerter emails an operator when a payment SMS is abandoned. Alerts
// are throttled per abandon reason. The message body is never included.
type DeliveryAlerter struct {
	sender      EmailSender
	to          string
	minInterval time.Duration
	logger      *logging.Logger
	now         func() time.Time

	mu   sync.Mutex
	last map[delivery.Reason]time.Time
}

func NewDeliveryAlerter(sender EmailSender, to string, minInterval time.Duration, logger *logging.Logger) *DeliveryAlerter {
	if sender == nil {
		panic("notify: email sender cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DeliveryAlerter{
		sender:      sender,
		to:          strings.TrimSpace(to),
		minInterval: minInterval,
		logger:      logger.Component("notify.alerter"),
		now:         time.Now,
		last:        make(map[delivery.Reason]time.Time),
	}
}

// NotifyAbandoned sends an alert for an abandoned outcome unless one for the
// same reason went out within minInterval. Failures are logged, not returned.
func (a *DeliveryAlerter) NotifyAbandoned(ctx context.Context, msg sms.InboundMessage, outcome delivery.Outcome) {
	if outcome.Delivered() || a.to == "" {
		return
	}
	if !a.reserve(outcome.Reason) {
		a.logger.Debug("alert throttled", "reason", outcome.Reason)
		return
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), alertSendTimeout)
	defer cancel()
	if err := a.sender.Send(sendCtx, buildAlert(a.to, msg, outcome)); err != nil {
		a.logger.Error("failed to send delivery alert", "error", err, "reason", outcome.Reason)
	}
}

func (a *DeliveryAlerter) reserve(reason delivery.Reason) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.now()
	if last, ok := a.last[reason]; ok && now.Sub(last) < a.minInterval {
		return false
	}
	a.last[reason] = now
	return true
}

func buildAlert(to string, msg sms.InboundMessage, outcome delivery.Outcome) EmailMessage {
	var b strings.Builder
	fmt.Fprintf(&b, "A payment SMS was not delivered to the webhook.\n\n")
	fmt.Fprintf(&b, "Reason: %s\n", outcome.Reason)
	fmt.Fprintf(&b, "Sender: %s\n", msg.Sender)
	fmt.Fprintf(&b, "Provider: %s\n", sms.DetectProvider(msg.Sender))
	fmt.Fprintf(&b, "Received: %s\n", msg.ReceivedAt().Format(time.RFC3339))
	if outcome.Err != nil {
		fmt.Fprintf(&b, "Error: %v\n", outcome.Err)
	}
	switch outcome.Reason {
	case delivery.ReasonConfigMissing:
		b.WriteString("\nSet server_url and api_key via PUT /settings.\n")
	case delivery.ReasonNetworkError:
		b.WriteString("\nThe message will not be retried.\n")
	}
	return EmailMessage{
		To:      to,
		Subject: fmt.Sprintf("[sms-relay] payment SMS abandoned: %s", outcome.Reason),
		Body:    b.String(),
	}
}

package relay

import (
	"context"

	"github.com/wolfman30/payment-sms-relay/internal/delivery"
	"github.com/wolfman30/payment-sms-relay/internal/queue"
	"github.com/wolfman30/payment-sms-relay/internal/settings"
	"github.com/wolfman30/payment-sms-relay/internal/sms"
	"github.com/wolfman30/payment-sms-relay/pkg/logging"
)

const bodyPreviewLen = 160

// Deliverer posts a payment SMS to the configured webhook.
type Deliverer interface {
	Deliver(ctx context.Context, msg sms.InboundMessage, cfg settings.DeliveryConfig) delivery.Outcome
}

// Alerter is told about payment SMS that were abandoned.
type Alerter interface {
	NotifyAbandoned(ctx context.Context, msg sms.InboundMessage, outcome delivery.Outcome)
}

// Handler runs one queued inbound SMS through the filter and, for payment
// messages, the delivery agent. It is shared by the queue worker and the
// Lambda consumer; neither retries what it reports.
type Handler struct {
	store    settings.Store
	delivery Deliverer
	alerter  Alerter
	logger   *logging.Logger
}

// NewHandler panics on a nil store or deliverer. alerter may be nil.
func NewHandler(store settings.Store, deliverer Deliverer, alerter Alerter, logger *logging.Logger) *Handler {
	if store == nil {
		panic("relay: settings store cannot be nil")
	}
	if deliverer == nil {
		panic("relay: deliverer cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		store:    store,
		delivery: deliverer,
		alerter:  alerter,
		logger:   logger.Component("relay"),
	}
}

// Handle ignores ctx cancellation once started. The returned bool reports
// whether the message was a payment SMS that reached the delivery agent.
func (h *Handler) Handle(ctx context.Context, qm queue.Message) (delivery.Outcome, bool) {
	ctx = context.WithoutCancel(ctx)

	msg, err := queue.Decode(qm)
	if err != nil {
		h.logger.Error("failed to decode inbound sms", "error", err, "msg_id", qm.ID)
		return delivery.Outcome{}, false
	}

	if !msg.IsPaymentSMS() {
		h.logger.Debug("ignoring non-payment sms", "sender", msg.Sender, "msg_id", qm.ID)
		return delivery.Outcome{}, false
	}

	provider := sms.DetectProvider(msg.Sender)
	h.logger.Info("payment sms detected", "sender", msg.Sender, "provider", provider, "msg_id", qm.ID, "timestamp", msg.TimestampMillis)
	h.logTransaction(provider, msg, qm.ID)

	// Settings are read per message so edits apply to the next delivery.
	cfg, err := settings.LoadDeliveryConfig(ctx, h.store)
	if err != nil {
		h.logger.Error("failed to read delivery settings; dropping payment sms", "error", err, "sender", msg.Sender)
		return delivery.Outcome{}, false
	}

	outcome := h.delivery.Deliver(ctx, msg, cfg)
	h.logger.Debug("payment sms handled",
		"sender", msg.Sender,
		"outcome", outcome.Label(),
		"status", outcome.StatusCode,
		"server_error", outcome.ServerError(),
	)
	if !outcome.Delivered() && h.alerter != nil {
		h.alerter.NotifyAbandoned(ctx, msg, outcome)
	}
	return outcome, true
}

// logTransaction keeps amount, counterparty and TrxID at debug level, the
// same fields the alert email leaves out.
func (h *Handler) logTransaction(provider sms.Provider, msg sms.InboundMessage, msgID string) {
	trx, ok := sms.ParseTransaction(provider, msg.Body)
	if !ok {
		return
	}
	if !trx.Complete() {
		h.logger.Warn("payment sms only partially parsed",
			"provider", provider,
			"msg_id", msgID,
			"has_amount", trx.Amount > 0,
			"has_trx_id", trx.TrxID != "",
		)
	}
	h.logger.Debug("payment sms details",
		"msg_id", msgID,
		"amount", trx.Amount,
		"trx_id", trx.TrxID,
		"counterparty", trx.Counterparty,
		"body", logging.Preview(msg.Body, bodyPreviewLen),
	)
}

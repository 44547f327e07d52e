package ingest

import (
	"context"

	"github.com/wolfman30/payment-sms-relay/internal/observability/metrics"
	"github.com/wolfman30/payment-sms-relay/internal/sms"
)

// Source labels used for metrics and logs.
const (
	SourceHTTP   = "http"
	SourceTermux = "termux"
)

// Publisher hands an inbound SMS to the relay pipeline.
type Publisher interface {
	Publish(ctx context.Context, msg sms.InboundMessage) error
}

// Source produces inbound SMS from a device channel until ctx is cancelled.
type Source interface {
	Run(ctx context.Context, pub Publisher) error
}

type instrumentedPublisher struct {
	next    Publisher
	source  string
	metrics *metrics.RelayMetrics
}

// Instrument counts every message successfully published through next,
// labelled by source, detected provider and filter result.
func Instrument(next Publisher, source string, m *metrics.RelayMetrics) Publisher {
	if m == nil {
		return next
	}
	return &instrumentedPublisher{next: next, source: source, metrics: m}
}

func (p *instrumentedPublisher) Publish(ctx context.Context, msg sms.InboundMessage) error {
	if err := p.next.Publish(ctx, msg); err != nil {
		return err
	}
	p.metrics.ObserveInbound(p.source, string(sms.DetectProvider(msg.Sender)), msg.IsPaymentSMS())
	return nil
}

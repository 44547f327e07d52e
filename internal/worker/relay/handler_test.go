package relay

import (
	"bytes"
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wolfman30/payment-sms-relay/internal/delivery"
	"github.com/wolfman30/payment-sms-relay/internal/queue"
	"github.com/wolfman30/payment-sms-relay/internal/settings"
	"github.com/wolfman30/payment-sms-relay/internal/sms"
	"github.com/wolfman30/payment-sms-relay/pkg/logging"
)

func TestHandlerReportsPaymentOutcome(t *testing.T) {
	q := queue.NewMemoryQueue(2)
	deliverer := &recordingDeliverer{}
	h := NewHandler(seededStore(t, "https://pay.example.com", "k1"), deliverer, nil, testLogger())

	outcome, payment := h.Handle(context.Background(), enqueue(t, q, paymentSMS))
	assert.True(t, payment)
	assert.True(t, outcome.Delivered())
	assert.Equal(t, http.StatusOK, outcome.StatusCode)

	_, payment = h.Handle(context.Background(), enqueue(t, q, sms.InboundMessage{Sender: "Mom", Body: "call me"}))
	assert.False(t, payment)
	assert.Equal(t, 1, deliverer.count())
}

func TestHandlerIgnoresCancelledContext(t *testing.T) {
	q := queue.NewMemoryQueue(1)
	deliverer := &recordingDeliverer{}
	h := NewHandler(seededStore(t, "https://pay.example.com", "k1"), deliverer, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, payment := h.Handle(ctx, enqueue(t, q, paymentSMS))
	assert.True(t, payment)
	assert.Equal(t, 1, deliverer.count())
}

func TestHandlerUndecodableBody(t *testing.T) {
	h := NewHandler(settings.NewMemoryStore(), &recordingDeliverer{}, nil, testLogger())
	outcome, payment := h.Handle(context.Background(), queue.Message{ID: "m1", Body: "not json"})
	assert.False(t, payment)
	assert.Equal(t, delivery.Outcome{}, outcome)
}

func TestNewHandlerPanics(t *testing.T) {
	assert.Panics(t, func() { NewHandler(nil, &recordingDeliverer{}, nil, nil) })
	assert.Panics(t, func() { NewHandler(settings.NewMemoryStore(), nil, nil, nil) })
}

func TestHandlerKeepsTransactionDetailsOutOfInfoLogs(t *testing.T) {
	var buf bytes.Buffer
	q := queue.NewMemoryQueue(1)
	h := NewHandler(seededStore(t, "https://pay.example.com", "k1"), &recordingDeliverer{}, nil, logging.NewWithWriter("info", &buf))

	_, payment := h.Handle(context.Background(), enqueue(t, q, paymentSMS))
	assert.True(t, payment)

	out := buf.String()
	assert.Contains(t, out, "payment sms detected")
	assert.NotContains(t, out, "ABC123")
	assert.NotContains(t, out, "01712345678")
	assert.NotContains(t, out, "partially parsed")
}

func TestHandlerLogsTransactionDetailsAtDebug(t *testing.T) {
	var buf bytes.Buffer
	q := queue.NewMemoryQueue(1)
	h := NewHandler(seededStore(t, "https://pay.example.com", "k1"), &recordingDeliverer{}, nil, logging.NewWithWriter("debug", &buf))

	h.Handle(context.Background(), enqueue(t, q, paymentSMS))
	assert.Contains(t, buf.String(), "ABC123")
}

func TestHandlerWarnsOnPartialParse(t *testing.T) {
	var buf bytes.Buffer
	q := queue.NewMemoryQueue(1)
	h := NewHandler(seededStore(t, "https://pay.example.com", "k1"), &recordingDeliverer{}, nil, logging.NewWithWriter("info", &buf))

	h.Handle(context.Background(), enqueue(t, q, sms.InboundMessage{Sender: "bKash", Body: "You have received Tk 500.00"}))
	out := buf.String()
	assert.Contains(t, out, "partially parsed")
	assert.Contains(t, out, `"has_trx_id":false`)
}

package relay

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/payment-sms-relay/internal/delivery"
	"github.com/wolfman30/payment-sms-relay/internal/queue"
	"github.com/wolfman30/payment-sms-relay/internal/settings"
	"github.com/wolfman30/payment-sms-relay/internal/sms"
	"github.com/wolfman30/payment-sms-relay/pkg/logging"
)

type recordingDeliverer struct {
	mu    sync.Mutex
	calls []settings.DeliveryConfig
	msgs  []sms.InboundMessage
}

func (r *recordingDeliverer) Deliver(_ context.Context, msg sms.InboundMessage, cfg settings.DeliveryConfig) delivery.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, cfg)
	r.msgs = append(r.msgs, msg)
	return delivery.Outcome{Status: delivery.StatusDelivered, StatusCode: http.StatusOK}
}

func (r *recordingDeliverer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) (string, error) { return "", errors.New("redis down") }
func (brokenStore) Set(context.Context, string, string) error { return errors.New("redis down") }

type failingTransport struct{ calls int32 }

func (f *failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	atomic.AddInt32(&f.calls, 1)
	return nil, errors.New("connection refused")
}

func testLogger() *logging.Logger {
	return logging.NewWithWriter("debug", io.Discard)
}

func enqueue(t *testing.T, q *queue.MemoryQueue, msg sms.InboundMessage) queue.Message {
	t.Helper()
	require.NoError(t, queue.NewPublisher(q).Publish(context.Background(), msg))
	batch, err := q.Receive(context.Background(), 1, 0)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	return batch[0]
}

func seededStore(t *testing.T, serverURL, apiKey string) *settings.MemoryStore {
	t.Helper()
	store := settings.NewMemoryStore()
	require.NoError(t, settings.SaveDeliveryConfig(context.Background(), store, settings.DeliveryConfig{ServerURL: serverURL, APIKey: apiKey}))
	return store
}

var paymentSMS = sms.InboundMessage{
	Sender:          "bKash",
	Body:            "You have received Tk 500.00 from 01712345678. TrxID ABC123",
	TimestampMillis: 1734258600000,
}

func TestHandleMessageDeliversPaymentSMS(t *testing.T) {
	q := queue.NewMemoryQueue(4)
	store := seededStore(t, "https://pay.example.com", "k1")
	deliverer := &recordingDeliverer{}
	w := NewWorker(q, store, deliverer, testLogger())

	w.handleMessage(context.Background(), enqueue(t, q, paymentSMS))

	require.Equal(t, 1, deliverer.count())
	assert.Equal(t, settings.DeliveryConfig{ServerURL: "https://pay.example.com", APIKey: "k1"}, deliverer.calls[0])
	assert.Equal(t, paymentSMS, deliverer.msgs[0])
	assert.Zero(t, q.InFlight())
}

func TestHandleMessageIgnoresNonPayment(t *testing.T) {
	q := queue.NewMemoryQueue(4)
	deliverer := &recordingDeliverer{}
	w := NewWorker(q, seededStore(t, "https://pay.example.com", "k1"), deliverer, testLogger())

	for _, msg := range []sms.InboundMessage{
		{Sender: "Mom", Body: "Received your message"},
		{Sender: "bKash", Body: "Your OTP is 123456"},
		{Sender: "", Body: ""},
	} {
		w.handleMessage(context.Background(), enqueue(t, q, msg))
	}

	assert.Zero(t, deliverer.count())
	assert.Zero(t, q.InFlight())
}

func TestHandleMessageReadsSettingsPerMessage(t *testing.T) {
	q := queue.NewMemoryQueue(4)
	store := seededStore(t, "https://old.example.com", "old")
	deliverer := &recordingDeliverer{}
	w := NewWorker(q, store, deliverer, testLogger())

	w.handleMessage(context.Background(), enqueue(t, q, paymentSMS))
	require.NoError(t, settings.SaveDeliveryConfig(context.Background(), store, settings.DeliveryConfig{ServerURL: "https://new.example.com", APIKey: "new"}))
	w.handleMessage(context.Background(), enqueue(t, q, paymentSMS))

	require.Equal(t, 2, deliverer.count())
	assert.Equal(t, "https://old.example.com", deliverer.calls[0].ServerURL)
	assert.Equal(t, "https://new.example.com", deliverer.calls[1].ServerURL)
}

func TestHandleMessageDropsUndecodable(t *testing.T) {
	q := queue.NewMemoryQueue(2)
	require.NoError(t, q.Send(context.Background(), "{broken"))
	batch, err := q.Receive(context.Background(), 1, 0)
	require.NoError(t, err)

	deliverer := &recordingDeliverer{}
	NewWorker(q, settings.NewMemoryStore(), deliverer, testLogger()).handleMessage(context.Background(), batch[0])

	assert.Zero(t, deliverer.count())
	assert.Zero(t, q.InFlight())
}

func TestHandleMessageSettingsUnavailable(t *testing.T) {
	q := queue.NewMemoryQueue(2)
	deliverer := &recordingDeliverer{}
	NewWorker(q, brokenStore{}, deliverer, testLogger()).handleMessage(context.Background(), enqueue(t, q, paymentSMS))

	assert.Zero(t, deliverer.count())
	assert.Zero(t, q.InFlight())
}

func TestHandleMessageNetworkFailureSingleAttempt(t *testing.T) {
	q := queue.NewMemoryQueue(2)
	store := seededStore(t, "https://pay.example.com", "k1")
	transport := &failingTransport{}
	agent := delivery.NewAgent(store, testLogger(), delivery.WithHTTPClient(&http.Client{Transport: transport}))
	w := NewWorker(q, store, agent, testLogger())

	w.handleMessage(context.Background(), enqueue(t, q, paymentSMS))

	assert.Equal(t, int32(1), atomic.LoadInt32(&transport.calls))
	assert.Zero(t, q.InFlight())
	assert.Zero(t, q.Pending(), "failed message is not re-queued")

	state, err := settings.LoadSyncState(context.Background(), store)
	require.NoError(t, err)
	assert.Zero(t, state.LastSyncMillis)
}

func TestWorkerEndToEnd(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, "k1", r.Header.Get("X-API-Key"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	q := queue.NewMemoryQueue(8)
	store := seededStore(t, server.URL, "k1")
	w := NewWorker(q, store, delivery.NewAgent(store, testLogger()), testLogger(),
		WithWorkerCount(3),
		WithReceiveWaitSeconds(1),
		WithReceiveBatchSize(2),
	)

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)

	pub := queue.NewPublisher(q)
	require.NoError(t, pub.Publish(ctx, paymentSMS))
	require.NoError(t, pub.Publish(ctx, sms.InboundMessage{Sender: "Friend", Body: "lunch?"}))
	require.NoError(t, pub.Publish(ctx, sms.InboundMessage{Sender: "16167", Body: "Cash In Tk 1,000.00 TxnID XYZ"}))

	require.Eventually(t, func() bool { return atomic.LoadInt32(&hits) == 2 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	done := make(chan struct{})
	go func() {
		w.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("workers did not stop")
	}

	state, err := settings.LoadSyncState(context.Background(), store)
	require.NoError(t, err)
	assert.NotZero(t, state.LastSyncMillis)
}

func TestWorkerOptions(t *testing.T) {
	w := NewWorker(queue.NewMemoryQueue(1), settings.NewMemoryStore(), &recordingDeliverer{}, nil,
		WithWorkerCount(0),
		WithReceiveWaitSeconds(-1),
		WithReceiveBatchSize(4),
	)
	assert.Equal(t, defaultWorkerCount, w.cfg.workers)
	assert.Equal(t, defaultWaitSeconds, w.cfg.receiveWaitSecs)
	assert.Equal(t, 4, w.cfg.receiveBatchSize)
}

func TestNewWorkerPanics(t *testing.T) {
	q := queue.NewMemoryQueue(1)
	store := settings.NewMemoryStore()
	assert.Panics(t, func() { NewWorker(nil, store, &recordingDeliverer{}, nil) })
	assert.Panics(t, func() { NewWorker(q, nil, &recordingDeliverer{}, nil) })
	assert.Panics(t, func() { NewWorker(q, store, nil, nil) })
}

type recordingAlerter struct {
	mu       sync.Mutex
	outcomes []delivery.Outcome
}

func (r *recordingAlerter) NotifyAbandoned(_ context.Context, _ sms.InboundMessage, outcome delivery.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func TestHandleMessageAlertsOnAbandon(t *testing.T) {
	q := queue.NewMemoryQueue(4)
	store := settings.NewMemoryStore()
	alerter := &recordingAlerter{}
	w := NewWorker(q, store, delivery.NewAgent(store, testLogger()), testLogger(), WithAlerter(alerter))

	w.handleMessage(context.Background(), enqueue(t, q, paymentSMS))

	require.Len(t, alerter.outcomes, 1)
	assert.Equal(t, delivery.ReasonConfigMissing, alerter.outcomes[0].Reason)
}

func TestHandleMessageNoAlertWhenDelivered(t *testing.T) {
	q := queue.NewMemoryQueue(4)
	alerter := &recordingAlerter{}
	w := NewWorker(q, seededStore(t, "https://pay.example.com", "k1"), &recordingDeliverer{}, testLogger(), WithAlerter(alerter))

	w.handleMessage(context.Background(), enqueue(t, q, paymentSMS))
	assert.Empty(t, alerter.outcomes)
}

type inflightCheckingDeliverer struct {
	q        *queue.MemoryQueue
	inflight []int
}

func (d *inflightCheckingDeliverer) Deliver(_ context.Context, _ sms.InboundMessage, _ settings.DeliveryConfig) delivery.Outcome {
	d.inflight = append(d.inflight, d.q.InFlight())
	return delivery.Outcome{Status: delivery.StatusDelivered, StatusCode: http.StatusOK}
}

func TestHandleMessageDeletesBeforeDelivering(t *testing.T) {
	q := queue.NewMemoryQueue(4)
	deliverer := &inflightCheckingDeliverer{q: q}
	w := NewWorker(q, seededStore(t, "https://pay.example.com", "k1"), deliverer, testLogger())

	msg := enqueue(t, q, paymentSMS)
	require.Equal(t, 1, q.InFlight())

	w.handleMessage(context.Background(), msg)

	require.Len(t, deliverer.inflight, 1)
	assert.Zero(t, deliverer.inflight[0], "message must be acknowledged before the webhook is called")
	assert.Zero(t, q.InFlight())
}

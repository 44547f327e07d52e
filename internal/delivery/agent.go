package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/payment-sms-relay/internal/observability/metrics"
	"github.com/wolfman30/payment-sms-relay/internal/settings"
	"github.com/wolfman30/payment-sms-relay/internal/sms"
	"github.com/wolfman30/payment-sms-relay/pkg/logging"
)

// WebhookPath is appended to server_url to form the delivery endpoint.
const WebhookPath = "/api/sms-webhook/sms-received"

const responsePreviewLen = 512

// webhookPayload is the exact wire body; no other keys are sent.
type webhookPayload struct {
	Sender    string `json:"sender"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"`
}

// Agent posts payment SMS to the configured webhook and records last_sync.
type Agent struct {
	store      settings.Store
	httpClient *http.Client
	logger     *logging.Logger
	metrics    *metrics.RelayMetrics
	tracer     trace.Tracer
	now        func() time.Time
}

// Option customizes an Agent.
type Option func(*Agent)

// WithHTTPClient overrides the HTTP client. The default client sets no
// timeout and relies on transport defaults. Redirects are never followed,
// even when client has its own CheckRedirect.
func WithHTTPClient(client *http.Client) Option {
	return func(a *Agent) {
		if client != nil {
			a.httpClient = withoutRedirects(client)
		}
	}
}

// withoutRedirects returns a copy of client that hands back the first
// response. Following a 3xx would POST the message again and forward
// X-API-Key to whatever host the Location names.
func withoutRedirects(client *http.Client) *http.Client {
	c := *client
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &c
}

// WithMetrics wires Prometheus counters for attempts and responses.
func WithMetrics(m *metrics.RelayMetrics) Option {
	return func(a *Agent) {
		a.metrics = m
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Agent) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAgent returns an Agent writing sync state to store.
func NewAgent(store settings.Store, logger *logging.Logger, opts ...Option) *Agent {
	if store == nil {
		panic("delivery: settings store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	a := &Agent{
		store:      store,
		httpClient: withoutRedirects(&http.Client{}),
		logger:     logger.Component("delivery"),
		tracer:     otel.Tracer("smsrelay.internal.delivery"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Deliver makes a single POST of msg to cfg's webhook. Any HTTP response,
// whatever its status (3xx included; redirects are not followed), counts as
// delivered and advances last_sync. A
// transport failure abandons the message without touching sync state.
//
// The request ignores ctx cancellation: once started, an attempt runs until
// the server answers or the transport gives up.
func (a *Agent) Deliver(ctx context.Context, msg sms.InboundMessage, cfg settings.DeliveryConfig) Outcome {
	if !cfg.Complete() {
		a.logger.Error("server url or api key not configured; dropping payment sms",
			"sender", msg.Sender,
			"has_server_url", cfg.ServerURL != "",
			"has_api_key", cfg.APIKey != "",
		)
		return a.finish(abandoned(ReasonConfigMissing, nil))
	}

	ctx, span := a.tracer.Start(context.WithoutCancel(ctx), "delivery.deliver")
	defer span.End()

	body, err := encodePayload(msg)
	if err != nil {
		span.RecordError(err)
		a.logger.Error("failed to encode webhook payload", "error", err, "sender", msg.Sender)
		return a.finish(abandoned(ReasonNetworkError, err))
	}

	endpoint := strings.TrimRight(cfg.ServerURL, "/") + WebhookPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build request")
		a.logger.Error("error sending to server", "error", err, "sender", msg.Sender)
		return a.finish(abandoned(ReasonNetworkError, fmt.Errorf("delivery: build request: %w", err)))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", cfg.APIKey)

	start := a.now()
	resp, err := a.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		a.logger.Error("error sending to server", "error", err, "sender", msg.Sender)
		return a.finish(abandoned(ReasonNetworkError, fmt.Errorf("delivery: post webhook: %w", err)))
	}
	respBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read response")
		a.logger.Error("error reading server response", "error", err, "status", resp.StatusCode)
		return a.finish(abandoned(ReasonNetworkError, fmt.Errorf("delivery: read response: %w", err)))
	}

	at := a.now()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	a.metrics.ObserveResponse(resp.StatusCode, at.Sub(start).Seconds())

	logArgs := []any{
		"status", resp.StatusCode,
		"sender", msg.Sender,
		"duration_ms", at.Sub(start).Milliseconds(),
		"response", logging.Preview(string(respBody), responsePreviewLen),
	}
	if resp.StatusCode == http.StatusOK {
		a.logger.Info("webhook response", logArgs...)
	} else {
		a.logger.Warn("webhook returned non-200 status; recording sync anyway", logArgs...)
	}

	if err := settings.RecordSync(ctx, a.store, at); err != nil {
		a.logger.Error("failed to record last sync", "error", err)
	}
	return a.finish(delivered(at, resp.StatusCode))
}

func (a *Agent) finish(o Outcome) Outcome {
	a.metrics.ObserveAttempt(o.Label())
	return o
}

// encodePayload serializes msg verbatim. HTML escaping is off so the body
// bytes match the message text.
func encodePayload(msg sms.InboundMessage) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(webhookPayload{
		Sender:    msg.Sender,
		Body:      msg.Body,
		Timestamp: msg.TimestampMillis,
	}); err != nil {
		return nil, fmt.Errorf("delivery: encode payload: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/payment-sms-relay/internal/sms"
	"github.com/wolfman30/payment-sms-relay/pkg/logging"
)

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []sms.InboundMessage
	err  error
}

func (r *recordingPublisher) Publish(_ context.Context, msg sms.InboundMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recordingPublisher) published() []sms.InboundMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sms.InboundMessage(nil), r.msgs...)
}

func newTestHandler(pub Publisher, token string) *HTTPHandler {
	h := NewHTTPHandler(pub, token, logging.NewWithWriter("debug", io.Discard))
	h.now = func() time.Time { return time.UnixMilli(1734258600000) }
	return h
}

func postIngest(h http.Handler, body, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/ingest/sms", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHTTPHandlerQueuesMessage(t *testing.T) {
	pub := &recordingPublisher{}
	rec := postIngest(newTestHandler(pub, ""), `{"sender":"bKash","body":"You have received Tk 500.00","timestamp":1734258600123}`, "")

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "queued", resp["status"])
	assert.Equal(t, []sms.InboundMessage{{Sender: "bKash", Body: "You have received Tk 500.00", TimestampMillis: 1734258600123}}, pub.published())
}

func TestHTTPHandlerDefaultsTimestamp(t *testing.T) {
	pub := &recordingPublisher{}
	rec := postIngest(newTestHandler(pub, ""), `{"sender":"Nagad","body":"Cash In Tk 1"}`, "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, pub.published(), 1)
	assert.Equal(t, int64(1734258600000), pub.published()[0].TimestampMillis)
}

func TestHTTPHandlerRejectsBadRequests(t *testing.T) {
	cases := map[string]string{
		"invalid json": `{"sender":`,
		"empty sender": `{"sender":"  ","body":"x"}`,
		"wrong type":   `{"sender":"bKash","timestamp":"soon"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			pub := &recordingPublisher{}
			rec := postIngest(newTestHandler(pub, ""), body, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, pub.published())
		})
	}
}

func TestHTTPHandlerToken(t *testing.T) {
	body := `{"sender":"bKash","body":"x"}`

	pub := &recordingPublisher{}
	h := newTestHandler(pub, "s3cret")
	assert.Equal(t, http.StatusUnauthorized, postIngest(h, body, "").Code)
	assert.Equal(t, http.StatusUnauthorized, postIngest(h, body, "Bearer nope").Code)
	assert.Equal(t, http.StatusUnauthorized, postIngest(h, body, "s3cret").Code)
	assert.Equal(t, http.StatusAccepted, postIngest(h, body, "Bearer s3cret").Code)
	assert.Len(t, pub.published(), 1)
}

func TestHTTPHandlerAuthorizeSentinel(t *testing.T) {
	h := newTestHandler(&recordingPublisher{}, "tok")
	req := httptest.NewRequest(http.MethodPost, "/ingest/sms", nil)
	assert.ErrorIs(t, h.authorize(req), ErrUnauthorized)
	req.Header.Set("Authorization", "Bearer tok")
	assert.NoError(t, h.authorize(req))
}

func TestHTTPHandlerPublishFailure(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("queue full")}
	rec := postIngest(newTestHandler(pub, ""), `{"sender":"bKash"}`, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestNewHTTPHandlerPanicsWithoutPublisher(t *testing.T) {
	assert.Panics(t, func() { NewHTTPHandler(nil, "", nil) })
}

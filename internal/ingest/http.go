package ingest

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/payment-sms-relay/internal/sms"
	"github.com/wolfman30/payment-sms-relay/pkg/logging"
)

// ErrUnauthorized is returned when the ingest bearer token does not match.
var ErrUnauthorized = errors.New("ingest: unauthorized")

const maxIngestBody = 64 << 10

type ingestRequest struct {
	Sender    string `json:"sender"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"`
}

// HTTPHandler accepts SMS pushed by an on-device gateway app.
type HTTPHandler struct {
	publisher Publisher
	token     string
	logger    *logging.Logger
	now       func() time.Time
}

// NewHTTPHandler builds the POST /ingest/sms handler. An empty token leaves
// the endpoint open.
func NewHTTPHandler(publisher Publisher, token string, logger *logging.Logger) *HTTPHandler {
	if publisher == nil {
		panic("ingest: publisher cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &HTTPHandler{
		publisher: publisher,
		token:     strings.TrimSpace(token),
		logger:    logger.Component("ingest.http"),
		now:       time.Now,
	}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.authorize(r); err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid ingest token"})
		return
	}

	var req ingestRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxIngestBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if strings.TrimSpace(req.Sender) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "sender is required"})
		return
	}

	msg := sms.InboundMessage{Sender: req.Sender, Body: req.Body, TimestampMillis: req.Timestamp}
	if msg.TimestampMillis <= 0 {
		msg.TimestampMillis = h.now().UnixMilli()
	}

	if err := h.publisher.Publish(r.Context(), msg); err != nil {
		h.logger.Error("failed to enqueue inbound sms", "error", err, "sender", msg.Sender)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "queue unavailable"})
		return
	}

	h.logger.Debug("inbound sms queued",
		"sender", msg.Sender,
		"timestamp", msg.TimestampMillis,
		"preview", logging.Preview(msg.Body, 40),
	)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (h *HTTPHandler) authorize(r *http.Request) error {
	if h.token == "" {
		return nil
	}
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ErrUnauthorized
	}
	got := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	if subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

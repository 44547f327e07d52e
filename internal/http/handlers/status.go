package handlers

import (
	"net/http"
	"time"

	"github.com/wolfman30/payment-sms-relay/internal/settings"
	"github.com/wolfman30/payment-sms-relay/pkg/logging"
)

// StatusResponse mirrors the device status screen.
type StatusResponse struct {
	Configured       bool    `json:"configured"`
	LastSync         int64   `json:"last_sync"`
	LastSyncAt       *string `json:"last_sync_at"`
	MonitoringActive bool    `json:"monitoring_active"`
}

// StatusHandler serves GET /status from the settings store.
type StatusHandler struct {
	store  settings.Store
	logger *logging.Logger
}

func NewStatusHandler(store settings.Store, logger *logging.Logger) *StatusHandler {
	if store == nil {
		panic("handlers: settings store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &StatusHandler{store: store, logger: logger}
}

func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cfg, err := settings.LoadDeliveryConfig(r.Context(), h.store)
	if err != nil {
		h.logger.Error("status: failed to load delivery config", "error", err)
		jsonError(w, "settings unavailable", http.StatusServiceUnavailable)
		return
	}
	state, err := settings.LoadSyncState(r.Context(), h.store)
	if err != nil {
		h.logger.Error("status: failed to load sync state", "error", err)
		jsonError(w, "settings unavailable", http.StatusServiceUnavailable)
		return
	}

	resp := StatusResponse{
		Configured:       cfg.Complete(),
		LastSync:         state.LastSyncMillis,
		MonitoringActive: cfg.Complete(),
	}
	if state.LastSyncMillis > 0 {
		at := state.At().Format(time.RFC3339)
		resp.LastSyncAt = &at
	}
	writeJSON(w, http.StatusOK, resp)
}

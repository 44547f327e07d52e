package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wolfman30/payment-sms-relay/internal/http/middleware"
	"github.com/wolfman30/payment-sms-relay/internal/settings"
	"github.com/wolfman30/payment-sms-relay/pkg/logging"
)

type settingsRequest struct {
	ServerURL string `json:"server_url"`
	APIKey    string `json:"api_key"`
}

type settingsResponse struct {
	ServerURL string `json:"server_url"`
	APIKeySet bool   `json:"api_key_set"`
}

// SettingsHandler reads and updates the webhook credentials. The API key is
// write-only.
type SettingsHandler struct {
	store  settings.Store
	logger *logging.Logger
}

func NewSettingsHandler(store settings.Store, logger *logging.Logger) *SettingsHandler {
	if store == nil {
		panic("handlers: settings store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SettingsHandler{store: store, logger: logger}
}

// Get handles GET /settings.
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	cfg, err := settings.LoadDeliveryConfig(r.Context(), h.store)
	if err != nil {
		h.logger.Error("settings: load failed", "error", err)
		jsonError(w, "settings unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, settingsResponse{ServerURL: cfg.ServerURL, APIKeySet: cfg.APIKey != ""})
}

// Put handles PUT /settings.
func (h *SettingsHandler) Put(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	cfg := settings.DeliveryConfig{ServerURL: req.ServerURL, APIKey: req.APIKey}
	if err := settings.SaveDeliveryConfig(r.Context(), h.store, cfg); err != nil {
		if errors.Is(err, settings.ErrIncompleteConfig) {
			jsonError(w, "server_url and api_key are required", http.StatusBadRequest)
			return
		}
		h.logger.Error("settings: save failed", "error", err)
		jsonError(w, "settings unavailable", http.StatusServiceUnavailable)
		return
	}

	subject := ""
	if claims, ok := middleware.AdminClaimsFromContext(r.Context()); ok {
		subject = claims.Subject
	}
	h.logger.Info("delivery settings updated", "admin", subject)

	saved, err := settings.LoadDeliveryConfig(r.Context(), h.store)
	if err != nil {
		h.logger.Error("settings: reload failed", "error", err)
		jsonError(w, "settings unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, settingsResponse{ServerURL: saved.ServerURL, APIKeySet: saved.APIKey != ""})
}

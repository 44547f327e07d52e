package settings

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Keys held in the settings store.
const (
	KeyServerURL    = "server_url"
	KeyAPIKey       = "api_key"
	KeyLastSync     = "last_sync"
	KeyIngestCursor = "ingest_cursor"
)

// ErrIncompleteConfig is returned when saving a config with an empty field.
var ErrIncompleteConfig = errors.New("settings: server url and api key are required")

// Store is the key/value contract shared by the settings backends.
// Get returns "" with a nil error for a key that was never set.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// DeliveryConfig is a point-in-time snapshot of the webhook credentials.
type DeliveryConfig struct {
	ServerURL string
	APIKey    string
}

// Complete reports whether both fields are present; delivery needs both.
func (c DeliveryConfig) Complete() bool {
	return c.ServerURL != "" && c.APIKey != ""
}

// SyncState holds the time of the last delivery attempt that got a response.
type SyncState struct {
	LastSyncMillis int64
}

// At returns the last sync time, or the zero time when never synced.
func (s SyncState) At() time.Time {
	if s.LastSyncMillis <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(s.LastSyncMillis).UTC()
}

// LoadDeliveryConfig reads a fresh credentials snapshot from store.
func LoadDeliveryConfig(ctx context.Context, store Store) (DeliveryConfig, error) {
	serverURL, err := store.Get(ctx, KeyServerURL)
	if err != nil {
		return DeliveryConfig{}, fmt.Errorf("settings: load server url: %w", err)
	}
	apiKey, err := store.Get(ctx, KeyAPIKey)
	if err != nil {
		return DeliveryConfig{}, fmt.Errorf("settings: load api key: %w", err)
	}
	return DeliveryConfig{ServerURL: serverURL, APIKey: apiKey}, nil
}

// SaveDeliveryConfig trims and stores the credentials. Both must be non-empty.
func SaveDeliveryConfig(ctx context.Context, store Store, cfg DeliveryConfig) error {
	serverURL := strings.TrimSpace(cfg.ServerURL)
	apiKey := strings.TrimSpace(cfg.APIKey)
	if serverURL == "" || apiKey == "" {
		return ErrIncompleteConfig
	}
	if err := store.Set(ctx, KeyServerURL, serverURL); err != nil {
		return fmt.Errorf("settings: save server url: %w", err)
	}
	if err := store.Set(ctx, KeyAPIKey, apiKey); err != nil {
		return fmt.Errorf("settings: save api key: %w", err)
	}
	return nil
}

// LoadSyncState reads last_sync. Missing or malformed values read as zero.
func LoadSyncState(ctx context.Context, store Store) (SyncState, error) {
	raw, err := store.Get(ctx, KeyLastSync)
	if err != nil {
		return SyncState{}, fmt.Errorf("settings: load last sync: %w", err)
	}
	ms, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return SyncState{}, nil
	}
	return SyncState{LastSyncMillis: ms}, nil
}

// RecordSync overwrites last_sync with at. Concurrent writers race and the
// last write wins.
func RecordSync(ctx context.Context, store Store, at time.Time) error {
	if err := store.Set(ctx, KeyLastSync, strconv.FormatInt(at.UnixMilli(), 10)); err != nil {
		return fmt.Errorf("settings: record last sync: %w", err)
	}
	return nil
}

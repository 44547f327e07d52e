package bootstrap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/payment-sms-relay/internal/config"
	"github.com/wolfman30/payment-sms-relay/internal/queue"
	"github.com/wolfman30/payment-sms-relay/internal/settings"
	"github.com/wolfman30/payment-sms-relay/pkg/logging"
)

// BuildRedisClient returns a configured Redis client. When verify is true a
// ping is issued and a failure is returned.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, verify bool) (*redis.Client, error) {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil, errors.New("bootstrap: REDIS_ADDR is required")
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client, nil
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("bootstrap: redis ping: %w", err)
	}
	return client, nil
}

// BuildSettingsStore selects the settings backend named by SETTINGS_BACKEND.
// The returned cleanup releases any connection it opened.
func BuildSettingsStore(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (settings.Store, func(), error) {
	if cfg == nil {
		return nil, nil, errors.New("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	noop := func() {}

	switch cfg.SettingsBackend {
	case "", appconfig.SettingsBackendMemory:
		logger.Warn("using in-memory settings store; configuration is lost on restart")
		return settings.NewMemoryStore(), noop, nil

	case appconfig.SettingsBackendRedis:
		client, err := BuildRedisClient(ctx, cfg, true)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using redis settings store", "addr", cfg.RedisAddr, "prefix", cfg.SettingsPrefix)
		return settings.NewRedisStore(client, cfg.SettingsPrefix), func() { _ = client.Close() }, nil

	case appconfig.SettingsBackendPostgres:
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return nil, nil, errors.New("bootstrap: DATABASE_URL is required for the postgres settings backend")
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap: open postgres pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("bootstrap: postgres ping: %w", err)
		}
		logger.Info("using postgres settings store")
		return settings.NewPostgresStore(pool), pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("bootstrap: unknown settings backend %q", cfg.SettingsBackend)
	}
}

// SeedDeliverySettings writes SERVER_URL and API_KEY into the store when both
// are set in the environment. Values already in the store are overwritten.
func SeedDeliverySettings(ctx context.Context, store settings.Store, cfg *appconfig.Config, logger *logging.Logger) error {
	if cfg == nil || !cfg.HasSeedDelivery() {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if err := settings.SaveDeliveryConfig(ctx, store, settings.DeliveryConfig{
		ServerURL: cfg.SeedServerURL,
		APIKey:    cfg.SeedAPIKey,
	}); err != nil {
		return fmt.Errorf("bootstrap: seed delivery settings: %w", err)
	}
	logger.Info("delivery settings seeded from environment", "server_url", cfg.SeedServerURL)
	return nil
}

// BuildQueue returns the in-memory queue or an SQS queue on sqsClient.
func BuildQueue(cfg *appconfig.Config, sqsClient *sqs.Client) (queue.Queue, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	if cfg.UseMemoryQueue {
		return queue.NewMemoryQueue(cfg.QueueBuffer), nil
	}
	if strings.TrimSpace(cfg.SMSQueueURL) == "" {
		return nil, errors.New("bootstrap: SMS_QUEUE_URL is required when USE_MEMORY_QUEUE=false")
	}
	if sqsClient == nil {
		return nil, errors.New("bootstrap: sqs client is required when USE_MEMORY_QUEUE=false")
	}
	return queue.NewSQSQueue(sqsClient, cfg.SMSQueueURL), nil
}

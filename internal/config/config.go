package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Settings backends accepted by SETTINGS_BACKEND.
const (
	SettingsBackendMemory   = "memory"
	SettingsBackendRedis    = "redis"
	SettingsBackendPostgres = "postgres"
)

// Alert email providers accepted by ALERT_EMAIL_PROVIDER.
const (
	AlertProviderLog      = "log"
	AlertProviderSES      = "ses"
	AlertProviderSendGrid = "sendgrid"
)

// Config holds application configuration
type Config struct {
	Env            string
	Port           string
	LogLevel       string
	WorkerCount    int
	QueueBuffer    int
	UseMemoryQueue bool

	SettingsBackend string
	SettingsPrefix  string
	RedisAddr       string
	RedisPassword   string
	RedisTLS        bool
	DatabaseURL     string

	// Optional delivery settings seeded into the store at startup.
	SeedServerURL string
	SeedAPIKey    string

	IngestToken     string
	IngestRateLimit float64
	IngestRateBurst int
	AdminJWTSecret  string

	TermuxPollEnabled  bool
	TermuxPollInterval time.Duration
	TermuxPollLimit    int

	// Operator alerts for abandoned payment SMS
	AlertEmailTo       string
	AlertEmailFrom     string
	AlertEmailFromName string
	AlertProvider      string
	AlertMinInterval   time.Duration
	SendGridAPIKey     string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	SMSQueueURL         string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Env:            getEnv("ENV", "development"),
		Port:           getEnv("PORT", "8080"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		WorkerCount:    getEnvAsInt("WORKER_COUNT", 2),
		QueueBuffer:    getEnvAsInt("QUEUE_BUFFER", 128),
		UseMemoryQueue: getEnvAsBool("USE_MEMORY_QUEUE", true),

		SettingsBackend: strings.ToLower(strings.TrimSpace(getEnv("SETTINGS_BACKEND", SettingsBackendMemory))),
		SettingsPrefix:  getEnv("SETTINGS_PREFIX", "smsrelay:"),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisTLS:        getEnvAsBool("REDIS_TLS", false),
		DatabaseURL:     getEnv("DATABASE_URL", ""),

		SeedServerURL: strings.TrimSpace(getEnv("SERVER_URL", "")),
		SeedAPIKey:    strings.TrimSpace(getEnv("API_KEY", "")),

		IngestToken:     getEnv("INGEST_TOKEN", ""),
		IngestRateLimit: getEnvAsFloat("INGEST_RATE_LIMIT", 5),
		IngestRateBurst: getEnvAsInt("INGEST_RATE_BURST", 20),
		AdminJWTSecret:  getEnv("ADMIN_JWT_SECRET", ""),

		TermuxPollEnabled:  getEnvAsBool("TERMUX_POLL_ENABLED", false),
		TermuxPollInterval: getEnvAsDuration("TERMUX_POLL_INTERVAL", 15*time.Second),
		TermuxPollLimit:    getEnvAsInt("TERMUX_POLL_LIMIT", 50),

		AlertEmailTo:       strings.TrimSpace(getEnv("ALERT_EMAIL_TO", "")),
		AlertEmailFrom:     getEnv("ALERT_EMAIL_FROM", ""),
		AlertEmailFromName: getEnv("ALERT_EMAIL_FROM_NAME", "Payment SMS Relay"),
		AlertProvider:      strings.ToLower(strings.TrimSpace(getEnv("ALERT_EMAIL_PROVIDER", AlertProviderLog))),
		AlertMinInterval:   getEnvAsDuration("ALERT_MIN_INTERVAL", 15*time.Minute),
		SendGridAPIKey:     getEnv("SENDGRID_API_KEY", ""),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		SMSQueueURL:         getEnv("SMS_QUEUE_URL", ""),
	}
}

// HasSeedDelivery reports whether both SERVER_URL and API_KEY were provided.
func (c *Config) HasSeedDelivery() bool {
	return c.SeedServerURL != "" && c.SeedAPIKey != ""
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration loaded from environment variables.
// Broker credentials are NOT configured here. They live encrypted in the
// broker_configs table and are managed at runtime.
type Config struct {
	// Infrastructure
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	MetricsAddr   string
	EventsAddr    string

	// Credential encryption key (base64, 32 bytes decoded)
	EncryptionKey string

	// Instrument master
	InstrumentCachePath string
	InstrumentCacheTTL  time.Duration

	// Resolver overrides (optional YAML file with extra aliases / routing)
	ResolverConfigPath string

	// Reconciliation
	ReconcileInterval time.Duration

	// Notifications
	TelegramBotToken string
	TelegramChatID   string
	WebhookURL       string

	// Paper trading
	PaperSlippageBps int64
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		SQLitePath:    getEnv("SQLITE_PATH", "data/signaltrader.db"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		EventsAddr:    getEnv("EVENTS_ADDR", ":8081"),

		EncryptionKey: getEnv("ENCRYPTION_KEY", ""),

		InstrumentCachePath: getEnv("INSTRUMENT_CACHE_PATH", "data/scripmaster.json"),
		InstrumentCacheTTL:  getEnvDuration("INSTRUMENT_CACHE_TTL", 24*time.Hour),

		ResolverConfigPath: getEnv("RESOLVER_CONFIG", ""),

		ReconcileInterval: getEnvDuration("RECONCILE_INTERVAL", 30*time.Second),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		WebhookURL:       getEnv("WEBHOOK_URL", ""),

		PaperSlippageBps: getEnvInt64("PAPER_SLIPPAGE_BPS", 5),
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Printf("[config] invalid value for %s: %q, using default", key, v)
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[config] invalid duration for %s: %q, using default", key, v)
		return fallback
	}
	return d
}

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"campreg/internal/database"
	"campreg/internal/external"
	"campreg/internal/messaging"
	"campreg/internal/models"
	"campreg/internal/service"
)

// Config holds the full application configuration.
type Config struct {
	Port           string
	GinMode        string
	LogLevel       string
	LogFormat      string
	RequestTimeout time.Duration

	Database database.Config
	NATS     messaging.Config
	Pretix   external.PretixConfig
	Retry    service.RetryConfig

	ValkeyAddr     string
	ValkeyPassword string

	// Identity keyword overrides; empty slices keep the built-in tables.
	PrimaryKeywords   []string
	SecondaryKeywords []string

	CleanupInterval    time.Duration
	CleanupMaxAgeHours int
}

// Load reads configuration from the environment, with a .env file as
// fallback for local development.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:           getEnv("PORT", "8080"),
		GinMode:        getEnv("GIN_MODE", "debug"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		RequestTimeout: time.Duration(getEnvInt("REQUEST_TIMEOUT_SEC", 30)) * time.Second,

		Database: database.Config{
			Host:               getEnv("DB_HOST", "localhost"),
			Port:               getEnvInt("DB_PORT", 5432),
			User:               getEnv("DB_USER", "campreg"),
			Password:           getEnv("DB_PASSWORD", "campreg123"),
			DBName:             getEnv("DB_NAME", "campreg"),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetimeMin: getEnvInt("DB_CONN_MAX_LIFETIME_MIN", 5),
			ConnMaxIdleTimeMin: getEnvInt("DB_CONN_MAX_IDLE_TIME_MIN", 1),
		},

		NATS: messaging.Config{
			URL:       getEnv("NATS_URL", "nats://localhost:4222"),
			ClusterID: getEnv("NATS_CLUSTER_ID", "campreg"),
			ClientID:  getEnv("NATS_CLIENT_ID", "campreg-api"),
		},

		Pretix: external.PretixConfig{
			BaseURL:   getEnv("PRETIX_URL", "https://tickets.example.org"),
			Organizer: getEnv("PRETIX_ORGANIZER", "summercamp"),
			APIToken:  getEnv("PRETIX_API_TOKEN", ""),
			Timeout:   time.Duration(getEnvInt("PRETIX_TIMEOUT_SEC", 30)) * time.Second,
			CacheTTL:  time.Duration(getEnvInt("PRETIX_CACHE_TTL_SEC", 300)) * time.Second,
		},

		Retry: service.RetryConfig{
			MaxRetries:        getEnvInt("RETRY_MAX_ATTEMPTS", 5),
			BaseDelay:         time.Duration(getEnvInt("RETRY_BASE_DELAY_MS", 1000)) * time.Millisecond,
			BackoffMultiplier: getEnvFloat("RETRY_BACKOFF_MULTIPLIER", 2),
			MaxDelay:          time.Duration(getEnvInt("RETRY_MAX_DELAY_MS", 30000)) * time.Millisecond,
		},

		ValkeyAddr:     getEnv("VALKEY_ADDR", ""),
		ValkeyPassword: getEnv("VALKEY_PASSWORD", ""),

		PrimaryKeywords:   getEnvList("IDENTITY_PRIMARY_KEYWORDS"),
		SecondaryKeywords: getEnvList("IDENTITY_SECONDARY_KEYWORDS"),

		CleanupInterval:    time.Duration(getEnvInt("RETRY_CLEANUP_INTERVAL_SEC", 600)) * time.Second,
		CleanupMaxAgeHours: getEnvInt("RETRY_CLEANUP_MAX_AGE_HOURS", 24),
	}
}

// IdentityKeywords builds the resolver override table from the config lists.
func (c *Config) IdentityKeywords() map[models.IdentityTag][]string {
	overrides := make(map[models.IdentityTag][]string)
	if len(c.PrimaryKeywords) > 0 {
		overrides[models.IdentityPrimary] = c.PrimaryKeywords
	}
	if len(c.SecondaryKeywords) > 0 {
		overrides[models.IdentitySecondary] = c.SecondaryKeywords
	}
	return overrides
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

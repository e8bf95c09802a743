package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates everything main needs to wire the process.
type Config struct {
	Server   Server
	Postgres Postgres
	Redis    Redis
	Kafka    Kafka
	JWT      JWT
	Survey   Survey
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// Postgres captures database connection settings. An empty DSN selects the
// in-memory stores (local development and tests).
type Postgres struct {
	DSN string
}

// Redis captures cache and tracker connection settings. An empty URL
// disables Redis and selects in-memory fallbacks.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka captures event broker settings. Empty brokers disable publishing.
type Kafka struct {
	Brokers []string
	Topic   string
}

// JWT captures the member token validation settings.
type JWT struct {
	SigningKey string
	Issuer     string
}

// Survey captures the domain-level knobs.
type Survey struct {
	// ParticipationRetention bounds how long attempt counters and submitted
	// responses are kept before expiry sweeps retire them.
	ParticipationRetention time.Duration
	// AnonymousHashSalt feeds the anonymous participant hash derivation.
	AnonymousHashSalt string
}

// FromEnv builds the full configuration from environment variables so main
// stays lean. Every value has a development default.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:            envOr("REFAHI_ADDR", ":8080"),
			ShutdownTimeout: envDuration("REFAHI_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Postgres: Postgres{
			DSN: os.Getenv("REFAHI_POSTGRES_DSN"),
		},
		Redis: Redis{
			URL:          os.Getenv("REFAHI_REDIS_URL"),
			PoolSize:     envInt("REFAHI_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REFAHI_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("REFAHI_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REFAHI_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REFAHI_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers: splitNonEmpty(os.Getenv("REFAHI_KAFKA_BROKERS")),
			Topic:   envOr("REFAHI_KAFKA_TOPIC", "refahi.survey.events"),
		},
		JWT: JWT{
			// Development default; override in production.
			SigningKey: envOr("REFAHI_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			Issuer:     envOr("REFAHI_JWT_ISSUER", "refahi"),
		},
		Survey: Survey{
			ParticipationRetention: envDuration("REFAHI_PARTICIPATION_RETENTION", 90*24*time.Hour),
			AnonymousHashSalt:      envOr("REFAHI_ANON_SALT", "dev-anonymous-salt"),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitNonEmpty(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

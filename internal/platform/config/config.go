package config

import (
	"os"
	"strings"
	"time"
)

// Config captures process-level configuration for the server.
type Config struct {
	Addr          string
	JWTSigningKey string

	// DatabaseURL selects the Postgres-backed stores; when empty the
	// server runs on in-memory stores (dev and test mode).
	DatabaseURL string

	Redis RedisConfig

	// KafkaBrokers enables the audit event publisher when non-empty.
	KafkaBrokers []string
	KafkaTopic   string

	// StreamHeartbeat is the interval between keep-alive pings sent to
	// each connected result-stream observer.
	StreamHeartbeat time.Duration
}

// RedisConfig controls the optional result-stream relay.
type RedisConfig struct {
	URL          string
	Channel      string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	addr := os.Getenv("PADDOCK_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	heartbeat := 30 * time.Second
	if raw := os.Getenv("STREAM_HEARTBEAT"); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil && parsed > 0 {
			heartbeat = parsed
		}
	}

	var brokers []string
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		for _, b := range strings.Split(raw, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
	}
	topic := os.Getenv("KAFKA_AUDIT_TOPIC")
	if topic == "" {
		topic = "paddock.audit"
	}

	channel := os.Getenv("REDIS_STREAM_CHANNEL")
	if channel == "" {
		channel = "paddock.results"
	}

	return Config{
		Addr:          addr,
		JWTSigningKey: jwtSigningKey,
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			Channel:      channel,
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		KafkaBrokers:    brokers,
		KafkaTopic:      topic,
		StreamHeartbeat: heartbeat,
	}
}

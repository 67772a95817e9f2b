package config

import (
	"os"
	"strings"
	"time"
)

// Config captures process-level configuration for the sale server.
type Config struct {
	Addr          string
	JWTSigningKey string

	// StoreBackend selects the keyed-store implementation: memory,
	// postgres, or redis.
	StoreBackend string
	DatabaseURL  string
	Redis        RedisConfig

	KafkaBrokers []string
	KafkaTopic   string
}

// RedisConfig holds connection tuning for the Redis-backed store.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	addr := os.Getenv("FAIR_LAUNCH_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	backend := os.Getenv("FAIR_LAUNCH_STORE")
	if backend == "" {
		backend = "memory"
	}

	var brokers []string
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		brokers = strings.Split(raw, ",")
	}
	topic := os.Getenv("KAFKA_TOPIC")
	if topic == "" {
		topic = "fairlaunch.events"
	}

	return Config{
		Addr:          addr,
		JWTSigningKey: jwtSigningKey,
		StoreBackend:  backend,
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		KafkaBrokers: brokers,
		KafkaTopic:   topic,
	}
}

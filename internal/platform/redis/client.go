package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"fairlaunch/internal/platform/config"
)

// Client wraps the go-redis client backing the Redis keyed record store.
type Client struct {
	*redis.Client
}

// New connects to the Redis instance named by the configuration and verifies
// it is reachable before handing it to the store. Returns nil when no URL is
// configured, in which case cmd/server falls back to another backend.
func New(cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	// Tuning from config wins over anything encoded in the URL. Record
	// reads and writes are tiny, so short IO timeouts are enough.
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{Client: client}, nil
}

// Health reports whether the connection still answers, for readiness checks.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.Client.Close()
}

package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps the Redis operations used for shared ledger read caching.
type Client struct {
	rdb    *redis.Client
	prefix string
}

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// NewClient creates a new Redis client and verifies the connection.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb, prefix: "paywatch"}, nil
}

// Ping checks connectivity for health reporting.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) decimalsKey(key string) string {
	return fmt.Sprintf("%s:decimals:%s", c.prefix, key)
}

// GetDecimals returns a cached token precision.
func (c *Client) GetDecimals(ctx context.Context, key string) (int32, bool, error) {
	val, err := c.rdb.Get(ctx, c.decimalsKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get failed: %w", err)
	}
	n, err := strconv.ParseInt(val, 10, 32)
	if err != nil {
		return 0, false, fmt.Errorf("invalid cached decimals %q: %w", val, err)
	}
	return int32(n), true, nil
}

// SetDecimals caches a token precision with a TTL.
func (c *Client) SetDecimals(ctx context.Context, key string, decimals int32, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, c.decimalsKey(key), strconv.FormatInt(int64(decimals), 10), ttl).Err(); err != nil {
		return fmt.Errorf("set failed: %w", err)
	}
	return nil
}

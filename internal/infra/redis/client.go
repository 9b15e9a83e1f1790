// Package redis backs the page-URL annotations and the cross-process claim
// lock with a shared Redis instance.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// Client wraps the Redis connection shared by the repositories below.
type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client and verifies connectivity.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Health verifies the connection is alive.
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

const pagesKey = "slot_pages"

// PageRepo stores slot-to-page-URL mappings in a single Redis hash.
type PageRepo struct {
	client *Client
}

// NewPageRepo creates a Redis-backed page repository.
func NewPageRepo(client *Client) *PageRepo {
	return &PageRepo{client: client}
}

// Set stores the page URL for a slot. Empty url deletes the mapping.
func (r *PageRepo) Set(ctx context.Context, slotID, url string) error {
	if url == "" {
		if err := r.client.rdb.HDel(ctx, pagesKey, slotID).Err(); err != nil {
			return fmt.Errorf("hdel failed: %w", err)
		}
		return nil
	}
	if err := r.client.rdb.HSet(ctx, pagesKey, slotID, url).Err(); err != nil {
		return fmt.Errorf("hset failed: %w", err)
	}
	return nil
}

// Get returns the page URL for a slot, "" when unset.
func (r *PageRepo) Get(ctx context.Context, slotID string) (string, error) {
	url, err := r.client.rdb.HGet(ctx, pagesKey, slotID).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("hget failed: %w", err)
	}
	return url, nil
}

// GetMany returns the mappings present for the given slot ids.
func (r *PageRepo) GetMany(ctx context.Context, slotIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(slotIDs))
	if len(slotIDs) == 0 {
		return out, nil
	}
	vals, err := r.client.rdb.HMGet(ctx, pagesKey, slotIDs...).Result()
	if err != nil {
		return nil, fmt.Errorf("hmget failed: %w", err)
	}
	for i, v := range vals {
		if s, ok := v.(string); ok && s != "" {
			out[slotIDs[i]] = s
		}
	}
	return out, nil
}

// All returns every mapping.
func (r *PageRepo) All(ctx context.Context) (map[string]string, error) {
	vals, err := r.client.rdb.HGetAll(ctx, pagesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall failed: %w", err)
	}
	return vals, nil
}

// Locker implements a best-effort distributed lock via SET NX.
type Locker struct {
	client *Client
}

// NewLocker creates a Redis-backed locker.
func NewLocker(client *Client) *Locker {
	return &Locker{client: client}
}

// Acquire takes the lock, returning false when another holder has it. The TTL
// bounds how long a crashed holder can block others.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.client.rdb.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx failed: %w", err)
	}
	return ok, nil
}

// Release frees the lock.
func (l *Locker) Release(ctx context.Context, key string) error {
	if err := l.client.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("del failed: %w", err)
	}
	return nil
}

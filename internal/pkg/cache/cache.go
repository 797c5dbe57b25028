// Package cache provides the membership read cache.
//
// Entries expire after the configured TTL, which bounds how stale an
// IsMember answer can be when another process changed the membership.
// Writers in this process overwrite the entry right after commit.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrInvalidKey is returned when a challenge or user id is empty.
var ErrInvalidKey = errors.New("cache: invalid key")

// MembershipCache stores membership answers keyed by (challenge, user).
type MembershipCache interface {
	// Get returns found=false on a miss.
	Get(ctx context.Context, challengeID, userID string) (member, found bool, err error)
	Set(ctx context.Context, challengeID, userID string, member bool) error
	Close() error
}

// Key returns the redis key of a membership entry.
func Key(challengeID, userID string) string {
	return fmt.Sprintf("ledger:membership:%s:%s", challengeID, userID)
}

// RedisCache implements MembershipCache on redis.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ MembershipCache = (*RedisCache)(nil)

// NewRedisCache connects to redis and verifies the connection.
func NewRedisCache(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client, ttl: ttl}, nil
}

// Get reads a cached membership answer.
func (c *RedisCache) Get(ctx context.Context, challengeID, userID string) (bool, bool, error) {
	if challengeID == "" || userID == "" {
		return false, false, ErrInvalidKey
	}

	val, err := c.client.Get(ctx, Key(challengeID, userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, false, nil
		}
		return false, false, err
	}
	return val == "1", true, nil
}

// Set stores a membership answer for the configured TTL.
func (c *RedisCache) Set(ctx context.Context, challengeID, userID string, member bool) error {
	if challengeID == "" || userID == "" {
		return ErrInvalidKey
	}

	val := "0"
	if member {
		val = "1"
	}
	return c.client.Set(ctx, Key(challengeID, userID), val, c.ttl).Err()
}

// Close closes the redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Nop is a MembershipCache that never hits.
type Nop struct{}

var _ MembershipCache = Nop{}

func (Nop) Get(context.Context, string, string) (bool, bool, error) { return false, false, nil }
func (Nop) Set(context.Context, string, string, bool) error         { return nil }
func (Nop) Close() error                                            { return nil }

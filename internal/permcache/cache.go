// Package permcache caches resolved note access in Redis so hot permission
// checks avoid a database round trip. Invalidation bumps a per-note version
// counter, which orphans every cached entry for that note at once.
package permcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Access is the cached outcome of a permission check.
type Access struct {
	HasAccess bool    `json:"hasAccess"`
	Role      *string `json:"role"`
}

type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to Redis and verifies the connection before returning.
func New(redisURL string, ttl time.Duration) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Cache{client: client, ttl: ttl}, nil
}

// NewWithClient builds a cache around an existing Redis client.
func NewWithClient(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) versionKey(noteID string) string {
	return "accver:" + noteID
}

// entryKey embeds the note's current version, so bumping the version makes
// every older entry unreachable without scanning keys.
func (c *Cache) entryKey(version int64, noteID, userID string) string {
	return "acc:" + strconv.FormatInt(version, 10) + ":" + noteID + ":" + userID
}

func (c *Cache) version(ctx context.Context, noteID string) (int64, error) {
	raw, err := c.client.Get(ctx, c.versionKey(noteID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get note version: %w", err)
	}
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse note version: %w", err)
	}
	return version, nil
}

// Get returns the cached access for (noteID, userID), or ok=false on a miss.
// A nil Cache always misses, so callers can run without Redis configured.
func (c *Cache) Get(ctx context.Context, noteID, userID string) (Access, bool, error) {
	if c == nil {
		return Access{}, false, nil
	}
	version, err := c.version(ctx, noteID)
	if err != nil {
		return Access{}, false, err
	}
	raw, err := c.client.Get(ctx, c.entryKey(version, noteID, userID)).Result()
	if errors.Is(err, redis.Nil) {
		return Access{}, false, nil
	}
	if err != nil {
		return Access{}, false, fmt.Errorf("get cached access: %w", err)
	}
	var access Access
	if err := json.Unmarshal([]byte(raw), &access); err != nil {
		return Access{}, false, fmt.Errorf("unmarshal cached access: %w", err)
	}
	return access, true, nil
}

// Put stores the resolved access for (noteID, userID) under the note's
// current version.
func (c *Cache) Put(ctx context.Context, noteID, userID string, access Access) error {
	if c == nil {
		return nil
	}
	version, err := c.version(ctx, noteID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(access)
	if err != nil {
		return fmt.Errorf("marshal access: %w", err)
	}
	if err := c.client.Set(ctx, c.entryKey(version, noteID, userID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("set cached access: %w", err)
	}
	return nil
}

// Invalidate drops every cached entry for the note by bumping its version.
func (c *Cache) Invalidate(ctx context.Context, noteID string) error {
	if c == nil {
		return nil
	}
	if err := c.client.Incr(ctx, c.versionKey(noteID)).Err(); err != nil {
		return fmt.Errorf("bump note version: %w", err)
	}
	return nil
}

func (c *Cache) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.client.Ping(ctx).Err()
}

func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

package redisx

import (
    "context"
    "crypto/sha1"
    "encoding/hex"
    "errors"
    "log/slog"
    "time"

    "github.com/redis/go-redis/v9"
)

const (
    visitedPrefix = "listing:visited:"
    recentKey     = "listing:recent"
)

type Client struct {
    Rdb *redis.Client
    // VisitedTTL bounds how long a handed-out detail page is skipped.
    VisitedTTL time.Duration
    // RecentMax caps the recent-listing set.
    RecentMax int64
}

func New(addr string, password string, db int) *Client {
    rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
    return &Client{Rdb: rdb, VisitedTTL: 24 * time.Hour, RecentMax: 500}
}

func (c *Client) Ping(ctx context.Context) error {
    return c.Rdb.Ping(ctx).Err()
}

func (c *Client) Close() error { return c.Rdb.Close() }

// Get reports ok=false on a cache miss rather than an error.
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
    v, err := c.Rdb.Get(ctx, key).Result()
    if errors.Is(err, redis.Nil) { return "", false, nil }
    if err != nil { return "", false, err }
    return v, true, nil
}

func (c *Client) Set(ctx context.Context, key string, val string, ttl time.Duration) error {
    return c.Rdb.Set(ctx, key, val, ttl).Err()
}

func (c *Client) Del(ctx context.Context, key string) error {
    return c.Rdb.Del(ctx, key).Err()
}

func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
    n, err := c.Rdb.Exists(ctx, key).Result()
    return n == 1, err
}

func (c *Client) SetNX(ctx context.Context, key string, val string, ttl time.Duration) (bool, error) {
    return c.Rdb.SetNX(ctx, key, val, ttl).Result()
}

// MarkVisited and Visited back discovery's visited set. Redis failures
// are logged and treated as "not visited" so a cache outage never
// blocks a round.
func (c *Client) MarkVisited(ctx context.Context, url string) {
    if err := c.Rdb.Set(ctx, visitedKey(url), "1", c.VisitedTTL).Err(); err != nil {
        slog.Warn("redis mark visited failed", "error", err)
    }
}

func (c *Client) Visited(ctx context.Context, url string) bool {
    ok, err := c.Exists(ctx, visitedKey(url))
    if err != nil {
        slog.Warn("redis visited lookup failed", "error", err)
        return false
    }
    return ok
}

// AddRecent records a stored listing id, scored by time, and trims the
// set to RecentMax newest entries.
func (c *Client) AddRecent(ctx context.Context, id string, at time.Time) error {
    pipe := c.Rdb.TxPipeline()
    pipe.ZAdd(ctx, recentKey, redis.Z{Score: float64(at.Unix()), Member: id})
    if c.RecentMax > 0 {
        pipe.ZRemRangeByRank(ctx, recentKey, 0, -c.RecentMax-1)
    }
    _, err := pipe.Exec(ctx)
    return err
}

// RandomRecent returns one recent listing id, ok=false when none exist.
func (c *Client) RandomRecent(ctx context.Context) (string, bool, error) {
    ids, err := c.Rdb.ZRandMember(ctx, recentKey, 1).Result()
    if err != nil { return "", false, err }
    if len(ids) == 0 { return "", false, nil }
    return ids[0], true, nil
}

func (c *Client) RemoveRecent(ctx context.Context, id string) error {
    return c.Rdb.ZRem(ctx, recentKey, id).Err()
}

func visitedKey(url string) string {
    sum := sha1.Sum([]byte(url))
    return visitedPrefix + hex.EncodeToString(sum[:])
}

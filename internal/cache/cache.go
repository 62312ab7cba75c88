package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/insites-io/module-ai/internal/logx"
	"github.com/insites-io/module-ai/internal/metrics"
)

const keyPrefix = "crm:cache:"

// Cache is a Redis-backed response cache keyed by normalized query and
// instance URL. All methods are safe on a nil receiver, which behaves as a
// disabled cache; failures degrade to cache misses and never fail a request.
type Cache struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

type entry struct {
	Query       string    `json:"query"`
	Response    string    `json:"response"`
	InstanceURL string    `json:"instance_url"`
	CachedAt    time.Time `json:"cached_at"`
}

// New connects to Redis at addr (host:port or a redis:// / rediss:// URL)
// and verifies the connection.
func New(addr string, ttl time.Duration) (*Cache, error) {
	var opts *redis.Options
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, err
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: addr}
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return &Cache{rdb: rdb, ttl: ttl}, nil
}

// Get returns the cached response for the query, if any.
func (c *Cache) Get(ctx context.Context, query, instanceURL string) (string, bool) {
	if c == nil {
		return "", false
	}
	b, err := c.rdb.Get(ctx, cacheKey(query, instanceURL)).Bytes()
	if err != nil {
		if err != redis.Nil {
			logx.Log.Warn().Err(err).Msg("cache read failed")
		}
		metrics.RecordCacheLookup(false)
		return "", false
	}
	var e entry
	if err := json.Unmarshal(b, &e); err != nil {
		metrics.RecordCacheLookup(false)
		return "", false
	}
	metrics.RecordCacheLookup(true)
	return e.Response, true
}

// Put stores a response under the query's key with the configured TTL.
func (c *Cache) Put(ctx context.Context, query, instanceURL, response string) {
	if c == nil {
		return
	}
	b, err := json.Marshal(entry{
		Query:       query,
		Response:    response,
		InstanceURL: instanceURL,
		CachedAt:    time.Now().UTC(),
	})
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, cacheKey(query, instanceURL), b, c.ttl).Err(); err != nil {
		logx.Log.Warn().Err(err).Msg("cache write failed")
	}
}

// Clear removes all cached responses and returns how many were dropped.
func (c *Cache) Clear(ctx context.Context) int {
	if c == nil {
		return 0
	}
	keys, err := c.rdb.Keys(ctx, keyPrefix+"*").Result()
	if err != nil || len(keys) == 0 {
		return 0
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		logx.Log.Warn().Err(err).Msg("cache clear failed")
		return 0
	}
	return len(keys)
}

// Stats reports whether the cache is enabled and how many entries it holds.
func (c *Cache) Stats(ctx context.Context) (enabled bool, keys int) {
	if c == nil {
		return false, 0
	}
	ks, err := c.rdb.Keys(ctx, keyPrefix+"*").Result()
	if err != nil {
		return true, 0
	}
	return true, len(ks)
}

// Close releases the Redis connection.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.rdb.Close()
}

func cacheKey(query, instanceURL string) string {
	h := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(query)) + "\x00" + instanceURL))
	return keyPrefix + hex.EncodeToString(h[:])[:16]
}

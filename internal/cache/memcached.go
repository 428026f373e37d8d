package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

const (
	maxMemcachedKeyLen = 250
	maxRelativeExp     = 30 * 24 * time.Hour
)

// MemcachedCache implements Cache using memcached. Memcached does not expose
// remaining TTL, so each value is stored in an envelope recording when it was
// written and for how long.
type MemcachedCache struct {
	client *memcache.Client
	prefix string
	now    func() time.Time
}

type memcachedEnvelope struct {
	Value      []byte `json:"value"`
	StoredAtMs int64  `json:"stored_at_ms"`
	TTLMs      int64  `json:"ttl_ms"`

	foreign bool
}

func (e memcachedEnvelope) expiresAt() time.Time {
	return time.UnixMilli(e.StoredAtMs + e.TTLMs)
}

// NewMemcachedCache creates a MemcachedCache. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and maxIdleConns
// configure the client; both use package defaults if zero.
func NewMemcachedCache(addrs, prefix string, timeout time.Duration, maxIdleConns int) *MemcachedCache {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedCache{client: client, prefix: prefix, now: time.Now}
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// key applies the prefix and hashes keys memcached would reject for length.
func (c *MemcachedCache) key(k string) string {
	full := c.prefix + k
	if len(full) <= maxMemcachedKeyLen && !strings.ContainsAny(full, " \t\r\n") {
		return full
	}
	sum := sha256.Sum256([]byte(full))
	return c.prefix + "sha256:" + hex.EncodeToString(sum[:])
}

func (c *MemcachedCache) load(ctx context.Context, key string) (memcachedEnvelope, bool, error) {
	if err := ctx.Err(); err != nil {
		return memcachedEnvelope{}, false, err
	}
	item, err := c.client.Get(c.key(key))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return memcachedEnvelope{}, false, nil
		}
		return memcachedEnvelope{}, false, fmt.Errorf("memcached get: %w", err)
	}
	var env memcachedEnvelope
	if err := json.Unmarshal(item.Value, &env); err != nil {
		// Not written by this cache. Hand the bytes back so callers see an
		// undecodable entry and overwrite it.
		return memcachedEnvelope{Value: item.Value, foreign: true}, true, nil
	}
	if !c.now().Before(env.expiresAt()) {
		return memcachedEnvelope{}, false, nil
	}
	return env, true, nil
}

// Get implements Cache.Get. Returns false, nil on cache miss; false, err on error.
// Values stored without an envelope are returned as-is.
func (c *MemcachedCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	env, ok, err := c.load(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	return env.Value, true, nil
}

// Set implements Cache.Set.
func (c *MemcachedCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	now := c.now()
	raw, err := json.Marshal(memcachedEnvelope{
		Value:      value,
		StoredAtMs: now.UnixMilli(),
		TTLMs:      ttl.Milliseconds(),
	})
	if err != nil {
		return err
	}
	if err := c.client.Set(&memcache.Item{
		Key:        c.key(key),
		Value:      raw,
		Expiration: expiration(now, ttl),
	}); err != nil {
		return fmt.Errorf("memcached set: %w", err)
	}
	return nil
}

// expiration converts ttl to memcached's format: relative seconds up to 30
// days, an absolute unix time beyond that.
func expiration(now time.Time, ttl time.Duration) int32 {
	if ttl > maxRelativeExp {
		return int32(now.Add(ttl).Unix())
	}
	sec := int32((ttl + time.Second - 1) / time.Second)
	if sec < 1 {
		sec = 1
	}
	return sec
}

// TTL implements Cache.TTL using the envelope's stored-at time. Values stored
// without an envelope report no TTL.
func (c *MemcachedCache) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	env, ok, err := c.load(ctx, key)
	if err != nil || !ok || env.foreign {
		return 0, false, err
	}
	return env.expiresAt().Sub(c.now()), true, nil
}

// Ping checks if memcached is reachable. Used for health checks.
func (c *MemcachedCache) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (c *MemcachedCache) Close() error {
	return c.client.Close()
}

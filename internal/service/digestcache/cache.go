// Package digestcache reuses finished digests for URLs that were summarized recently.
//
// Lookups check an in-process LRU first and then Redis. Keys are the SHA-256 of the
// normalized URL so arbitrary URLs map to fixed-size keys. Concurrent lookups for the
// same URL in one process share a single Redis round trip.
package digestcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/target/paper-digest/internal/core"
	"github.com/target/paper-digest/internal/domain/model"
	"github.com/target/paper-digest/internal/observability/statsd"
)

// Cache tiers and operations used as metric tags.
const (
	TierLocal = "local"
	TierRedis = "redis"

	OpHit   = "hit"
	OpMiss  = "miss"
	OpWrite = "write"
	OpError = "error"
)

// Options configures a Cache.
type Options struct {
	Redis core.CacheRepository // Optional: shared tier; nil keeps the cache process-local
	Local *LocalLRU            // Optional: defaults to a 256-entry LRU
	// TTL bounds how long a digest is reused. Zero disables the cache entirely.
	TTL     time.Duration
	Metrics statsd.Sink
	Logger  *slog.Logger
}

// Cache implements core.DigestCache.
type Cache struct {
	redis   core.CacheRepository
	local   *LocalLRU
	ttl     time.Duration
	metrics statsd.Sink
	logger  *slog.Logger
	group   singleflight.Group
}

var _ core.DigestCache = (*Cache)(nil)

// New constructs a Cache.
func New(opts Options) *Cache {
	local := opts.Local
	if local == nil {
		local = NewLocalLRU(LocalLRUConfig{})
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		redis:   opts.Redis,
		local:   local,
		ttl:     opts.TTL,
		metrics: opts.Metrics,
		logger:  logger.With("component", "digest_cache"),
	}
}

// Key returns the cache key for a URL.
func Key(rawURL string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(rawURL)))
	return hex.EncodeToString(sum[:])
}

// Lookup returns a cached digest for url. Cache failures are logged and reported as misses.
func (c *Cache) Lookup(ctx context.Context, url string) (*model.Digest, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	key := Key(url)

	if raw, ok := c.local.Get(key); ok {
		if d, ok := decode(raw); ok {
			c.emit(TierLocal, OpHit)
			return d, true
		}
	}
	c.emit(TierLocal, OpMiss)

	if c.redis == nil {
		return nil, false
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		return c.redis.Get(ctx, key)
	})
	if err != nil {
		c.emit(TierRedis, OpError)
		c.logger.WarnContext(ctx, "digest cache read failed", "error", err)
		return nil, false
	}
	raw, _ := v.([]byte)
	if raw == nil {
		c.emit(TierRedis, OpMiss)
		return nil, false
	}
	d, ok := decode(raw)
	if !ok {
		c.emit(TierRedis, OpError)
		return nil, false
	}
	c.emit(TierRedis, OpHit)
	c.local.Set(key, raw, c.ttl)
	return d, true
}

// Store caches a completed digest. Incomplete digests are ignored.
func (c *Cache) Store(ctx context.Context, url string, d model.Digest) {
	if c.ttl <= 0 || !d.Complete() {
		return
	}
	raw, err := json.Marshal(d)
	if err != nil {
		c.logger.WarnContext(ctx, "digest cache encode failed", "error", err)
		return
	}
	key := Key(url)
	c.local.Set(key, raw, c.ttl)
	c.emit(TierLocal, OpWrite)

	if c.redis == nil {
		return
	}
	if err := c.redis.Set(ctx, key, raw, c.ttl); err != nil {
		c.emit(TierRedis, OpError)
		c.logger.WarnContext(ctx, "digest cache write failed", "error", err)
		return
	}
	c.emit(TierRedis, OpWrite)
}

func decode(raw []byte) (*model.Digest, bool) {
	var d model.Digest
	if err := json.Unmarshal(raw, &d); err != nil || !d.Complete() {
		return nil, false
	}
	return &d, true
}

func (c *Cache) emit(tier, op string) {
	if c.metrics == nil {
		return
	}
	c.metrics.Count("digest_cache.op", 1, map[string]string{"tier": tier, "op": op})
}

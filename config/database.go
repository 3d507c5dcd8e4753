package config

import (
	"strings"
	"time"
)

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"                    envDefault:"localhost"`
	Port     int    `env:"PORT"                    envDefault:"5432"`
	User     string `env:"USER"                    envDefault:"paperdigest"`
	Password string `env:"PASSWORD"                envDefault:"paperdigest"`
	Name     string `env:"NAME"                    envDefault:"paperdigest"`
	SSLMode  string `env:"SSL_MODE"                envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// RedisConfig contains Redis configuration.
// Redis backs the digest cache and, when the gateway and worker run as separate
// processes, the terminal job event channel. It is optional for single-process deployments.
type RedisConfig struct {
	Enabled bool `env:"ENABLED" envDefault:"true"`
	// URI is host:port or a redis:// / rediss:// URL. A URL's password and DB win over
	// the fields below.
	URI      string `env:"URI"       envDefault:"localhost:6379"`
	Password string `env:"PASSWORD"  envDefault:""`
	DB       int    `env:"DB"        envDefault:"0"`
	PoolSize int    `env:"POOL_SIZE" envDefault:"10"`

	// EventChannel is the pub/sub channel carrying terminal job events.
	EventChannel string `env:"EVENT_CHANNEL" envDefault:"digest:job-events"`

	// CachePrefix namespaces digest cache keys.
	CachePrefix string `env:"CACHE_PREFIX" envDefault:"digest:cache:"`

	// CacheTTL controls how long a finished digest is reused for the same URL.
	// Zero disables the cache.
	CacheTTL time.Duration `env:"CACHE_TTL" envDefault:"24h"`
}

// Sanitize applies guardrails to Redis configuration values.
func (r *RedisConfig) Sanitize() {
	r.URI = strings.TrimSpace(r.URI)
	if r.URI == "" {
		r.Enabled = false
	}
	if strings.TrimSpace(r.EventChannel) == "" {
		r.EventChannel = "digest:job-events"
	}
	if strings.TrimSpace(r.CachePrefix) == "" {
		r.CachePrefix = "digest:cache:"
	}
	if r.DB < 0 {
		r.DB = 0
	}
	if r.PoolSize <= 0 {
		r.PoolSize = 10
	}
	if r.CacheTTL < 0 {
		r.CacheTTL = 0
	}
}

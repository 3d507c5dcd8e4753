package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/paper-digest/config"
	"github.com/target/paper-digest/internal/data"
)

const connectTimeout = 5 * time.Second

// DatabaseConfig carries what the digest_jobs store and the digest cache need to connect.
type DatabaseConfig struct {
	DBConfig    config.DBConfig
	RedisConfig config.RedisConfig
	Logger      *slog.Logger
}

// ConnectDB opens the Postgres pool holding digest_jobs and checks it answers.
func ConnectDB(cfg DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("pgx", postgresDSN(cfg.DBConfig))
	if err != nil {
		return nil, fmt.Errorf("open digest_jobs database: %w", err)
	}

	// The worker holds one connection per claim; the gateway's reads are short.
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if pingErr := db.PingContext(ctx); pingErr != nil {
		if closeErr := db.Close(); closeErr != nil {
			pingErr = errors.Join(pingErr, fmt.Errorf("close database: %w", closeErr))
		}
		return nil, fmt.Errorf("ping digest_jobs database %s/%s: %w", cfg.DBConfig.Host, cfg.DBConfig.Name, pingErr)
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("digest_jobs database connected",
			"host", cfg.DBConfig.Host,
			"port", cfg.DBConfig.Port,
			"database", cfg.DBConfig.Name,
		)
	}
	return db, nil
}

// postgresDSN builds a pgx URL; url.URL escapes credentials.
func postgresDSN(c config.DBConfig) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Name,
	}
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	q.Set("application_name", "paper-digest")
	u.RawQuery = q.Encode()
	return u.String()
}

// ConnectRedis opens the client behind the digest cache and the job event channel.
func ConnectRedis(cfg DatabaseConfig) (*redis.Client, error) {
	opts, err := redisOptions(cfg.RedisConfig)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if pingErr := client.Ping(ctx).Err(); pingErr != nil {
		if closeErr := client.Close(); closeErr != nil {
			pingErr = errors.Join(pingErr, fmt.Errorf("close redis client: %w", closeErr))
		}
		return nil, fmt.Errorf("ping digest cache redis %s: %w", opts.Addr, pingErr)
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("digest cache redis connected",
			"addr", opts.Addr,
			"db", opts.DB,
			"event_channel", cfg.RedisConfig.EventChannel,
		)
	}
	return client, nil
}

// redisOptions accepts a bare host:port or a redis:// / rediss:// URL. Values carried by
// the URL win over the separate password and DB settings.
func redisOptions(c config.RedisConfig) (*redis.Options, error) {
	uri := strings.TrimSpace(c.URI)
	if uri == "" {
		return nil, errors.New("digest cache redis: REDIS_URI is empty")
	}

	if !strings.HasPrefix(uri, "redis://") && !strings.HasPrefix(uri, "rediss://") {
		return &redis.Options{
			Addr:     uri,
			Password: c.Password,
			DB:       c.DB,
			PoolSize: c.PoolSize,
		}, nil
	}

	opts, err := redis.ParseURL(uri)
	if err != nil {
		return nil, fmt.Errorf("digest cache redis: parse REDIS_URI: %w", err)
	}
	if opts.Password == "" {
		opts.Password = c.Password
	}
	if opts.DB == 0 {
		opts.DB = c.DB
	}
	if c.PoolSize > 0 {
		opts.PoolSize = c.PoolSize
	}
	return opts, nil
}

// RunMigrations applies the digest_jobs schema.
func RunMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if err := data.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("migrate digest_jobs: %w", err)
	}
	if logger != nil {
		logger.InfoContext(ctx, "digest_jobs migrations applied")
	}
	return nil
}

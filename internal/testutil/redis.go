package testutil

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisCandidates are tried in order when neither TEST_REDIS_ADDR nor REDIS_ADDR is set.
var redisCandidates = []string{"localhost:56379", "localhost:6379", "redis:6379"}

// SetupTestRedis returns a client on a flushed Redis database reserved for this test.
// The test is skipped when no Redis answers, or fails with TEST_REQUIRE_REDIS or
// TEST_REQUIRE_INFRA set. The client is closed on cleanup.
func SetupTestRedis(t TestingTB) *redis.Client {
	t.Helper()

	addr, ok := findRedis(t)
	if !ok {
		if envBool("TEST_REQUIRE_REDIS") || envBool("TEST_REQUIRE_INFRA") {
			t.Fatal("redis not available for testing")
		}
		t.Skip("redis not available for testing")
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: reserveRedisDB(t, addr)})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.FlushDB(ctx).Err(); err != nil {
		closeQuietly(t, "redis client", client)
		t.Fatalf("flush test redis db: %v", err)
	}
	t.Cleanup(func() { closeQuietly(t, "redis client", client) })
	return client
}

func findRedis(t TestingTB) (string, bool) {
	t.Helper()
	candidates := redisCandidates
	for _, key := range []string{"TEST_REDIS_ADDR", "REDIS_ADDR"} {
		if v := os.Getenv(key); v != "" {
			candidates = []string{v}
			break
		}
	}
	for _, addr := range candidates {
		if pingRedis(addr) == nil {
			return addr, true
		}
	}
	t.Logf("no redis at %v", candidates)
	return "", false
}

func pingRedis(addr string) error {
	c := redis.NewClient(&redis.Options{Addr: addr})
	defer c.Close() //nolint:errcheck // short-lived ping client
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return c.Ping(ctx).Err()
}

// reserveRedisDB picks a database index so parallel packages do not flush each other.
// TEST_REDIS_DB wins; otherwise an index in 1..15 is claimed with a SETNX key in DB 0.
func reserveRedisDB(t TestingTB, addr string) int {
	if v := os.Getenv("TEST_REDIS_DB"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i >= 0 {
			return i
		}
		t.Logf("ignoring invalid TEST_REDIS_DB=%q", v)
	}

	meta := redis.NewClient(&redis.Options{Addr: addr})
	owner := fmt.Sprintf("%d:%d", os.Getpid(), time.Now().UnixNano())
	for i := 1; i <= 15; i++ {
		key := fmt.Sprintf("paperdigest:testutil:db_lock:%d", i)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		ok, err := meta.SetNX(ctx, key, owner, 30*time.Minute).Result()
		cancel()
		if err != nil || !ok {
			continue
		}
		t.Cleanup(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := meta.Del(ctx, key).Err(); err != nil {
				t.Logf("release redis db lock %s: %v", key, err)
			}
			closeQuietly(t, "redis meta client", meta)
		})
		return i
	}

	closeQuietly(t, "redis meta client", meta)
	t.Logf("no free redis db, using 1")
	return 1
}

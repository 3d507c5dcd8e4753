package data

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/paper-digest/internal/testutil"
)

func TestRedisCacheRepo_Set_Get_Delete(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	client := testutil.SetupTestRedis(t)

	repo := NewRedisCacheRepo(client, "digest:test:")
	ctx := context.Background()

	t.Run("set and get", func(t *testing.T) {
		value := []byte(`{"title":"t"}`)
		ttl := 5 * time.Minute

		require.NoError(t, repo.Set(ctx, "k1", value, ttl))

		result, err := repo.Get(ctx, "k1")
		require.NoError(t, err)
		assert.Equal(t, value, result)

		// Stored under the prefix.
		actualTTL := client.TTL(ctx, "digest:test:k1").Val()
		assert.True(t, actualTTL > 0 && actualTTL <= ttl)
	})

	t.Run("get missing key", func(t *testing.T) {
		result, err := repo.Get(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, result)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, repo.Set(ctx, "k2", []byte("x"), time.Minute))

		deleted, err := repo.Delete(ctx, "k2")
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = repo.Delete(ctx, "k2")
		require.NoError(t, err)
		assert.False(t, deleted)
	})

	t.Run("health", func(t *testing.T) {
		assert.NoError(t, repo.Health(ctx))
	})
}

func TestRedisCacheRepo_EmptyKey(t *testing.T) {
	// Validation fails before any command is sent, so no server is needed.
	repo := NewRedisCacheRepo(nil, "p:")
	ctx := context.Background()

	require.ErrorIs(t, repo.Set(ctx, "", []byte("v"), time.Minute), ErrCacheKeyEmpty)

	_, err := repo.Get(ctx, "")
	require.ErrorIs(t, err, ErrCacheKeyEmpty)

	_, err = repo.Delete(ctx, "")
	require.ErrorIs(t, err, ErrCacheKeyEmpty)
}

package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/backoffice/internal/domain"
)

func openRedisForTest(t *testing.T) *goredis.Client {
	t.Helper()

	addr := os.Getenv("BACKOFFICE_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client, err := Open(context.Background(), addr)
	if err != nil {
		t.Skipf("redis is not available for integration tests: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// testKey изолирует ключи параллельных прогонов.
func testKey(name string) string {
	return name + "-" + uuid.NewString()
}

func TestIdempotencyRepository_RedisCreateGetAndMarkDone(t *testing.T) {
	repo := NewIdempotencyRepository(openRedisForTest(t))
	ctx := context.Background()
	key := testKey("done")
	ttl := time.Now().UTC().Add(time.Hour).Round(time.Second)

	created, err := repo.CreateProcessing(ctx, key, "hash-1", ttl)
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusProcessing, created.Status)

	require.NoError(t, repo.MarkDone(ctx, key, []byte(`{"id":"o-1"}`), 201))

	got, err := repo.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusDone, got.Status)
	require.Equal(t, 201, got.HTTPStatus)
	require.JSONEq(t, `{"id":"o-1"}`, string(got.ResponseBody))
	require.True(t, got.TTLAt.Equal(ttl))
}

func TestIdempotencyRepository_RedisConflicts(t *testing.T) {
	repo := NewIdempotencyRepository(openRedisForTest(t))
	ctx := context.Background()
	key := testKey("conflict")
	ttl := time.Now().UTC().Add(time.Hour)

	_, err := repo.CreateProcessing(ctx, key, "hash-a", ttl)
	require.NoError(t, err)

	existing, err := repo.CreateProcessing(ctx, key, "hash-a", ttl)
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyAlreadyExists)
	require.Equal(t, domain.IdempotencyStatusProcessing, existing.Status)

	_, err = repo.CreateProcessing(ctx, key, "hash-b", ttl)
	require.ErrorIs(t, err, domain.ErrIdempotencyHashMismatch)
}

func TestIdempotencyRepository_RedisTTLAndDelete(t *testing.T) {
	client := openRedisForTest(t)
	repo := NewIdempotencyRepository(client)
	ctx := context.Background()
	key := testKey("ttl")

	_, err := repo.CreateProcessing(ctx, key, "hash", time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)

	ttl, err := client.TTL(ctx, keyPrefix+key).Result()
	require.NoError(t, err)
	require.Greater(t, ttl, 59*time.Minute)

	require.NoError(t, repo.MarkFailed(ctx, key, nil, 400))
	ttl, err = client.TTL(ctx, keyPrefix+key).Result()
	require.NoError(t, err)
	require.Greater(t, ttl, time.Duration(0), "mark must keep ttl")

	require.NoError(t, repo.Delete(ctx, key))
	_, err = repo.Get(ctx, key)
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)

	require.ErrorIs(t, repo.MarkDone(ctx, key, nil, 200), domain.ErrIdempotencyKeyNotFound)

	deleted, err := repo.DeleteExpired(ctx, time.Now(), 100)
	require.NoError(t, err)
	require.Zero(t, deleted)
}

func TestIdempotencyRepository_RedisValidation(t *testing.T) {
	repo := NewIdempotencyRepository(goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1"}))
	ctx := context.Background()

	_, err := repo.CreateProcessing(ctx, " ", "hash", time.Time{})
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyRequired)
	_, err = repo.CreateProcessing(ctx, "key", "", time.Time{})
	require.ErrorIs(t, err, domain.ErrIdempotencyRequestHashRequired)
	require.ErrorIs(t, repo.Delete(ctx, ""), domain.ErrIdempotencyKeyRequired)
}

func TestOpen_Unavailable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_, err := Open(ctx, "127.0.0.1:1")
	require.Error(t, err)
	_, err = Open(ctx, "")
	require.Error(t, err)
}

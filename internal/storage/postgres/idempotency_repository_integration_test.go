package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/backoffice/internal/domain"
)

func TestIdempotencyRepository_PostgresCreateAndMarkDone(t *testing.T) {
	repo := NewIdempotencyRepository(newIntegrationStore(t))
	ctx := context.Background()
	ttl := time.Now().UTC().Add(2 * time.Hour).Round(time.Second)

	created, err := repo.CreateProcessing(ctx, " idem-done ", "req-hash-1", ttl)
	require.NoError(t, err)
	require.Equal(t, "idem-done", created.Key)
	require.Equal(t, domain.IdempotencyStatusProcessing, created.Status)
	require.Empty(t, created.ResponseBody)

	require.NoError(t, repo.MarkDone(ctx, "idem-done", []byte(`{"result":"ok"}`), 201))

	got, err := repo.Get(ctx, "idem-done")
	require.NoError(t, err)
	require.Equal(t, "req-hash-1", got.RequestHash)
	require.Equal(t, domain.IdempotencyStatusDone, got.Status)
	require.Equal(t, 201, got.HTTPStatus)
	require.JSONEq(t, `{"result":"ok"}`, string(got.ResponseBody))
	require.True(t, got.TTLAt.Equal(ttl), "ttl mismatch: expected %s, got %s", ttl, got.TTLAt)
}

func TestIdempotencyRepository_PostgresDefaultTTL(t *testing.T) {
	repo := NewIdempotencyRepository(newIntegrationStore(t))

	created, err := repo.CreateProcessing(context.Background(), "idem-default-ttl", "hash", time.Time{})
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().UTC().Add(defaultIdempotencyTTL), created.TTLAt, time.Minute)
}

func TestIdempotencyRepository_PostgresConflictAndHashMismatch(t *testing.T) {
	repo := NewIdempotencyRepository(newIntegrationStore(t))
	ctx := context.Background()
	ttl := time.Now().UTC().Add(time.Hour)

	_, err := repo.CreateProcessing(ctx, "idem-conflict", "req-hash-a", ttl)
	require.NoError(t, err)

	existing, err := repo.CreateProcessing(ctx, "idem-conflict", "req-hash-a", ttl)
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyAlreadyExists)
	require.Equal(t, "req-hash-a", existing.RequestHash)

	_, err = repo.CreateProcessing(ctx, "idem-conflict", "req-hash-b", ttl)
	require.ErrorIs(t, err, domain.ErrIdempotencyHashMismatch)
}

func TestIdempotencyRepository_PostgresValidatesInput(t *testing.T) {
	repo := NewIdempotencyRepository(newIntegrationStore(t))
	ctx := context.Background()

	_, err := repo.CreateProcessing(ctx, " ", "hash", time.Time{})
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyRequired)
	_, err = repo.CreateProcessing(ctx, "key", " ", time.Time{})
	require.ErrorIs(t, err, domain.ErrIdempotencyRequestHashRequired)
	require.ErrorIs(t, repo.MarkDone(ctx, "missing", nil, 200), domain.ErrIdempotencyKeyNotFound)
	require.NoError(t, repo.Delete(ctx, "missing"))
}

func TestIdempotencyRepository_PostgresDeleteExpiredOldestFirst(t *testing.T) {
	repo := NewIdempotencyRepository(newIntegrationStore(t))
	ctx := context.Background()
	now := time.Now().UTC()

	for i, age := range []time.Duration{5 * time.Minute, 4 * time.Minute, 3 * time.Minute} {
		_, err := repo.CreateProcessing(ctx, "idem-expired-"+string(rune('a'+i)), "h", now.Add(-age))
		require.NoError(t, err)
	}
	_, err := repo.CreateProcessing(ctx, "idem-active", "h", now.Add(time.Hour))
	require.NoError(t, err)

	removed, err := repo.DeleteExpired(ctx, now, 2)
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	// самая свежая из просроченных пережила первый проход
	removed, err = repo.DeleteExpired(ctx, now.Add(-3*time.Minute-time.Second), 0)
	require.NoError(t, err)
	require.Zero(t, removed)

	removed, err = repo.DeleteExpired(ctx, now, 0)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, err = repo.Get(ctx, "idem-active")
	require.NoError(t, err)
}

func TestIdempotencyRepository_PostgresExpiredKeyIsReusable(t *testing.T) {
	repo := NewIdempotencyRepository(newIntegrationStore(t))
	ctx := context.Background()

	_, err := repo.CreateProcessing(ctx, "idem-reuse", "old-hash", time.Now().UTC().Add(-time.Minute))
	require.NoError(t, err)

	_, err = repo.Get(ctx, "idem-reuse")
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)

	created, err := repo.CreateProcessing(ctx, "idem-reuse", "new-hash", time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, "new-hash", created.RequestHash)
	require.Equal(t, domain.IdempotencyStatusProcessing, created.Status)

	require.NoError(t, repo.MarkFailed(ctx, "idem-reuse", []byte(`{"error":"bad"}`), 400))
	got, err := repo.Get(ctx, "idem-reuse")
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusFailed, got.Status)
	require.Equal(t, 400, got.HTTPStatus)

	require.NoError(t, repo.Delete(ctx, "idem-reuse"))
	_, err = repo.Get(ctx, "idem-reuse")
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)
}

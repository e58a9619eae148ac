package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/backoffice/internal/domain"
	"github.com/vladislavdragonenkov/backoffice/internal/storage/memory"
)

func TestOutboxRepository_EnqueueAndPullInOrder(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOutboxRepository()

	first, err := repo.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   "order-1",
		EventType:     "order.created",
		Payload:       []byte(`{"status":"pending"}`),
	})
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)
	require.Equal(t, domain.OutboxStatusPending, first.Status)

	second, err := repo.Enqueue(ctx, domain.OutboxMessage{ID: "fixed", AggregateID: "order-2"})
	require.NoError(t, err)
	require.Equal(t, "fixed", second.ID)

	pending, err := repo.PullPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, first.ID, pending[0].ID)
	require.Equal(t, second.ID, pending[1].ID)

	limited, err := repo.PullPending(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	require.Equal(t, first.ID, limited[0].ID)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.PendingCount)
	require.True(t, stats.OldestPendingAt.Equal(first.CreatedAt))
}

func TestOutboxRepository_PayloadIsCopied(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOutboxRepository()

	payload := []byte(`{"a":1}`)
	_, err := repo.Enqueue(ctx, domain.OutboxMessage{Payload: payload})
	require.NoError(t, err)
	payload[0] = 'X'

	pending, err := repo.PullPending(ctx, 0)
	require.NoError(t, err)
	require.JSONEq(t, `{"a":1}`, string(pending[0].Payload))

	pending[0].Payload[0] = 'Y'
	again, err := repo.PullPending(ctx, 0)
	require.NoError(t, err)
	require.JSONEq(t, `{"a":1}`, string(again[0].Payload))
}

func TestOutboxRepository_MarkSentAndFailed(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOutboxRepository()

	sent, err := repo.Enqueue(ctx, domain.OutboxMessage{AggregateType: "order"})
	require.NoError(t, err)
	failed, err := repo.Enqueue(ctx, domain.OutboxMessage{AggregateType: "order"})
	require.NoError(t, err)
	left, err := repo.Enqueue(ctx, domain.OutboxMessage{AggregateType: "order"})
	require.NoError(t, err)

	require.NoError(t, repo.MarkSent(ctx, sent.ID))
	require.NoError(t, repo.MarkFailed(ctx, failed.ID))
	require.ErrorIs(t, repo.MarkFailed(ctx, "missing"), domain.ErrOutboxMessageNotFound)

	pending, err := repo.PullPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, left.ID, pending[0].ID)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.PendingCount)
	require.True(t, stats.OldestPendingAt.Equal(left.CreatedAt))
}

func TestOutboxRepository_EmptyStats(t *testing.T) {
	stats, err := memory.NewOutboxRepository().Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.OutboxStats{}, stats)
}

func TestOutboxRepository_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	repo := memory.NewOutboxRepository()

	_, err := repo.Enqueue(ctx, domain.OutboxMessage{})
	require.ErrorIs(t, err, context.Canceled)
	_, err = repo.PullPending(ctx, 1)
	require.ErrorIs(t, err, context.Canceled)
}

package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/backoffice/internal/domain"
)

func TestOutboxRepository_PostgresDeliveryFlow(t *testing.T) {
	repo := NewOutboxRepository(newIntegrationStore(t))
	ctx := context.Background()

	generated, err := repo.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   "order-1",
		EventType:     "order.created",
		Payload:       []byte(`{"id":"order-1"}`),
	})
	require.NoError(t, err)
	require.NotEmpty(t, generated.ID)
	require.Equal(t, domain.OutboxStatusPending, generated.Status)

	fixed, err := repo.Enqueue(ctx, domain.OutboxMessage{
		ID:            "outbox-fixed-id",
		AggregateType: "order",
		AggregateID:   "order-2",
		EventType:     "order.status_changed",
		Payload:       []byte(`{"id":"order-2"}`),
	})
	require.NoError(t, err)
	require.Equal(t, "outbox-fixed-id", fixed.ID)

	pending, err := repo.PullPending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, generated.ID, pending[0].ID, "delivery order follows enqueue order")
	require.Equal(t, fixed.ID, pending[1].ID)
	require.JSONEq(t, `{"id":"order-2"}`, string(pending[1].Payload))

	limited, err := repo.PullPending(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.PendingCount)
	require.False(t, stats.OldestPendingAt.IsZero())

	require.NoError(t, repo.MarkSent(ctx, generated.ID))
	require.NoError(t, repo.MarkFailed(ctx, fixed.ID))

	pending, err = repo.PullPending(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, pending)

	stats, err = repo.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.OutboxStats{}, stats)
}

func TestOutboxRepository_PostgresMarkMissing(t *testing.T) {
	repo := NewOutboxRepository(newIntegrationStore(t))
	ctx := context.Background()

	require.ErrorIs(t, repo.MarkSent(ctx, "missing-outbox"), domain.ErrOutboxMessageNotFound)
	require.ErrorIs(t, repo.MarkFailed(ctx, "missing-outbox"), domain.ErrOutboxMessageNotFound)
}

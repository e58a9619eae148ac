package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/backoffice/internal/domain"
)

const defaultOutboxPullLimit = 100

type outboxEntry struct {
	msg       domain.OutboxMessage
	attempts  int
	updatedAt time.Time
}

// outboxRepositoryInMemory хранит outbox как журнал в порядке постановки.
// Записи не удаляются: sent и failed остаются для отладки.
type outboxRepositoryInMemory struct {
	mu   sync.RWMutex
	log  []*outboxEntry
	byID map[string]*outboxEntry
	now  func() time.Time
}

// NewOutboxRepository создаёт in-memory реализацию outbox.
func NewOutboxRepository() domain.OutboxRepository {
	return &outboxRepositoryInMemory{
		byID: make(map[string]*outboxEntry),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (r *outboxRepositoryInMemory) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if err := ctx.Err(); err != nil {
		return domain.OutboxMessage{}, err
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	msg.Status = domain.OutboxStatusPending
	msg.CreatedAt = r.now()
	msg.Payload = append([]byte(nil), msg.Payload...)

	entry := &outboxEntry{msg: msg, updatedAt: msg.CreatedAt}
	r.log = append(r.log, entry)
	r.byID[msg.ID] = entry
	return cloneOutboxMessage(msg), nil
}

// PullPending возвращает до limit pending-сообщений в порядке постановки.
func (r *outboxRepositoryInMemory) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultOutboxPullLimit
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	batch := make([]domain.OutboxMessage, 0, min(limit, len(r.log)))
	for _, entry := range r.log {
		if len(batch) == limit {
			break
		}
		if entry.msg.Status == domain.OutboxStatusPending {
			batch = append(batch, cloneOutboxMessage(entry.msg))
		}
	}
	return batch, nil
}

func (r *outboxRepositoryInMemory) Stats(_ context.Context) (domain.OutboxStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stats domain.OutboxStats
	for _, entry := range r.log {
		if entry.msg.Status != domain.OutboxStatusPending {
			continue
		}
		if stats.PendingCount == 0 {
			stats.OldestPendingAt = entry.msg.CreatedAt
		}
		stats.PendingCount++
	}
	return stats, nil
}

func (r *outboxRepositoryInMemory) MarkSent(_ context.Context, id string) error {
	return r.transition(id, domain.OutboxStatusSent)
}

func (r *outboxRepositoryInMemory) MarkFailed(_ context.Context, id string) error {
	return r.transition(id, domain.OutboxStatusFailed)
}

func (r *outboxRepositoryInMemory) transition(id string, status domain.OutboxStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.byID[id]
	if !ok {
		return domain.ErrOutboxMessageNotFound
	}
	entry.msg.Status = status
	entry.attempts++
	entry.updatedAt = r.now()
	return nil
}

func cloneOutboxMessage(msg domain.OutboxMessage) domain.OutboxMessage {
	msg.Payload = append([]byte(nil), msg.Payload...)
	return msg
}

var _ domain.OutboxRepository = (*outboxRepositoryInMemory)(nil)

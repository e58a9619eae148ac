package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/backoffice/internal/domain"
)

// DefaultTTL: срок хранения ответа по ключу идемпотентности.
const DefaultTTL = 24 * time.Hour

// guardMarkTimeout ограничивает запись результата после завершения запроса.
const guardMarkTimeout = 3 * time.Second

// Response: сериализованный ответ, который сохраняется и воспроизводится по ключу.
type Response struct {
	Status int
	Body   []byte
}

// Handler выполняет запрос под ключом идемпотентности.
type Handler func(ctx context.Context) Response

// Guard обеспечивает семантику "не более одного выполнения" для запросов с ключом.
type Guard struct {
	repo   domain.IdempotencyRepository
	ttl    time.Duration
	logger *log.Entry
	now    func() time.Time
}

// GuardOption настраивает Guard.
type GuardOption func(*Guard)

// WithTTL задаёт срок хранения ключа.
func WithTTL(ttl time.Duration) GuardOption {
	return func(g *Guard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithGuardLogger задаёт logger.
func WithGuardLogger(logger *log.Entry) GuardOption {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithGuardClock подменяет часы (для тестов).
func WithGuardClock(now func() time.Time) GuardOption {
	return func(g *Guard) {
		if now != nil {
			g.now = now
		}
	}
}

// NewGuard создаёт Guard поверх репозитория ключей.
func NewGuard(repo domain.IdempotencyRepository, opts ...GuardOption) *Guard {
	g := &Guard{
		repo:   repo,
		ttl:    DefaultTTL,
		logger: log.WithField("component", "idempotency-guard"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// RequestHash строит отпечаток запроса: операция и тело.
func RequestHash(operation string, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(operation))
	h.Write([]byte{':'})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// Do выполняет handler не более одного раза на ключ.
// replayed=true означает, что ответ взят из сохранённой записи.
// Ответы 5xx и паника handler не сохраняются: ключ освобождается и запрос можно повторить.
func (g *Guard) Do(ctx context.Context, key, requestHash string, handler Handler) (resp Response, replayed bool, err error) {
	key = strings.TrimSpace(key)
	if g == nil || g.repo == nil || key == "" {
		return handler(ctx), false, nil
	}

	record, err := g.repo.CreateProcessing(ctx, key, requestHash, g.now().Add(g.ttl))
	if err != nil {
		return g.replay(key, record, err)
	}

	logger := g.logger.WithField("idempotency_key", key)

	finished := false
	defer func() {
		if finished {
			return
		}
		// handler паникует: ключ освобождается, паника уходит дальше к recover-middleware
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), guardMarkTimeout)
		defer cancel()
		if delErr := g.repo.Delete(releaseCtx, key); delErr != nil {
			logger.WithError(delErr).Warn("failed to release idempotency key after panic")
		}
	}()

	resp = handler(ctx)
	finished = true

	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), guardMarkTimeout)
	defer cancel()

	switch {
	case resp.Status >= http.StatusInternalServerError:
		if delErr := g.repo.Delete(markCtx, key); delErr != nil {
			logger.WithError(delErr).Warn("failed to release idempotency key")
		}
	case resp.Status >= http.StatusBadRequest:
		if markErr := g.repo.MarkFailed(markCtx, key, resp.Body, resp.Status); markErr != nil {
			logger.WithError(markErr).Warn("failed to store idempotency failure response")
		}
	default:
		if markErr := g.repo.MarkDone(markCtx, key, resp.Body, resp.Status); markErr != nil {
			logger.WithError(markErr).Warn("failed to store idempotent success response")
		}
	}

	return resp, false, nil
}

func (g *Guard) replay(key string, record domain.IdempotencyRecord, createErr error) (Response, bool, error) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		return Response{}, false, createErr
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		if !record.Terminal() {
			return Response{}, false, createErr
		}
		status := record.HTTPStatus
		if status == 0 {
			status = http.StatusOK
		}
		return Response{Status: status, Body: append([]byte(nil), record.ResponseBody...)}, true, nil
	default:
		g.logger.WithError(createErr).WithField("idempotency_key", key).Warn("failed to create idempotency record")
		return Response{}, false, fmt.Errorf("%w: idempotency: %w", domain.ErrPersistence, createErr)
	}
}

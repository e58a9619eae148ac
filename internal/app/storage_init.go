package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/backoffice/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/backoffice/internal/health"
	"github.com/vladislavdragonenkov/backoffice/internal/storage/memory"
	"github.com/vladislavdragonenkov/backoffice/internal/storage/postgres"
	redisstore "github.com/vladislavdragonenkov/backoffice/internal/storage/redis"
)

const dependencyPingTimeout = 2 * time.Second

// runtimeDependencies: репозитории выбранного драйвера и проверки их доступности.
type runtimeDependencies struct {
	products        domain.ProductRepository
	customers       domain.CustomerRepository
	orders          domain.OrderRepository
	movements       domain.MovementRepository
	outboxRepo      domain.OutboxRepository
	idempotencyRepo domain.IdempotencyRepository

	storageChecker healthcheck.Checker
	redisChecker   healthcheck.Checker
	closers        []func() error
}

func (d *runtimeDependencies) close(logger *log.Entry) {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			logger.WithError(err).Warn("failed to close storage dependency")
		}
	}
	d.closers = nil
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	var (
		deps *runtimeDependencies
		err  error
	)

	switch cfg.StorageDriver {
	case "", StorageDriverMemory:
		deps = memoryDependencies()
		logger.Info("storage driver: memory")
	case StorageDriverPostgres:
		deps, err = postgresDependencies(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("storage driver: postgres")
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	if cfg.RedisAddr != "" {
		client, err := redisstore.Open(ctx, cfg.RedisAddr)
		if err != nil {
			// Без Redis ключи остаются в хранилище основного драйвера.
			logger.WithError(err).WithField("addr", cfg.RedisAddr).Warn("redis is unavailable, idempotency keys stay in primary storage")
			return deps, nil
		}
		deps.idempotencyRepo = redisstore.NewIdempotencyRepository(client)
		deps.redisChecker = healthcheck.NewPingChecker("redis", dependencyPingTimeout, func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}).Optional()
		deps.closers = append(deps.closers, client.Close)
		logger.WithField("addr", cfg.RedisAddr).Info("idempotency keys stored in redis")
	}

	return deps, nil
}

func memoryDependencies() *runtimeDependencies {
	return &runtimeDependencies{
		products:        memory.NewProductRepository(),
		customers:       memory.NewCustomerRepository(),
		orders:          memory.NewOrderRepository(),
		movements:       memory.NewMovementRepository(),
		outboxRepo:      memory.NewOutboxRepository(),
		idempotencyRepo: memory.NewIdempotencyRepository(),
	}
}

func postgresDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	if cfg.PostgresDSN == "" {
		return nil, errors.New("postgres dsn is required for postgres storage driver")
	}

	store, err := postgres.Open(ctx, cfg.PostgresDSN, postgres.WithMaxConns(cfg.PostgresMaxConns))
	if err != nil {
		return nil, err
	}
	if cfg.PostgresAutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		logger.Info("postgres migrations applied")
	}

	return &runtimeDependencies{
		products:        postgres.NewProductRepository(store),
		customers:       postgres.NewCustomerRepository(store),
		orders:          postgres.NewOrderRepository(store),
		movements:       postgres.NewMovementRepository(store),
		outboxRepo:      postgres.NewOutboxRepository(store),
		idempotencyRepo: postgres.NewIdempotencyRepository(store),
		storageChecker:  healthcheck.NewPingChecker("postgres", dependencyPingTimeout, store.Ping),
		closers:         []func() error{store.Close},
	}, nil
}

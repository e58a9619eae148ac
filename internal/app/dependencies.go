package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/backoffice/internal/service/catalog"
	"github.com/vladislavdragonenkov/backoffice/internal/service/idempotency"
	"github.com/vladislavdragonenkov/backoffice/internal/service/orders"
	"github.com/vladislavdragonenkov/backoffice/internal/service/stock"
)

// Services содержит прикладные сервисы поверх репозиториев.
type Services struct {
	Ledger    *stock.Ledger
	Orders    *orders.Reconciler
	Products  *catalog.ProductService
	Customers *catalog.CustomerService
	Guard     *idempotency.Guard
}

// newServices собирает сервисы. События заказов пишутся в outbox только
// при withOutbox, иначе их некому публиковать.
func newServices(deps *runtimeDependencies, cfg Config, withOutbox bool, logger *log.Entry) *Services {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	ledger := stock.NewLedger(deps.products,
		stock.WithMovements(deps.movements),
		stock.WithLogger(logger.WithField("component", "stock-ledger")),
	)

	reconcilerOpts := []orders.Option{
		orders.WithLogger(logger.WithField("component", "order-reconciler")),
	}
	if withOutbox {
		reconcilerOpts = append(reconcilerOpts, orders.WithOutbox(deps.outboxRepo))
	}

	return &Services{
		Ledger: ledger,
		Orders: orders.NewReconciler(
			deps.orders,
			deps.customers,
			ledger,
			orders.NewPopulator(deps.products, deps.customers),
			reconcilerOpts...,
		),
		Products:  catalog.NewProductService(deps.products, ledger, deps.movements, logger.WithField("component", "product-service")),
		Customers: catalog.NewCustomerService(deps.customers, logger.WithField("component", "customer-service")),
		Guard: idempotency.NewGuard(deps.idempotencyRepo,
			idempotency.WithTTL(cfg.IdempotencyTTL),
			idempotency.WithGuardLogger(logger.WithField("component", "idempotency-guard")),
		),
	}
}

package httpapi

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/backoffice/internal/service/catalog"
	"github.com/vladislavdragonenkov/backoffice/internal/service/idempotency"
	"github.com/vladislavdragonenkov/backoffice/internal/service/orders"
)

// IdempotencyHeader: заголовок с ключом идемпотентности для POST /orders.
const IdempotencyHeader = "Idempotency-Key"

// ReplayedHeader выставляется, когда ответ взят из сохранённой записи.
const ReplayedHeader = "Idempotent-Replayed"

// Dependencies собирает сервисы, которые обслуживает REST API.
type Dependencies struct {
	Orders    *orders.Reconciler
	Products  *catalog.ProductService
	Customers *catalog.CustomerService
	// Guard может быть nil, тогда заголовок Idempotency-Key игнорируется.
	Guard  *idempotency.Guard
	Logger *log.Entry
	// AccessLog включает построчный лог запросов.
	AccessLog bool
}

type handlers struct {
	orders    *orders.Reconciler
	products  *catalog.ProductService
	customers *catalog.CustomerService
	guard     *idempotency.Guard
	logger    *log.Entry
}

// New собирает Fiber-приложение с маршрутами в корне и под /api.
func New(deps Dependencies) *fiber.App {
	logger := deps.Logger
	if logger == nil {
		logger = log.WithField("component", "http-api")
	}

	app := fiber.New(fiber.Config{
		AppName:               "backoffice",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(logger),
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	if deps.AccessLog {
		app.Use(fiberlogger.New(fiberlogger.Config{
			Format: "[${time}] ${locals:requestid} ${status} - ${latency} ${method} ${path}\n",
			Output: logger.Logger.Out,
		}))
	}
	app.Use(cors.New(cors.Config{
		AllowHeaders: "Origin, Content-Type, Accept, " + IdempotencyHeader,
	}))

	h := &handlers{
		orders:    deps.Orders,
		products:  deps.Products,
		customers: deps.Customers,
		guard:     deps.Guard,
		logger:    logger,
	}
	h.mount(app)
	h.mount(app.Group("/api"))

	return app
}

func (h *handlers) mount(r fiber.Router) {
	products := r.Group("/products")
	products.Get("/", h.listProducts)
	products.Post("/", h.createProduct)
	products.Get("/:id", h.getProduct)
	products.Put("/:id", h.updateProduct)
	products.Delete("/:id", h.deleteProduct)
	products.Patch("/:id/stock", h.adjustStock)
	products.Get("/:id/movements", h.listMovements)

	customers := r.Group("/customers")
	customers.Get("/", h.listCustomers)
	customers.Post("/", h.createCustomer)
	customers.Get("/:id", h.getCustomer)
	customers.Put("/:id", h.updateCustomer)
	customers.Delete("/:id", h.deleteCustomer)
	customers.Get("/:id/orders", h.listCustomerOrders)

	ordersGroup := r.Group("/orders")
	ordersGroup.Get("/", h.listOrders)
	ordersGroup.Post("/", h.createOrder)
	ordersGroup.Get("/:id", h.getOrder)
	ordersGroup.Put("/:id", h.updateOrder)
	ordersGroup.Delete("/:id", h.deleteOrder)
}

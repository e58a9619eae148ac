package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama/mocks"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/backoffice/internal/domain"
	"github.com/vladislavdragonenkov/backoffice/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/backoffice/internal/metrics"
	"github.com/vladislavdragonenkov/backoffice/internal/service/catalog"
	"github.com/vladislavdragonenkov/backoffice/internal/service/idempotency"
	"github.com/vladislavdragonenkov/backoffice/internal/service/orders"
	"github.com/vladislavdragonenkov/backoffice/internal/service/outbox"
	"github.com/vladislavdragonenkov/backoffice/internal/service/stock"
	"github.com/vladislavdragonenkov/backoffice/internal/storage/memory"
	"github.com/vladislavdragonenkov/backoffice/internal/transport/httpapi"
)

type item struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type order struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	TotalMinor int64  `json:"total_minor"`
	Items      []item `json:"items"`
}

type entity struct {
	ID         string `json:"id"`
	StockLevel int    `json:"stock_level"`
}

// OrderLifecycleTestSuite проверяет REST API, склад и outbox вместе на in-memory хранилище.
type OrderLifecycleTestSuite struct {
	suite.Suite

	app      *fiber.App
	products domain.ProductRepository
	outbox   domain.OutboxRepository
	logger   *log.Entry
}

func (s *OrderLifecycleTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel)
	baseLogger.SetOutput(io.Discard)
	s.logger = baseLogger.WithField("component", "integration-test")

	s.products = memory.NewProductRepository()
	s.outbox = memory.NewOutboxRepository()
	customers := memory.NewCustomerRepository()
	movements := memory.NewMovementRepository()

	ledger := stock.NewLedger(s.products,
		stock.WithMovements(movements),
		stock.WithMetrics(metrics.NewStockMetricsWithRegisterer(prometheus.NewRegistry())),
		stock.WithLogger(s.logger),
	)
	reconciler := orders.NewReconciler(
		memory.NewOrderRepository(),
		customers,
		ledger,
		orders.NewPopulator(s.products, customers),
		orders.WithOutbox(s.outbox),
		orders.WithMetrics(metrics.NewOrderMetricsWithRegisterer(prometheus.NewRegistry())),
		orders.WithLogger(s.logger),
		orders.WithRetry(orders.RetryConfig{MaxAttempts: 100, BaseDelay: time.Millisecond}),
	)

	s.app = httpapi.New(httpapi.Dependencies{
		Orders:    reconciler,
		Products:  catalog.NewProductService(s.products, ledger, movements, s.logger),
		Customers: catalog.NewCustomerService(customers, s.logger),
		Guard:     idempotency.NewGuard(memory.NewIdempotencyRepository(), idempotency.WithGuardLogger(s.logger)),
		Logger:    s.logger,
	})
}

func (s *OrderLifecycleTestSuite) request(method, path string, body any, headers ...string) (int, []byte) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := s.app.Test(req, -1)
	s.Require().NoError(err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	return resp.StatusCode, raw
}

func (s *OrderLifecycleTestSuite) create(path string, body any, dst any) {
	status, raw := s.request(http.MethodPost, path, body)
	s.Require().Equal(http.StatusCreated, status, string(raw))
	s.Require().NoError(json.Unmarshal(raw, dst))
}

func (s *OrderLifecycleTestSuite) product(name string, stockLevel int, priceMinor int64) entity {
	var p entity
	s.create("/api/products", map[string]any{
		"name":        name,
		"description": name,
		"price_minor": priceMinor,
		"stock_level": stockLevel,
		"category":    "Electronics",
	}, &p)
	return p
}

func (s *OrderLifecycleTestSuite) customer(email string) entity {
	var c entity
	s.create("/api/customers", map[string]any{"name": "Customer", "email": email}, &c)
	return c
}

func (s *OrderLifecycleTestSuite) stockOf(productID string) int {
	p, err := s.products.Get(context.Background(), productID)
	s.Require().NoError(err)
	return p.StockLevel
}

func (s *OrderLifecycleTestSuite) TestFullLifecycleWithOutboxDelivery() {
	laptop := s.product("Laptop", 5, 199900)
	mouse := s.product("Mouse", 10, 2599)
	buyer := s.customer("buyer@example.com")

	// 1. Создание резервирует обе позиции
	var created order
	s.create("/api/orders", map[string]any{
		"customer_id": buyer.ID,
		"items": []item{
			{ProductID: laptop.ID, Quantity: 1},
			{ProductID: mouse.ID, Quantity: 2},
		},
	}, &created)
	s.Equal("pending", created.Status)
	s.EqualValues(199900+2*2599, created.TotalMinor)
	s.Equal(4, s.stockOf(laptop.ID))
	s.Equal(8, s.stockOf(mouse.ID))

	// 2. Завершение не трогает склад
	status, raw := s.request(http.MethodPut, "/api/orders/"+created.ID, map[string]any{"status": "completed"})
	s.Require().Equal(http.StatusOK, status, string(raw))
	s.Equal(4, s.stockOf(laptop.ID))

	// 3. Отмена завершённого заказа возвращает сток один раз
	status, raw = s.request(http.MethodPut, "/api/orders/"+created.ID, map[string]any{"status": "cancelled"})
	s.Require().Equal(http.StatusOK, status, string(raw))
	s.Equal(5, s.stockOf(laptop.ID))
	s.Equal(10, s.stockOf(mouse.ID))

	// 4. Удаление отменённого заказа склад не меняет
	status, _ = s.request(http.MethodDelete, "/api/orders/"+created.ID, nil)
	s.Require().Equal(http.StatusOK, status)
	s.Equal(5, s.stockOf(laptop.ID))
	s.Equal(10, s.stockOf(mouse.ID))

	// 5. Outbox доставляет все события в порядке записи
	expected := []kafka.EventType{
		kafka.EventTypeOrderCreated,
		kafka.EventTypeOrderStatusChanged,
		kafka.EventTypeOrderCancelled,
		kafka.EventTypeOrderDeleted,
	}
	producer := mocks.NewSyncProducer(s.T(), nil)
	for _, eventType := range expected {
		want := string(eventType)
		producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
			var envelope struct {
				AggregateID string `json:"aggregate_id"`
				EventType   string `json:"event_type"`
			}
			if err := json.Unmarshal(val, &envelope); err != nil {
				return err
			}
			if envelope.EventType != want || envelope.AggregateID != created.ID {
				return fmt.Errorf("unexpected event %+v, want %s", envelope, want)
			}
			return nil
		})
	}

	worker := outbox.NewWorker(
		s.outbox,
		kafka.NewTopicPublisher(kafka.NewProducerFromSync(producer), kafka.TopicOrderEvents),
		outbox.WithLogger(s.logger),
		outbox.WithBatchSize(10),
	)
	worker.ProcessOnce(context.Background())
	s.Require().NoError(producer.Close())

	stats, err := s.outbox.Stats(context.Background())
	s.Require().NoError(err)
	s.Zero(stats.PendingCount)
}

func (s *OrderLifecycleTestSuite) TestFailedCreateLeavesStockUntouched() {
	cable := s.product("Cable", 3, 500)
	hub := s.product("Hub", 1, 4000)
	buyer := s.customer("buyer@example.com")

	status, raw := s.request(http.MethodPost, "/api/orders", map[string]any{
		"customer_id": buyer.ID,
		"items": []item{
			{ProductID: cable.ID, Quantity: 2},
			{ProductID: hub.ID, Quantity: 2},
		},
	})
	s.Require().Equal(http.StatusBadRequest, status)

	var body map[string]any
	s.Require().NoError(json.Unmarshal(raw, &body))
	s.Equal("insufficient_stock", body["code"])
	s.Equal(hub.ID, body["product_id"])
	s.EqualValues(1, body["available"])

	s.Equal(3, s.stockOf(cable.ID))
	s.Equal(1, s.stockOf(hub.ID))

	status, raw = s.request(http.MethodGet, "/api/orders", nil)
	s.Require().Equal(http.StatusOK, status)
	s.JSONEq(`[]`, string(raw))
}

func (s *OrderLifecycleTestSuite) TestConcurrentOrdersNeverOversell() {
	const (
		initialStock = 10
		buyers       = 25
	)
	gadget := s.product("Gadget", initialStock, 1000)
	buyer := s.customer("buyer@example.com")

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		rejected int
	)
	for range buyers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, _ := s.request(http.MethodPost, "/api/orders", map[string]any{
				"customer_id": buyer.ID,
				"items":       []item{{ProductID: gadget.ID, Quantity: 1}},
			})
			mu.Lock()
			defer mu.Unlock()
			switch status {
			case http.StatusCreated:
				accepted++
			case http.StatusBadRequest:
				rejected++
			}
		}()
	}
	wg.Wait()

	s.Equal(initialStock, accepted)
	s.Equal(buyers-initialStock, rejected)
	s.Zero(s.stockOf(gadget.ID))
}

func (s *OrderLifecycleTestSuite) TestIdempotentRetryDoesNotReserveTwice() {
	speaker := s.product("Speaker", 4, 8000)
	buyer := s.customer("buyer@example.com")
	body := map[string]any{
		"customer_id": buyer.ID,
		"items":       []item{{ProductID: speaker.ID, Quantity: 3}},
	}

	first, firstRaw := s.request(http.MethodPost, "/api/orders", body, httpapi.IdempotencyHeader, "retry-1")
	s.Require().Equal(http.StatusCreated, first)
	second, secondRaw := s.request(http.MethodPost, "/api/orders", body, httpapi.IdempotencyHeader, "retry-1")
	s.Require().Equal(http.StatusCreated, second)

	s.JSONEq(string(firstRaw), string(secondRaw))
	s.Equal(1, s.stockOf(speaker.ID))
}

func TestOrderLifecycleSuite(t *testing.T) {
	suite.Run(t, new(OrderLifecycleTestSuite))
}

func TestStockAdjustmentJournal(t *testing.T) {
	s := new(OrderLifecycleTestSuite)
	s.SetT(t)
	s.SetupTest()

	lamp := s.product("Lamp", 2, 1500)
	status, raw := s.request(http.MethodPatch, "/products/"+lamp.ID+"/stock", map[string]any{"delta": 5})
	require.Equal(t, http.StatusOK, status, string(raw))

	status, raw = s.request(http.MethodGet, "/products/"+lamp.ID+"/movements", nil)
	require.Equal(t, http.StatusOK, status)

	var movements []struct {
		Delta      int    `json:"delta"`
		Reason     string `json:"reason"`
		StockAfter int    `json:"stock_after"`
	}
	require.NoError(t, json.Unmarshal(raw, &movements))
	require.Len(t, movements, 1)
	require.Equal(t, 5, movements[0].Delta)
	require.Equal(t, "manual_adjustment", movements[0].Reason)
	require.Equal(t, 7, movements[0].StockAfter)
}

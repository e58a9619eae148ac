package httpapi

import (
	"context"
	"encoding/json"

	"github.com/gofiber/fiber/v2"

	"github.com/vladislavdragonenkov/backoffice/internal/service/idempotency"
)

const createOrderOperation = "POST /orders"

// createOrder выполняет создание заказа под ключом идемпотентности, если он передан.
// Повтор с тем же ключом и телом возвращает сохранённый ответ без повторного резерва.
func (h *handlers) createOrder(c *fiber.Ctx) error {
	body := append([]byte(nil), c.Body()...)
	key := c.Get(IdempotencyHeader)

	resp, replayed, err := h.guard.Do(
		c.UserContext(),
		key,
		idempotency.RequestHash(createOrderOperation, body),
		func(ctx context.Context) idempotency.Response {
			return h.createOrderResponse(ctx, body)
		},
	)
	if err != nil {
		return err
	}
	if replayed {
		c.Set(ReplayedHeader, "true")
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Status(resp.Status).Send(resp.Body)
}

func (h *handlers) createOrderResponse(ctx context.Context, body []byte) idempotency.Response {
	var req createOrderRequest
	if err := decode(body, &req); err != nil {
		return h.errorResponse(err)
	}

	view, err := h.orders.Create(ctx, req.input())
	if err != nil {
		return h.errorResponse(err)
	}
	return h.jsonResponse(fiber.StatusCreated, toOrderResponse(view))
}

func (h *handlers) errorResponse(err error) idempotency.Response {
	status, body := classify(err)
	if status >= fiber.StatusInternalServerError {
		h.logger.WithError(err).WithField("operation", createOrderOperation).Error("request failed")
	}
	return h.jsonResponse(status, body)
}

func (h *handlers) jsonResponse(status int, v any) idempotency.Response {
	payload, err := json.Marshal(v)
	if err != nil {
		h.logger.WithError(err).Error("failed to encode response")
		return idempotency.Response{
			Status: fiber.StatusInternalServerError,
			Body:   []byte(`{"error":"internal server error","code":"internal_error"}`),
		}
	}
	return idempotency.Response{Status: status, Body: payload}
}

func (h *handlers) listOrders(c *fiber.Ctx) error {
	views, err := h.orders.List(c.UserContext(), c.QueryInt("limit", 0))
	if err != nil {
		return err
	}
	return c.JSON(toOrderResponses(views))
}

func (h *handlers) listCustomerOrders(c *fiber.Ctx) error {
	views, err := h.orders.ListByCustomer(c.UserContext(), c.Params("id"), c.QueryInt("limit", 0))
	if err != nil {
		return err
	}
	return c.JSON(toOrderResponses(views))
}

func (h *handlers) getOrder(c *fiber.Ctx) error {
	view, err := h.orders.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(toOrderResponse(view))
}

func (h *handlers) updateOrder(c *fiber.Ctx) error {
	var req updateOrderRequest
	if err := decode(c.Body(), &req); err != nil {
		return err
	}
	upd, err := req.update()
	if err != nil {
		return err
	}

	view, err := h.orders.UpdateStatus(c.UserContext(), c.Params("id"), upd)
	if err != nil {
		return err
	}
	return c.JSON(toOrderResponse(view))
}

func (h *handlers) deleteOrder(c *fiber.Ctx) error {
	if err := h.orders.Delete(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "order deleted"})
}

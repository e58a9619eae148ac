package httpapi

import (
	"encoding/json"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/vladislavdragonenkov/backoffice/internal/domain"
)

// decode разбирает JSON-тело; пустое тело считается ошибкой валидации.
func decode(body []byte, dst any) error {
	if len(body) == 0 {
		return fmt.Errorf("%w: request body is required", errBadJSON)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: %v", errBadJSON, err)
	}
	return nil
}

func (h *handlers) listProducts(c *fiber.Ctx) error {
	products, err := h.products.List(c.UserContext())
	if err != nil {
		return err
	}
	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, toProductResponse(p))
	}
	return c.JSON(out)
}

func (h *handlers) createProduct(c *fiber.Ctx) error {
	var req productRequest
	if err := decode(c.Body(), &req); err != nil {
		return err
	}
	product, err := h.products.Create(c.UserContext(), req.input())
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(toProductResponse(product))
}

func (h *handlers) getProduct(c *fiber.Ctx) error {
	product, err := h.products.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(toProductResponse(product))
}

func (h *handlers) updateProduct(c *fiber.Ctx) error {
	var req productRequest
	if err := decode(c.Body(), &req); err != nil {
		return err
	}
	product, err := h.products.Update(c.UserContext(), c.Params("id"), req.input())
	if err != nil {
		return err
	}
	return c.JSON(toProductResponse(product))
}

func (h *handlers) deleteProduct(c *fiber.Ctx) error {
	if err := h.products.Delete(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *handlers) adjustStock(c *fiber.Ctx) error {
	var req stockRequest
	if err := decode(c.Body(), &req); err != nil {
		return err
	}
	if req.Delta == nil {
		return fmt.Errorf("%w: delta is required", domain.ErrValidation)
	}
	product, err := h.products.AdjustStock(c.UserContext(), c.Params("id"), *req.Delta)
	if err != nil {
		return err
	}
	return c.JSON(toProductResponse(product))
}

func (h *handlers) listMovements(c *fiber.Ctx) error {
	movements, err := h.products.Movements(c.UserContext(), c.Params("id"), c.QueryInt("limit", 0))
	if err != nil {
		return err
	}
	return c.JSON(toMovementResponses(movements))
}

func (h *handlers) listCustomers(c *fiber.Ctx) error {
	customers, err := h.customers.List(c.UserContext())
	if err != nil {
		return err
	}
	out := make([]customerResponse, 0, len(customers))
	for _, customer := range customers {
		out = append(out, toCustomerResponse(customer))
	}
	return c.JSON(out)
}

func (h *handlers) createCustomer(c *fiber.Ctx) error {
	var req customerRequest
	if err := decode(c.Body(), &req); err != nil {
		return err
	}
	customer, err := h.customers.Create(c.UserContext(), req.input())
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(toCustomerResponse(customer))
}

func (h *handlers) getCustomer(c *fiber.Ctx) error {
	customer, err := h.customers.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(toCustomerResponse(customer))
}

func (h *handlers) updateCustomer(c *fiber.Ctx) error {
	var req customerRequest
	if err := decode(c.Body(), &req); err != nil {
		return err
	}
	customer, err := h.customers.Update(c.UserContext(), c.Params("id"), req.input())
	if err != nil {
		return err
	}
	return c.JSON(toCustomerResponse(customer))
}

func (h *handlers) deleteCustomer(c *fiber.Ctx) error {
	if err := h.customers.Delete(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

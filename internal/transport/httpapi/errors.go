package httpapi

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/backoffice/internal/domain"
)

// Коды ошибок в теле ответа.
const (
	codeValidation        = "validation_failed"
	codeInvalidJSON       = "invalid_json"
	codeInsufficientStock = "insufficient_stock"
	codeNotFound          = "not_found"
	codeConflict          = "conflict"
	codeIdempotency       = "idempotency_conflict"
	codeTimeout           = "timeout"
	codeInternal          = "internal_error"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	ProductID string `json:"product_id,omitempty"`
	Available *int   `json:"available,omitempty"`
}

// errBadJSON оборачивает ошибку разбора тела запроса.
var errBadJSON = errors.New("invalid JSON body")

// classify переводит ошибку сервиса в HTTP-статус и тело ответа.
func classify(err error) (int, errorResponse) {
	var stockErr *domain.InsufficientStockError
	if errors.As(err, &stockErr) {
		available := stockErr.Available
		return fiber.StatusBadRequest, errorResponse{
			Error:     stockErr.Error(),
			Code:      codeInsufficientStock,
			ProductID: stockErr.ProductID,
			Available: &available,
		}
	}

	var fiberErr *fiber.Error
	switch {
	case errors.Is(err, errBadJSON):
		return fiber.StatusBadRequest, errorResponse{Error: err.Error(), Code: codeInvalidJSON}
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrInvalidStatus),
		errors.Is(err, domain.ErrInsufficientStock):
		return fiber.StatusBadRequest, errorResponse{Error: err.Error(), Code: codeValidation}
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound, errorResponse{Error: err.Error(), Code: codeNotFound}
	case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists),
		errors.Is(err, domain.ErrIdempotencyHashMismatch):
		return fiber.StatusConflict, errorResponse{Error: err.Error(), Code: codeIdempotency}
	case errors.Is(err, domain.ErrSKUTaken),
		errors.Is(err, domain.ErrEmailTaken),
		errors.Is(err, domain.ErrOrderVersionConflict),
		errors.Is(err, domain.ErrOrderAlreadyExists),
		errors.Is(err, domain.ErrProductAlreadyExists),
		errors.Is(err, domain.ErrCustomerAlreadyExists):
		return fiber.StatusConflict, errorResponse{Error: err.Error(), Code: codeConflict}
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout, errorResponse{Error: "request timed out", Code: codeTimeout}
	case errors.As(err, &fiberErr):
		return fiberErr.Code, errorResponse{Error: fiberErr.Message, Code: codeForStatus(fiberErr.Code)}
	default:
		return fiber.StatusInternalServerError, errorResponse{Error: "internal server error", Code: codeInternal}
	}
}

func codeForStatus(status int) string {
	switch {
	case status == fiber.StatusNotFound:
		return codeNotFound
	case status >= fiber.StatusInternalServerError:
		return codeInternal
	default:
		return "request_error"
	}
}

// errorHandler: общий обработчик ошибок Fiber; 5xx пишутся в лог с причиной.
func errorHandler(logger *log.Entry) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status, body := classify(err)
		if status >= fiber.StatusInternalServerError {
			logger.WithError(err).WithFields(log.Fields{
				"method": c.Method(),
				"path":   c.Path(),
			}).Error("request failed")
		}
		return c.Status(status).JSON(body)
	}
}

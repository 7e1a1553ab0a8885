package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/ethan-huo/automation-chatbot/internal/apperr"
	"github.com/ethan-huo/automation-chatbot/pkg/response"
)

// writeError maps the service error taxonomy onto HTTP responses.
func writeError(c *fiber.Ctx, err error) error {
	status, code, message, details := classify(err)
	return response.Error(c, status, code, message, details)
}

// writePartialError reports err together with the work that had already
// been committed when it happened.
func writePartialError(c *fiber.Ctx, err error, partial interface{}) error {
	status, code, message, details := classify(err)
	out := fiber.Map{"partial": partial}
	if details != nil {
		out["cause"] = details
	}
	return response.Error(c, status, code, message, out)
}

func classify(err error) (int, string, string, interface{}) {
	var (
		ve *apperr.ValidationError
		de *apperr.DependencyNotSatisfiedError
		pe *apperr.ProviderError
		se *apperr.PersistenceError
	)
	switch {
	case errors.As(err, &ve):
		var details interface{}
		if ve.Field != "" {
			details = map[string]string{ve.Field: ve.Message}
		}
		return fiber.StatusBadRequest, response.CodeValidationError, ve.Error(), details
	case errors.As(err, &de):
		return fiber.StatusConflict, response.CodeDependencyNotReady, de.Error(), fiber.Map{"reason": de.Reason}
	case errors.Is(err, apperr.ErrNotFound):
		return fiber.StatusNotFound, response.CodeNotFound, "Task not found", nil
	case errors.As(err, &pe):
		return fiber.StatusBadGateway, response.CodeProviderError, pe.Error(), nil
	case errors.As(err, &se):
		return fiber.StatusServiceUnavailable, response.CodeServiceError, "Storage temporarily unavailable", nil
	default:
		return fiber.StatusInternalServerError, response.CodeServiceError, "Internal Server Error", nil
	}
}

func formatValidationErrors(err error) interface{} {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		out := make(map[string]string, len(validationErrors))
		for _, e := range validationErrors {
			out[e.Namespace()] = e.Tag()
		}
		return out
	}
	return nil
}

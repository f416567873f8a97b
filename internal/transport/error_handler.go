package transport

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/ouldcheikh/labconsole/internal/domain"
	"github.com/ouldcheikh/labconsole/internal/i18n"
	"github.com/ouldcheikh/labconsole/internal/upstream"
	"go.uber.org/zap"
)

// ErrorHandler maps domain errors onto HTTP statuses and localizes the
// fallback text from the request's Accept-Language. An upstream message is
// passed through verbatim; the operator sees exactly what the server said.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := statusFor(err)
		message := upstream.ServerMessage(err)
		if message == "" {
			var fiberErr *fiber.Error
			if errors.As(err, &fiberErr) && fiberErr.Message != "" {
				message = fiberErr.Message
			}
		}
		if message == "" {
			message = fallbackMessage(c, err, code)
		}

		logger.Error("request error",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", code),
			zap.Error(err),
		)

		return c.Status(code).JSON(fiber.Map{
			"success": false,
			"error":   message,
		})
	}
}

func statusFor(err error) int {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr.Code
	}

	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return fiber.StatusUnauthorized
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return fiber.StatusConflict
	case errors.Is(err, domain.ErrUnreachable):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func fallbackMessage(c *fiber.Ctx, err error, code int) string {
	lang := i18n.Match(c.Get(fiber.HeaderAcceptLanguage))

	switch {
	case errors.Is(err, domain.ErrUnreachable):
		return i18n.T(lang, "errors.network")
	case errors.Is(err, domain.ErrUnauthorized):
		return i18n.T(lang, "errors.sessionExpired")
	case code == fiber.StatusTooManyRequests:
		return i18n.T(lang, "errors.tooManyRequests")
	case code >= 500:
		return i18n.T(lang, "errors.server")
	default:
		return i18n.T(lang, "errors.generic")
	}
}

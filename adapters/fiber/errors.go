package fiber

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v3"

	"github.com/lborres/bantay/core"
)

// statusOf maps an error kind to an HTTP status code.
func statusOf(err error) int {
	switch core.KindOf(err) {
	case core.KindValidation, core.KindTokenNotFound:
		return http.StatusBadRequest
	case core.KindUnauthenticated:
		return http.StatusUnauthorized
	case core.KindForbidden:
		return http.StatusForbidden
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindConflict, core.KindPreconditionFailed:
		return http.StatusConflict
	case core.KindTokenExpired, core.KindTokenSuperseded:
		return http.StatusGone
	case core.KindUpstreamUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as a core.ErrorResponse. Errors outside the domain
// taxonomy are hidden behind a generic message.
func writeError(c fiber.Ctx, err error) error {
	var e *core.Error
	if !errors.As(err, &e) {
		return c.Status(http.StatusInternalServerError).JSON(core.ErrorResponse{
			Error:   "INTERNAL_ERROR",
			Message: "internal server error",
		})
	}
	return c.Status(statusOf(err)).JSON(core.ErrorResponse{
		Error:   e.Code,
		Message: e.Message,
	})
}

func (a *Adapter) fail(c fiber.Ctx, err error) error {
	if statusOf(err) >= http.StatusInternalServerError {
		a.logger.ErrorContext(c.Context(), "request failed", "method", c.Method(), "path", c.Path(), "error", err)
	}
	return writeError(c, err)
}

package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"deferral-backend/internal/adapter/middleware"
	"deferral-backend/internal/domain/deferral"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

// ---- helpers ----

// bindValid binds the body into req and validates it. On failure the error
// response is already written and ok is false.
func bindValid(c echo.Context, req any) (ok bool, err error) {
	if err := c.Bind(req); err != nil {
		return false, c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := c.Validate(req); err != nil {
		return false, c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "validation failed",
			Details: ToFieldErrors(err),
		})
	}
	return true, nil
}

func actorOf(c echo.Context) (deferral.Actor, bool) { return middleware.ActorFrom(c) }

func unauthenticated(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthenticated"})
}

// Map domain errors → HTTP codes
func writeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, deferral.ErrNotFound):
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, deferral.ErrUnauthorized):
		return c.JSON(http.StatusForbidden, ErrorResponse{Error: err.Error()})
	case errors.Is(err, deferral.ErrPrecondition):
		return c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	case errors.Is(err, deferral.ErrValidation):
		return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error()})
	case errors.Is(err, deferral.ErrConflict), errors.Is(err, gorm.ErrDuplicatedKey):
		return c.JSON(http.StatusConflict, ErrorResponse{Error: "deferral was modified concurrently, reload and retry"})
	case errors.Is(err, context.DeadlineExceeded):
		slog.ErrorContext(c.Request().Context(), "request timed out", "path", c.Path(), "error", err)
		return c.JSON(http.StatusGatewayTimeout, ErrorResponse{Error: "timed out"})
	default:
		slog.ErrorContext(c.Request().Context(), "request failed", "path", c.Path(), "error", err)
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}

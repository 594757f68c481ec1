package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"deferral-backend/internal/domain/deferral"
	"deferral-backend/internal/domain/user"

	"github.com/labstack/echo/v4"
)

// HeaderUserID carries the authenticated user's public id.
const HeaderUserID = "X-User-Id"

const ctxUserKey = "deferral.user"

// ActorMiddleware resolves the acting user through the directory and rejects
// requests that do not name an active user.
func ActorMiddleware(dir user.Directory) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID := strings.ToLower(strings.TrimSpace(c.Request().Header.Get(HeaderUserID)))
			if userID == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing " + HeaderUserID})
			}
			if !hex32Pattern.MatchString(userID) {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid " + HeaderUserID})
			}

			u, err := dir.FindByID(c.Request().Context(), userID)
			switch {
			case errors.Is(err, user.ErrNotFound):
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unknown user"})
			case err != nil:
				slog.ErrorContext(c.Request().Context(), "resolve acting user", "user_id", userID, "error", err)
				return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "user directory unavailable"})
			case !u.Active:
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "user is inactive"})
			}

			c.Set(ctxUserKey, u)
			return next(c)
		}
	}
}

// UserFrom returns the user resolved by ActorMiddleware.
func UserFrom(c echo.Context) (*user.User, bool) {
	u, ok := c.Get(ctxUserKey).(*user.User)
	return u, ok && u != nil
}

// ActorFrom returns the acting user in the shape the workflow records.
func ActorFrom(c echo.Context) (deferral.Actor, bool) {
	u, ok := UserFrom(c)
	if !ok {
		return deferral.Actor{}, false
	}
	return deferral.Actor{ID: u.UserID, Name: u.Name}, true
}

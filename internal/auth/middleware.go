package auth

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	apperrors "focusflow/internal/errors"
	"focusflow/internal/model"
)

// userContextKey is where Require stores the authenticated user.
const userContextKey = "auth.user"

// Require returns middleware running the next handler only for requests that
// Authorize accepts. Unauthorized maps to 401 and Forbidden to 403.
func (g *Gate) Require(allowed ...model.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			decision := g.Authorize(c.Request(), allowed...)
			if !decision.Allowed() {
				g.log.Info("request rejected",
					zap.String("path", c.Path()),
					zap.Stringer("kind", decision.Rejection.Kind),
					zap.Error(decision.Rejection.Reason),
				)
				httpErr := apperrors.MapErrorToHTTP(decision.Rejection.Reason)
				return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
			}

			c.Set(userContextKey, decision.User)
			return next(c)
		}
	}
}

// UserFromContext returns the user stored by Require, or nil.
func UserFromContext(c echo.Context) *model.AuthenticatedUser {
	user, _ := c.Get(userContextKey).(*model.AuthenticatedUser)
	return user
}

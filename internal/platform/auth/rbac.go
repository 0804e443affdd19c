package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// RequireRole returns a middleware that rejects requests whose caller lacks
// every one of the given roles. Callers with the admin role always pass.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userRoles := RolesFromContext(c.Request().Context())

			for _, r := range userRoles {
				if r == "admin" {
					return next(c)
				}
				for _, required := range roles {
					if r == required {
						return next(c)
					}
				}
			}

			return echo.NewHTTPError(http.StatusForbidden, "insufficient role")
		}
	}
}

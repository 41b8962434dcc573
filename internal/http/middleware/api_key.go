package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v4"
)

const AdminKeyHeader = "X-Admin-Key"

// AdminKeyMiddleware guards operator endpoints with a shared secret in
// X-Admin-Key. An empty key leaves the route open.
func AdminKeyMiddleware(key string) echo.MiddlewareFunc {
	key = strings.TrimSpace(key)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if key == "" {
			return next
		}
		return func(c echo.Context) error {
			got := strings.TrimSpace(c.Request().Header.Get(AdminKeyHeader))
			if got == "" {
				return c.JSON(http.StatusUnauthorized, map[string]any{"success": false, "message": "missing admin key"})
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				return c.JSON(http.StatusUnauthorized, map[string]any{"success": false, "message": "invalid admin key"})
			}
			return next(c)
		}
	}
}

package middleware

// identity.go holds the context keys written by JWTAuth and the helpers
// handlers use to read them back.

import (
	"github.com/labstack/echo/v4"
)

const (
	ctxUserID = "user_id"
	ctxRole   = "role"
)

// Roles carried in the "role" claim.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// UserID returns the authenticated caller id set by JWTAuth.
func UserID(c echo.Context) (string, bool) {
	s, ok := c.Get(ctxUserID).(string)
	return s, ok && s != ""
}

// Role returns the caller's role claim, or "" when unauthenticated.
func Role(c echo.Context) string {
	s, _ := c.Get(ctxRole).(string)
	return s
}

// currentUserID is UserID with "anon" for unauthenticated requests, for
// use in rate limit keys.
func currentUserID(c echo.Context) string {
	if id, ok := UserID(c); ok {
		return id
	}
	return "anon"
}

func fail(c echo.Context, status int, msg string) error {
	return c.JSON(status, echo.Map{"success": false, "error": msg})
}

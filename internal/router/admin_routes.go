package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bug-hunting/internal/handler"
	"github.com/iliyamo/bug-hunting/internal/middleware"
)

// RegisterAdmin registers operator endpoints under /v1/admin.  They
// require the admin role.  Status changes made here bypass the lifecycle
// graph.
func RegisterAdmin(e *echo.Echo, b *handler.BugHandler, jwtSecret string) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleAdmin),
	)
	g.POST("/bugs", b.AdminCreate)
	g.PATCH("/bugs/:id", b.AdminPatch)
}

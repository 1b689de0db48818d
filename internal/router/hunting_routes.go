package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bug-hunting/internal/handler"
	"github.com/iliyamo/bug-hunting/internal/middleware"
)

// RegisterHunting registers the hunting workflow under /v1.  Every route
// requires a valid JWT; both plain users and admins are accepted.  Award
// permission is checked per session inside the handler.
func RegisterHunting(e *echo.Echo, h *handler.HuntingHandler, b *handler.BugHandler, s *handler.StatsHandler, jwtSecret string) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleUser, middleware.RoleAdmin),
	)

	g.POST("/hunting-sessions", h.Create)
	g.GET("/hunting-sessions", h.List)
	g.GET("/hunting-sessions/:id", h.Get)
	g.POST("/hunting-sessions/:id/award", h.Award)

	g.GET("/bugs", b.List)
	g.GET("/bugs/:id", b.Get)
	g.POST("/bugs/:id/status", b.AdvanceStatus)
	g.GET("/bugs/:id/suggested-users", b.SuggestedUsers)
	g.POST("/bugs/:id/tag-users", b.TagUsers)
	g.GET("/bugs/:id/tagged-users", b.TaggedUsers)

	g.GET("/users/:id/stats", s.UserStats)
	g.GET("/users/:id/payments", s.UserPayments)
}

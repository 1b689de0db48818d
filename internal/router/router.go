package router // package router defines how HTTP routes are registered for the API

import (
	"database/sql"

	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/iliyamo/bug-hunting/internal/handler" // import the handlers that implement the endpoints
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance.  Currently it exposes only a health check backed
// by a database ping.
func RegisterRoutes(e *echo.Echo, db *sql.DB) {
	e.GET("/healthz", handler.Health(db))
}

// RegisterPublic registers read-only reference data.  The point scale
// changes rarely, so the response goes through the Redis cache middleware
// when one is configured.
func RegisterPublic(e *echo.Echo, s *handler.StatsHandler, cache echo.MiddlewareFunc) {
	if cache == nil {
		e.GET("/v1/point-scale", s.PointScale)
		return
	}
	e.GET("/v1/point-scale", s.PointScale, cache)
}

package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/bug-hunting/internal/service"
)

// StatsHandler serves user stats, the points ledger and the point scale.
type StatsHandler struct {
	Svc *service.HuntingService
	Log zerolog.Logger
}

// NewStatsHandler panics if svc is nil.
func NewStatsHandler(svc *service.HuntingService, log zerolog.Logger) *StatsHandler {
	if svc == nil {
		panic("nil service passed to NewStatsHandler")
	}
	return &StatsHandler{Svc: svc, Log: log}
}

// UserStats handles GET /v1/users/:id/stats.  Stats are public to any
// signed-in user; "me" names the caller.
func (h *StatsHandler) UserStats(c echo.Context) error {
	id, found := userParam(c)
	if !found {
		return fail(c, http.StatusUnauthorized, "unauthorized")
	}
	st, err := h.Svc.UserStats(c.Request().Context(), id)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return ok(c, http.StatusOK, st)
}

// UserPayments handles GET /v1/users/:id/payments.  Users may read their
// own ledger; admins may read anyone's.
func (h *StatsHandler) UserPayments(c echo.Context) error {
	id, found := userParam(c)
	if !found {
		return fail(c, http.StatusUnauthorized, "unauthorized")
	}
	if caller, _ := getUserID(c); id != caller && !isAdmin(c) {
		return fail(c, http.StatusForbidden, "forbidden")
	}
	out, err := h.Svc.UserPayments(c.Request().Context(), id)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return ok(c, http.StatusOK, echo.Map{"payments": out})
}

// PointScale handles GET /v1/point-scale.
func (h *StatsHandler) PointScale(c echo.Context) error {
	out, err := h.Svc.PointScale(c.Request().Context())
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return ok(c, http.StatusOK, echo.Map{"scale": out})
}

// userParam resolves the :id path parameter, mapping "me" to the caller.
func userParam(c echo.Context) (string, bool) {
	caller, found := getUserID(c)
	if !found {
		return "", false
	}
	if id := c.Param("id"); id != "me" {
		return id, true
	}
	return caller, true
}

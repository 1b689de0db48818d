package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/bug-hunting/internal/service"
)

// BugHandler serves bug reads, status changes, operator overrides and
// candidate suggestions.
type BugHandler struct {
	Svc       *service.HuntingService
	Suggester *service.Suggester
	Log       zerolog.Logger
}

// NewBugHandler panics if a dependency is nil.
func NewBugHandler(svc *service.HuntingService, sg *service.Suggester, log zerolog.Logger) *BugHandler {
	if svc == nil || sg == nil {
		panic("nil dependency passed to NewBugHandler")
	}
	return &BugHandler{Svc: svc, Suggester: sg, Log: log}
}

// Get handles GET /v1/bugs/:id.
func (h *BugHandler) Get(c echo.Context) error {
	b, err := h.Svc.GetBug(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return ok(c, http.StatusOK, b)
}

// List handles GET /v1/bugs?status=&limit=.
func (h *BugHandler) List(c echo.Context) error {
	limit := 100
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			return fail(c, http.StatusBadRequest, "limit must be between 1 and 500")
		}
		limit = n
	}
	bugs, err := h.Svc.ListBugs(c.Request().Context(), c.QueryParam("status"), limit)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return ok(c, http.StatusOK, echo.Map{"bugs": bugs})
}

// TagUsers handles POST /v1/bugs/:id/tag-users with body {user_ids}.  The
// list replaces the bug's current tags.
func (h *BugHandler) TagUsers(c echo.Context) error {
	userID, found := getUserID(c)
	if !found {
		return fail(c, http.StatusUnauthorized, "unauthorized")
	}
	var body struct {
		UserIDs []string `json:"user_ids"`
	}
	if err := c.Bind(&body); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	if body.UserIDs == nil {
		return fail(c, http.StatusBadRequest, "user_ids is required")
	}
	tags, err := h.Svc.TagUsers(c.Request().Context(), c.Param("id"), userID, body.UserIDs)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return ok(c, http.StatusOK, echo.Map{"tags": tags})
}

// TaggedUsers handles GET /v1/bugs/:id/tagged-users.
func (h *BugHandler) TaggedUsers(c echo.Context) error {
	tags, err := h.Svc.BugTags(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return ok(c, http.StatusOK, echo.Map{"tags": tags})
}

// AdvanceStatus handles POST /v1/bugs/:id/status with body {status}.
// Only forward moves along the lifecycle are accepted.
func (h *BugHandler) AdvanceStatus(c echo.Context) error {
	var body struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&body); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	b, err := h.Svc.AdvanceBugStatus(c.Request().Context(), c.Param("id"), body.Status)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return ok(c, http.StatusOK, b)
}

// SuggestedUsers handles GET /v1/bugs/:id/suggested-users.
func (h *BugHandler) SuggestedUsers(c echo.Context) error {
	users, err := h.Suggester.Suggest(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return ok(c, http.StatusOK, echo.Map{"users": users})
}

// AdminCreate handles POST /v1/admin/bugs with body {size, details,
// assigned_to?}.  The caller is recorded as creator.
func (h *BugHandler) AdminCreate(c echo.Context) error {
	userID, found := getUserID(c)
	if !found {
		return fail(c, http.StatusUnauthorized, "unauthorized")
	}
	var body struct {
		Size       string  `json:"size"`
		Details    string  `json:"details"`
		AssignedTo *string `json:"assigned_to"`
	}
	if err := c.Bind(&body); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	b, err := h.Svc.CreateBug(c.Request().Context(), service.CreateBugInput{
		Size:       body.Size,
		Details:    body.Details,
		AssignedTo: body.AssignedTo,
		CreatedBy:  userID,
	})
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return ok(c, http.StatusCreated, b)
}

// AdminPatch handles PATCH /v1/admin/bugs/:id.  Any subset of status,
// size, assigned_to and details may be sent; assigned_to "" unassigns.
func (h *BugHandler) AdminPatch(c echo.Context) error {
	var body struct {
		Status     *string `json:"status"`
		Size       *string `json:"size"`
		AssignedTo *string `json:"assigned_to"`
		Details    *string `json:"details"`
	}
	if err := c.Bind(&body); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	if body.Status == nil && body.Size == nil && body.AssignedTo == nil && body.Details == nil {
		return fail(c, http.StatusBadRequest, "nothing to update")
	}
	b, err := h.Svc.AdminUpdateBug(c.Request().Context(), c.Param("id"), service.AdminBugPatch{
		Status:     body.Status,
		Size:       body.Size,
		AssignedTo: body.AssignedTo,
		Details:    body.Details,
	})
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return ok(c, http.StatusOK, b)
}

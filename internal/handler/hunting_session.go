package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/bug-hunting/internal/model"
	"github.com/iliyamo/bug-hunting/internal/repository"
	"github.com/iliyamo/bug-hunting/internal/service"
)

// HuntingHandler serves the hunting session endpoints.  All methods assume
// JWTAuth has already run.
type HuntingHandler struct {
	Svc *service.HuntingService
	Log zerolog.Logger
}

// NewHuntingHandler panics if svc is nil.
func NewHuntingHandler(svc *service.HuntingService, log zerolog.Logger) *HuntingHandler {
	if svc == nil {
		panic("nil service passed to NewHuntingHandler")
	}
	return &HuntingHandler{Svc: svc, Log: log}
}

type startSessionRequest struct {
	BugID              string  `json:"bug_id"`
	ReproText          string  `json:"repro_text"`
	PRLink             *string `json:"pr_link"`
	AssignedModuleLead *string `json:"assigned_module_lead"`
}

// Create handles POST /v1/hunting-sessions.  The caller becomes the hunter.
// Returns 201 with the new session.
func (h *HuntingHandler) Create(c echo.Context) error {
	userID, found := getUserID(c)
	if !found {
		return fail(c, http.StatusUnauthorized, "unauthorized")
	}
	var body startSessionRequest
	if err := c.Bind(&body); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	sess, err := h.Svc.StartSession(c.Request().Context(), service.StartSessionInput{
		BugID:     body.BugID,
		UserID:    userID,
		ReproText: body.ReproText,
		PRLink:    body.PRLink,
		LeadID:    body.AssignedModuleLead,
	})
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return ok(c, http.StatusCreated, sess)
}

// Award handles POST /v1/hunting-sessions/:id/award with body {mode}.
// Only an admin or the session's assigned module lead may award, and
// never the hunter on their own session.
func (h *HuntingHandler) Award(c echo.Context) error {
	userID, found := getUserID(c)
	if !found {
		return fail(c, http.StatusUnauthorized, "unauthorized")
	}
	id := strings.TrimSpace(c.Param("id"))
	var body struct {
		Mode string `json:"mode"`
	}
	if err := c.Bind(&body); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}

	sess, err := h.Svc.GetSession(c.Request().Context(), id)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	isLead := sess.AssignedModuleLead != nil && *sess.AssignedModuleLead == userID
	if !isAdmin(c) && !isLead {
		return fail(c, http.StatusForbidden, "only an admin or the assigned module lead can award this session")
	}
	if sess.UserID == userID {
		return fail(c, http.StatusForbidden, "hunters cannot award their own session")
	}

	res, err := h.Svc.Award(c.Request().Context(), id, body.Mode)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return ok(c, http.StatusOK, res)
}

// Get handles GET /v1/hunting-sessions/:id.
func (h *HuntingHandler) Get(c echo.Context) error {
	sess, err := h.Svc.GetSession(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return ok(c, http.StatusOK, sess)
}

// List handles GET /v1/hunting-sessions?bug_id=&user_id=&state=&limit=.
func (h *HuntingHandler) List(c echo.Context) error {
	f := repository.SessionFilter{
		BugID:  strings.TrimSpace(c.QueryParam("bug_id")),
		UserID: strings.TrimSpace(c.QueryParam("user_id")),
		State:  model.SessionState(strings.ToLower(strings.TrimSpace(c.QueryParam("state")))),
		Limit:  100,
	}
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			return fail(c, http.StatusBadRequest, "limit must be between 1 and 500")
		}
		f.Limit = n
	}
	out, err := h.Svc.ListSessions(c.Request().Context(), f)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return ok(c, http.StatusOK, echo.Map{"sessions": out})
}

package handler // handler defines http handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/bug-hunting/internal/middleware"
	"github.com/iliyamo/bug-hunting/internal/service"
)

// ok writes the success envelope {success:true, data}.
func ok(c echo.Context, status int, data any) error {
	return c.JSON(status, echo.Map{"success": true, "data": data})
}

// fail writes the error envelope {success:false, error}.
func fail(c echo.Context, status int, msg string) error {
	return c.JSON(status, echo.Map{"success": false, "error": msg})
}

// statusFor maps service errors onto HTTP statuses.
func statusFor(err error) int {
	var (
		ve *service.ValidationError
		nf *service.NotFoundError
		aa *service.AlreadyAwardedError
		ce *service.ConflictError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &nf):
		return http.StatusNotFound
	case errors.As(err, &aa), errors.As(err, &ce):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with its mapped status.  Storage failures are
// logged and reported without driver detail.
func respondError(c echo.Context, log zerolog.Logger, err error) error {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
		return fail(c, status, "storage error, please retry")
	}
	return fail(c, status, err.Error())
}

// getUserID returns the caller id stored by JWTAuth.
func getUserID(c echo.Context) (string, bool) {
	return middleware.UserID(c)
}

func isAdmin(c echo.Context) bool { return middleware.Role(c) == middleware.RoleAdmin }

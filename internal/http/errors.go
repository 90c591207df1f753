package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/autopatchd/internal/approval"
	"github.com/fyrsmithlabs/autopatchd/internal/router"
	"github.com/fyrsmithlabs/autopatchd/internal/ticket"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) (int, string) {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		if msg, ok := he.Message.(string); ok {
			return he.Code, msg
		}
		return he.Code, http.StatusText(he.Code)
	case errors.Is(err, ticket.ErrNotFound):
		return http.StatusNotFound, "ticket not found"
	case errors.Is(err, approval.ErrUnknownRequest):
		return http.StatusNotFound, "approval request not found"
	case errors.Is(err, router.ErrBusy):
		return http.StatusConflict, router.ErrBusy.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// handleError renders errors as JSON. Internal details stay in the logs.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code, msg := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.log.Error(c.Request().Context(), "request failed", zap.Error(err))
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, ErrorResponse{Error: msg})
}

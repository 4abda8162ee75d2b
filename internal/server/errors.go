package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/bankii-labs/bankiiswap/internal/errs"
)

// NotFoundJSON returns a custom HTTP error handler that returns JSON responses
// This ensures all errors (including 404s and rate limit rejections) have consistent JSON format
func NotFoundJSON() echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		// Don't send response if already committed
		if c.Response().Committed {
			return
		}

		// Handle Echo HTTP errors (like 404, 403, 429, etc.)
		if he, ok := err.(*echo.HTTPError); ok {
			msg := http.StatusText(he.Code)
			if m, ok := he.Message.(string); ok && m != "" {
				msg = m
			}
			_ = c.JSON(he.Code, ErrorResponse{
				Error: msg,
				Code:  he.Code,
			})
			return
		}

		// Handle all other errors as internal server error
		_ = c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "internal server error",
			Code:  http.StatusInternalServerError,
		})
	}
}

// fail maps a taxonomy error to its status code and user-facing message.
// Errors outside the taxonomy answer 500 with fallback.
func (h *Handlers) fail(c echo.Context, err error, fallback string) error {
	kind := errs.KindOf(err)
	if kind == errs.Unknown {
		h.Logger.WithError(err).WithField("path", c.Path()).Error(fallback)
		return h.err(c, http.StatusInternalServerError, fallback, map[string]any{"err": err.Error()})
	}

	code := errs.HTTPStatus(kind)
	resp := ErrorResponse{Error: errs.MessageOf(err), Code: code, Kind: string(kind)}
	if h.DevMode {
		resp.Details = map[string]any{"err": err.Error()}
	}
	return c.JSON(code, resp)
}

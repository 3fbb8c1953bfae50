package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/task-manager/internal/service"
)

// Codes used in error bodies besides the service kinds.
const (
	codeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	codePayloadTooLarge  = "PAYLOAD_TOO_LARGE"
	codeTooManyRequests  = "TOO_MANY_REQUESTS"
	codeTimeout          = "TIMEOUT"
	codeRequest          = "REQUEST_ERROR"
	codeInternal         = "INTERNAL_ERROR"
)

type successBody struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type errorBody struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func success(c echo.Context, status int, message string, data any) error {
	return c.JSON(status, successBody{Status: "success", Message: message, Data: data})
}

// HTTPErrorHandler renders every error that reaches echo, whether returned
// by a handler, a middleware or the router itself, as an error body.
// Internal errors are logged and replaced by a generic message.
func HTTPErrorHandler(log *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, code, message := classify(err)
		if status >= http.StatusInternalServerError {
			log.Error("request failed",
				slog.String("method", c.Request().Method),
				slog.String("path", c.Path()),
				slog.String("error", err.Error()),
			)
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, errorBody{Status: "error", Code: code, Message: message})
		}
		if werr != nil {
			log.Error("write error response", slog.String("error", werr.Error()))
		}
	}
}

func classify(err error) (int, string, string) {
	if se, ok := service.AsError(err); ok {
		return kindStatus(se.Kind), string(se.Kind), se.Message
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg, ok := he.Message.(string)
		if !ok || msg == "" {
			msg = http.StatusText(he.Code)
		}
		if he.Code >= http.StatusInternalServerError {
			msg = "internal server error"
		}
		return he.Code, statusCode(he.Code), msg
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusServiceUnavailable, codeTimeout, "request timed out"
	}
	return http.StatusInternalServerError, codeInternal, "internal server error"
}

func kindStatus(k service.Kind) int {
	switch k {
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindUnauthorized:
		return http.StatusUnauthorized
	case service.KindConflict:
		return http.StatusConflict
	case service.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func statusCode(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnsupportedMediaType:
		return string(service.KindValidation)
	case http.StatusUnauthorized:
		return string(service.KindUnauthorized)
	case http.StatusNotFound:
		return string(service.KindNotFound)
	case http.StatusMethodNotAllowed:
		return codeMethodNotAllowed
	case http.StatusConflict:
		return string(service.KindConflict)
	case http.StatusRequestEntityTooLarge:
		return codePayloadTooLarge
	case http.StatusTooManyRequests:
		return codeTooManyRequests
	case http.StatusServiceUnavailable:
		return codeTimeout
	}
	if status < http.StatusInternalServerError {
		return codeRequest
	}
	return codeInternal
}

// badRequest is returned for bodies and query strings that cannot be decoded.
func badRequest(msg string) error {
	return echo.NewHTTPError(http.StatusBadRequest, msg)
}

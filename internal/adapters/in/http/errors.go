package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"freight/internal/core/domain/model/delivery"
	"freight/internal/pkg/errs"
	"freight/internal/workflow"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// statusFor maps an application error to the response status.
func statusFor(err error) int {
	var validationErrs validator.ValidationErrors
	var notFound *errs.ObjectNotFoundError
	var appErr *workflow.ApplicationError

	switch {
	case errors.As(err, &validationErrs), errs.IsValidation(err):
		return http.StatusBadRequest
	case errors.As(err, &notFound), errors.Is(err, workflow.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, workflow.ErrAlreadyRunning), errors.Is(err, delivery.ErrDeliveryIsCompleted):
		return http.StatusConflict
	case errors.As(err, &appErr) && appErr.NonRetryable:
		return http.StatusUnprocessableEntity
	case errors.Is(err, workflow.ErrEngineStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// NewErrorHandler returns an echo.HTTPErrorHandler that renders every error
// as an ErrorResponse. Server errors are logged with the request path.
func NewErrorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := statusFor(err)
		message := err.Error()

		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			code = httpErr.Code
			message = fmt.Sprint(httpErr.Message)
		}

		if code >= http.StatusInternalServerError {
			logger.Error("request failed",
				"error", err,
				"path", c.Request().URL.Path,
				"method", c.Request().Method,
			)
			if code == http.StatusInternalServerError {
				message = http.StatusText(code)
			}
		}

		if writeErr := c.JSON(code, ErrorResponse{Success: false, Code: code, Message: message}); writeErr != nil {
			logger.Error("failed to write error response", "error", writeErr)
		}
	}
}

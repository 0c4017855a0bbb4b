package http

import (
	"context"
	"errors"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/carrydesk/carry-desk/internal/observability"
	apperrors "github.com/carrydesk/carry-desk/pkg/util/errorutil"
)

type errorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type errorBody struct {
	Success   bool        `json:"success"`
	Error     errorDetail `json:"error"`
	RequestID string      `json:"request_id,omitempty"`
}

// RegisterMiddlewares installs, outermost first: the request deadline, the
// access log and the JSON error writer.
func RegisterMiddlewares(app *fiber.App, logger *zap.Logger, metrics *observability.Metrics, timeout time.Duration) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout > 0 {
		app.Use(withDeadline(timeout))
	}
	app.Use(observability.RequestLogger(logger, metrics))
	app.Use(errorWriter(logger, metrics))
}

func withDeadline(timeout time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}

// errorWriter turns handler errors and panics into the JSON error body.
// It consumes the error so outer middleware sees the written status.
func errorWriter(logger *zap.Logger, metrics *observability.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered",
					zap.String("path", c.Path()),
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()))
				err = apperrors.NewInternalError(nil)
			}
			if err == nil {
				return
			}
			de := toDomainError(err)
			metrics.RecordError(c.Route().Path, c.Method(), de.Code)
			if de.HTTPStatus >= http.StatusInternalServerError {
				logger.Error("request failed",
					zap.String("path", c.Path()),
					zap.String("code", de.Code),
					zap.Error(de))
			}
			err = writeError(c, de)
		}()
		return c.Next()
	}
}

func writeError(c *fiber.Ctx, de *apperrors.DomainError) error {
	requestID, _ := c.Locals("request_id").(string)
	return c.Status(de.HTTPStatus).JSON(errorBody{
		Error: errorDetail{
			Code:    de.Code,
			Message: de.Message,
			Details: de.Details,
		},
		RequestID: requestID,
	})
}

// toDomainError also maps fiber's own errors, such as unknown routes.
func toDomainError(err error) *apperrors.DomainError {
	var fe *fiber.Error
	if !errors.As(err, &fe) {
		return apperrors.ToDomainError(err)
	}
	switch {
	case fe.Code == http.StatusNotFound:
		return apperrors.NewDomainError(apperrors.CodeNotFound, fe.Message, fe.Code, nil)
	case fe.Code == http.StatusMethodNotAllowed:
		return apperrors.NewDomainError("METHOD_NOT_ALLOWED", fe.Message, fe.Code, nil)
	case fe.Code == http.StatusRequestEntityTooLarge:
		return apperrors.NewDomainError("PAYLOAD_TOO_LARGE", fe.Message, fe.Code, nil)
	case fe.Code < http.StatusInternalServerError:
		return apperrors.NewValidationError(fe.Message, nil)
	}
	return apperrors.NewInternalError(err)
}

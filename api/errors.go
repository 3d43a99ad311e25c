package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

// Logger is the logging surface used by the error handler
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// ErrorRecorder persists errors for later inspection. It must not fail
// the request.
type ErrorRecorder interface {
	Record(ctx context.Context, c *fiber.Ctx, err *goerrors.Error, httpStatus int)
}

// ErrorHandlerConfig configures ErrorHandler
type ErrorHandlerConfig struct {
	Logger      Logger
	Recorder    ErrorRecorder
	Development bool
}

// ErrorDetail is rendered as envelope data in development mode
type ErrorDetail struct {
	Category string         `json:"category"`
	TextCode string         `json:"text_code,omitempty"`
	Cause    string         `json:"cause,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ErrorHandler renders any error returned by a handler into a Result
// envelope. Internal details are only exposed in development.
func ErrorHandler(cfg ErrorHandlerConfig) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		richErr := AsRichError(err)
		httpStatus := HTTPStatus(richErr)
		status := StatusFor(httpStatus)

		if cfg.Logger != nil {
			args := []any{
				"error", richErr.Message,
				"category", richErr.Category,
				"text_code", richErr.TextCode,
				"status", httpStatus,
				"path", c.OriginalURL(),
			}
			if len(richErr.Metadata) > 0 {
				args = append(args, "details", print.MaybePrettyJSON(richErr.Metadata))
			}
			if httpStatus >= http.StatusInternalServerError {
				cfg.Logger.Error("request failed", args...)
			} else {
				cfg.Logger.Debug("request rejected", args...)
			}
		}

		if cfg.Recorder != nil && (httpStatus >= http.StatusInternalServerError || httpStatus == http.StatusUnauthorized) {
			cfg.Recorder.Record(c.UserContext(), c, richErr, httpStatus)
		}

		message := richErr.Message
		var data any
		if cfg.Development {
			detail := ErrorDetail{
				Category: fmt.Sprint(richErr.Category),
				TextCode: richErr.TextCode,
				Metadata: richErr.Metadata,
			}
			if richErr.Source != nil {
				detail.Cause = richErr.Source.Error()
			}
			data = detail
		} else if httpStatus >= http.StatusInternalServerError {
			message = status.String()
		}

		return Fail(c, httpStatus, status, message, data)
	}
}

// AsRichError converts err into a go-errors Error, wrapping plain errors
// and fiber errors
func AsRichError(err error) *goerrors.Error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		category := goerrors.CategoryInternal
		switch {
		case fiberErr.Code == http.StatusNotFound:
			category = goerrors.CategoryNotFound
		case fiberErr.Code == http.StatusUnauthorized:
			category = goerrors.CategoryAuth
		case fiberErr.Code == http.StatusForbidden:
			category = goerrors.CategoryAuthz
		case fiberErr.Code >= 400 && fiberErr.Code < 500:
			category = goerrors.CategoryBadInput
		}
		return goerrors.New(fiberErr.Message, category).WithCode(fiberErr.Code)
	}

	return goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
		WithCode(goerrors.CodeInternal)
}

// HTTPStatus picks the response status for a rich error. An explicit code
// wins over the category default.
func HTTPStatus(err *goerrors.Error) int {
	if err.Code >= 400 && err.Code < 600 {
		return err.Code
	}

	switch err.Category {
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return http.StatusBadRequest
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryOperation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// StatusFor maps an HTTP status to the envelope status code
func StatusFor(httpStatus int) StatusCode {
	switch {
	case httpStatus == http.StatusUnauthorized || httpStatus == http.StatusForbidden:
		return UnAuthorized
	case httpStatus == http.StatusNotFound:
		return NotFound
	case httpStatus == http.StatusBadRequest:
		return BadRequest
	case httpStatus >= http.StatusInternalServerError:
		return ServerError
	case httpStatus >= 400:
		return LogicError
	default:
		return Success
	}
}

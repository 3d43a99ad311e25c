// Package api holds the JSON response envelope shared by every endpoint and
// the fiber error handler that renders errors into it.
package api

import (
	"github.com/gofiber/fiber/v2"
)

// StatusCode is the application level outcome carried in every envelope
type StatusCode int

const (
	Success StatusCode = iota
	ServerError
	BadRequest
	NotFound
	ListEmpty
	LogicError
	UnAuthorized
)

// String returns the default message for the status code
func (s StatusCode) String() string {
	switch s {
	case Success:
		return "The operation completed successfully."
	case ServerError:
		return "A server error occurred."
	case BadRequest:
		return "The submitted parameters are not valid."
	case NotFound:
		return "Not found."
	case ListEmpty:
		return "The list is empty."
	case LogicError:
		return "A processing error occurred."
	case UnAuthorized:
		return "Authentication failed."
	default:
		return "Unknown status."
	}
}

// Result is the response envelope
type Result struct {
	IsSuccess  bool       `json:"isSuccess"`
	StatusCode StatusCode `json:"statusCode"`
	Message    string     `json:"message"`
	Data       any        `json:"data,omitempty"`
}

// NewResult builds an envelope. An empty message uses the status default.
func NewResult(ok bool, status StatusCode, message string, data any) Result {
	if message == "" {
		message = status.String()
	}
	return Result{
		IsSuccess:  ok,
		StatusCode: status,
		Message:    message,
		Data:       data,
	}
}

// OK writes a 200 success envelope
func OK(c *fiber.Ctx, data any) error {
	return c.Status(fiber.StatusOK).JSON(NewResult(true, Success, "", data))
}

// Created writes a 201 success envelope
func Created(c *fiber.Ctx, data any) error {
	return c.Status(fiber.StatusCreated).JSON(NewResult(true, Success, "", data))
}

// List writes a success envelope, or ListEmpty when items is empty
func List[T any](c *fiber.Ctx, items []T) error {
	if len(items) == 0 {
		return c.Status(fiber.StatusOK).JSON(NewResult(true, ListEmpty, "", []T{}))
	}
	return c.Status(fiber.StatusOK).JSON(NewResult(true, Success, "", items))
}

// Fail writes a failure envelope with the given HTTP status
func Fail(c *fiber.Ctx, httpStatus int, status StatusCode, message string, data any) error {
	return c.Status(httpStatus).JSON(NewResult(false, status, message, data))
}

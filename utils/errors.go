package utils

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// ErrorKind classifies failures surfaced by the mail services
type ErrorKind int

const (
	KindUnexpected ErrorKind = iota
	KindAuthFailure
	KindTimeout
	KindNotFound
	KindParseFailure
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuthFailure:
		return "auth_failure"
	case KindTimeout:
		return "timeout"
	case KindNotFound:
		return "not_found"
	case KindParseFailure:
		return "parse_failure"
	default:
		return "unexpected"
	}
}

// AppError carries a kind, a client-facing message and the underlying cause
type AppError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Detail returns the underlying cause text, if any
func (e *AppError) Detail() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func NewError(kind ErrorKind, message string, err error) *AppError {
	return &AppError{Kind: kind, Message: message, Err: err}
}

func AuthFailure(message string, err error) *AppError {
	return NewError(KindAuthFailure, message, err)
}

func Timeout(message string, err error) *AppError {
	return NewError(KindTimeout, message, err)
}

func NotFound(message string) *AppError {
	return NewError(KindNotFound, message, nil)
}

func ParseFailure(message string, err error) *AppError {
	return NewError(KindParseFailure, message, err)
}

func Unexpected(message string, err error) *AppError {
	return NewError(KindUnexpected, message, err)
}

// KindOf reports the kind of err; anything that is not an AppError is unexpected.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnexpected
}

// IsKind reports whether err is an AppError of the given kind
func IsKind(err error, kind ErrorKind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}

// StatusFor maps an error kind onto the HTTP status returned to clients
func StatusFor(kind ErrorKind) int {
	switch kind {
	case KindNotFound:
		return fiber.StatusNotFound
	case KindAuthFailure:
		return fiber.StatusUnauthorized
	case KindTimeout:
		return fiber.StatusRequestTimeout
	case KindParseFailure:
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}

// HandleError writes err as a standardized error response, using fallback as
// the message when err carries none of its own.
func HandleError(c *fiber.Ctx, err error, fallback string) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		var cause error
		if appErr.Err != nil {
			cause = appErr.Err
		}
		return ErrorResponse(c, StatusFor(appErr.Kind), appErr.Message, cause)
	}
	return ErrorResponse(c, fiber.StatusInternalServerError, fallback, err)
}

package relay_errors

import (
	"errors"
	"net/http"
)

// Common errors
var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrInvalidInput       = errors.New("invalid input")
	ErrWindowExpired      = errors.New("modification window expired")
	ErrRateLimited        = errors.New("rate limited")
	ErrOperationFailed    = errors.New("operation failed")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrAlreadyExists      = errors.New("already exists")
)

// Error attaches a caller-facing message to one of the sentinel kinds above.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// New returns an error matching kind under errors.Is.
func New(kind error, message string) error {
	return &Error{Kind: kind, Message: message}
}

func Forbidden(message string) error     { return New(ErrForbidden, message) }
func NotFound(message string) error      { return New(ErrNotFound, message) }
func Invalid(message string) error       { return New(ErrInvalidInput, message) }
func WindowExpired(message string) error { return New(ErrWindowExpired, message) }

var codes = []struct {
	kind   error
	code   string
	status int
}{
	{ErrUnauthorized, "UNAUTHORIZED", http.StatusUnauthorized},
	{ErrForbidden, "FORBIDDEN", http.StatusForbidden},
	{ErrNotFound, "NOT_FOUND", http.StatusNotFound},
	{ErrWindowExpired, "WINDOW_EXPIRED", http.StatusUnprocessableEntity},
	{ErrInvalidInput, "INVALID_REQUEST", http.StatusBadRequest},
	{ErrConflict, "CONFLICT", http.StatusConflict},
	{ErrAlreadyExists, "CONFLICT", http.StatusConflict},
	{ErrRateLimited, "RATE_LIMITED", http.StatusTooManyRequests},
	{ErrServiceUnavailable, "SERVICE_UNAVAILABLE", http.StatusServiceUnavailable},
}

// Code maps err to the wire code reported to clients. Anything that is not a
// known kind is reported as OPERATION_FAILED.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.kind) {
			return c.code
		}
	}
	return "OPERATION_FAILED"
}

func HTTPStatus(err error) int {
	for _, c := range codes {
		if errors.Is(err, c.kind) {
			return c.status
		}
	}
	return http.StatusInternalServerError
}

// IsKnown reports whether err belongs to the client-facing taxonomy. Unknown
// errors are logged and replaced with a generic message before leaving the
// process.
func IsKnown(err error) bool {
	for _, c := range codes {
		if errors.Is(err, c.kind) {
			return true
		}
	}
	return false
}

// PublicMessage is the text safe to send back to a client.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	if IsKnown(err) {
		return err.Error()
	}
	return ErrOperationFailed.Error()
}

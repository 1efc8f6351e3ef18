// Package apperr defines the error taxonomy shared by the task, chat and
// notification services, and the single place those errors become HTTP responses.
package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// Kind classifies an error for callers and for the HTTP layer.
type Kind int

const (
	KindServerFault Kind = iota
	KindValidation
	KindAccessDenied
	KindNotFound
	KindInvalidTransition
	KindConflict
	KindUnauthenticated
	KindRateLimited
)

// String returns the wire code for k.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindAccessDenied:
		return "access_denied"
	case KindNotFound:
		return "not_found"
	case KindInvalidTransition:
		return "invalid_transition"
	case KindConflict:
		return "conflict"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "server_fault"
	}
}

// HTTPStatus maps k to the response status code.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAccessDenied:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidTransition, KindConflict:
		return http.StatusConflict
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error carries a Kind, a message safe to show to the caller, and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so errors.Is(err, apperr.ErrNotFound) works
// regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == ""
}

// Sentinels for errors.Is comparisons. They carry no message.
var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrAccessDenied      = &Error{Kind: KindAccessDenied}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrUnauthenticated   = &Error{Kind: KindUnauthenticated}
	ErrRateLimited       = &Error{Kind: KindRateLimited}
	ErrServerFault       = &Error{Kind: KindServerFault}
)

// Validation builds a KindValidation error.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// AccessDenied builds a KindAccessDenied error.
func AccessDenied(format string, args ...any) *Error {
	return &Error{Kind: KindAccessDenied, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds a KindNotFound error.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// InvalidTransition builds a KindInvalidTransition error.
func InvalidTransition(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidTransition, Message: fmt.Sprintf(format, args...)}
}

// Conflict builds a KindConflict error.
func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Unauthenticated builds a KindUnauthenticated error.
func Unauthenticated(format string, args ...any) *Error {
	return &Error{Kind: KindUnauthenticated, Message: fmt.Sprintf(format, args...)}
}

// RateLimited builds a KindRateLimited error.
func RateLimited(format string, args ...any) *Error {
	return &Error{Kind: KindRateLimited, Message: fmt.Sprintf(format, args...)}
}

// Fault wraps an unexpected error (usually from persistence) as KindServerFault.
func Fault(err error, format string, args ...any) *Error {
	return &Error{Kind: KindServerFault, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the Kind of err, treating anything unclassified as a server fault.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindServerFault
}

type body struct {
	Error detail `json:"error"`
}

type detail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Write renders err as a JSON error body with the matching status code.
// Server faults are logged and their details are not returned to the client.
func Write(w http.ResponseWriter, logger *zap.Logger, err error) {
	kind := KindOf(err)
	msg := "internal server error"
	var e *Error
	if errors.As(err, &e) && kind != KindServerFault {
		msg = e.Message
	}
	if kind == KindServerFault && logger != nil {
		logger.Error("request failed", zap.Error(err))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(kind.HTTPStatus())
	_ = json.NewEncoder(w).Encode(body{Error: detail{Code: kind.String(), Message: msg}})
}

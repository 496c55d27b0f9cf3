package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidOrder       = errors.New("invalid order")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidStatus      = errors.New("invalid status value")
	ErrTerminalState      = errors.New("order in terminal state")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrConflict           = errors.New("concurrent modification")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrValidation         = errors.New("validation failed")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
)

// Error codes returned by Classify. They are part of the API contract.
const (
	CodeNotFound     = "not_found"
	CodeBadRequest   = "bad_request"
	CodeConflict     = "conflict"
	CodeUnavailable  = "unavailable"
	CodeUnauthorized = "unauthorized"
	CodeForbidden    = "forbidden"
	CodeInternal     = "internal"
)

// Classify returns the stable classification of err.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrInvalidOrder), errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrValidation):
		return CodeBadRequest
	case errors.Is(err, ErrInsufficientStock), errors.Is(err, ErrTerminalState),
		errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrGatewayUnavailable):
		return CodeUnavailable
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	}
	return CodeInternal
}

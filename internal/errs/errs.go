// Package errs defines the error taxonomy shared by the resolver, quote
// service and swap orchestrator.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	InvalidInput        Kind = "invalid_input"
	NotFound            Kind = "not_found"
	NoRoute             Kind = "no_route"
	InsufficientBalance Kind = "insufficient_balance"
	RateLimited         Kind = "rate_limited"
	NetworkTimeout      Kind = "network_timeout"
	ProviderError       Kind = "provider_error"
	UserRejected        Kind = "user_rejected"
	BroadcastFailed     Kind = "broadcast_failed"
	Unknown             Kind = "unknown"
)

// Error carries a taxonomy kind and a user-facing message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind, so errors.Is(err, &Error{Kind: NoRoute}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the kind of the first *Error in the chain, or Unknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// MessageOf returns the user-facing message of the first *Error in the chain.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// HTTPStatus maps a kind to the status code the API answers with.
func HTTPStatus(kind Kind) int {
	switch kind {
	case InvalidInput:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case NoRoute, InsufficientBalance:
		return http.StatusUnprocessableEntity
	case RateLimited:
		return http.StatusTooManyRequests
	case NetworkTimeout:
		return http.StatusGatewayTimeout
	case ProviderError, BroadcastFailed:
		return http.StatusBadGateway
	case UserRejected:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

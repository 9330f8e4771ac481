package client

import (
	"errors"
	"fmt"
)

// Sentinel errors callers branch on. Everything else is wrapped transport
// or decode failure.
var (
	ErrUnauthorized    = errors.New("store: unauthorized")
	ErrRateLimited     = errors.New("store: rate limited")
	ErrDerivationLimit = errors.New("store: derivation limit exceeded")
	ErrDuplicate       = errors.New("store: duplicate content")
	ErrNotFound        = errors.New("store: not found")
)

// APIError is a structured error envelope returned by the Store.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("store: %s (%d): %s", e.Code, e.Status, e.Message)
}

// Unwrap maps well-known codes onto sentinels so errors.Is works.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case "unauthorized":
		return ErrUnauthorized
	case "rate_limited":
		return ErrRateLimited
	case "derivation_limit":
		return ErrDerivationLimit
	case "duplicate":
		return ErrDuplicate
	case "not_found":
		return ErrNotFound
	}
	return nil
}

// retryable reports whether the failure is transient: worth another attempt
// and, if attempts run out, a circuit-breaker count.
func retryable(status int, err error) bool {
	if err != nil {
		return true // transport-level: timeout, refused, reset
	}
	return status >= 500 || status == 429
}

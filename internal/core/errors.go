// internal/core/errors.go
package core

import (
	"errors"
	"fmt"
	"time"
)

// Error represents a structured error with code and optional cause.
type Error struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is matching by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WrapError creates a new error with the same code but with a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// Predefined errors
var (
	// Provider errors
	ErrNotFound          = &Error{Code: "NOT_FOUND", Message: "symbol or resource not found"}
	ErrRateLimited       = &Error{Code: "RATE_LIMITED", Message: "provider rate limit exceeded"}
	ErrAuth              = &Error{Code: "AUTH_FAILED", Message: "provider rejected credentials"}
	ErrNetwork           = &Error{Code: "NETWORK_ERROR", Message: "provider unreachable"}
	ErrMalformedResponse = &Error{Code: "MALFORMED_RESPONSE", Message: "unexpected provider response"}

	// Fusion errors
	ErrNoDataAvailable = &Error{Code: "NO_DATA_AVAILABLE", Message: "no data available from any source"}

	// Input errors
	ErrInvalidSymbol  = &Error{Code: "INVALID_SYMBOL", Message: "invalid symbol"}
	ErrInvalidRequest = &Error{Code: "INVALID_REQUEST", Message: "invalid request"}

	// Notifier errors
	ErrNotifierFailed = &Error{Code: "NOTIFIER_FAILED", Message: "notifier failed"}

	// Job errors
	ErrJobNotFound = &Error{Code: "JOB_NOT_FOUND", Message: "job not found"}

	// Config errors
	ErrConfigInvalid = &Error{Code: "CONFIG_INVALID", Message: "configuration invalid"}
	ErrConfigMissing = &Error{Code: "CONFIG_MISSING", Message: "required configuration missing"}

	// LLM errors
	ErrLLMFailed  = &Error{Code: "LLM_FAILED", Message: "LLM request failed"}
	ErrLLMTimeout = &Error{Code: "LLM_TIMEOUT", Message: "LLM request timeout"}
)

// ProviderError is returned by provider adapters. Kind is one of the
// provider error sentinels, so errors.Is(err, ErrRateLimited) works on it.
type ProviderError struct {
	Provider   string
	Kind       *Error
	Status     int
	RetryAfter time.Duration
	Err        error
}

// NewProviderError builds a ProviderError of the given kind.
func NewProviderError(provider string, kind *Error, status int, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Status: status, Err: err}
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s: [%s] %s", e.Provider, e.Kind.Code, e.Kind.Message)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// taxonomy is checked in order; NoDataAvailable wins over the stage errors it wraps.
var taxonomy = []*Error{
	ErrNoDataAvailable,
	ErrInvalidSymbol,
	ErrInvalidRequest,
	ErrNotFound,
	ErrRateLimited,
	ErrAuth,
	ErrMalformedResponse,
	ErrNetwork,
	ErrJobNotFound,
	ErrConfigInvalid,
	ErrConfigMissing,
	ErrLLMFailed,
	ErrLLMTimeout,
	ErrNotifierFailed,
}

// KindOf returns the predefined error that err matches, or nil.
func KindOf(err error) *Error {
	if err == nil {
		return nil
	}
	for _, kind := range taxonomy {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// RetryAfter returns the Retry-After hint carried by a rate-limit error.
func RetryAfter(err error) time.Duration {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.RetryAfter
	}
	return 0
}

// Package http provides shared HTTP plumbing for LLM provider clients:
// typed errors, retry with backoff, call logging, metrics, and response
// extraction helpers.
package http

import "fmt"

// ErrorType categorizes provider API failures.
type ErrorType int

const (
	ErrTypeAuthentication ErrorType = iota
	ErrTypeRateLimit
	ErrTypeServiceUnavailable
	ErrTypeInvalidRequest
	ErrTypeTimeout
	ErrTypeModelNotFound
	ErrTypeContentFiltered
	ErrTypeUnknown
)

func (e ErrorType) String() string {
	switch e {
	case ErrTypeAuthentication:
		return "authentication error"
	case ErrTypeRateLimit:
		return "rate limit exceeded"
	case ErrTypeServiceUnavailable:
		return "service unavailable"
	case ErrTypeInvalidRequest:
		return "invalid request"
	case ErrTypeTimeout:
		return "timeout"
	case ErrTypeModelNotFound:
		return "model not found"
	case ErrTypeContentFiltered:
		return "content filtered"
	default:
		return "unknown error"
	}
}

// Error is a provider API error with enough context to decide on retry.
type Error struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Retryable  bool
	Provider   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %s (status: %d)", e.Provider, e.Type.String(), e.Message, e.StatusCode)
}

// Is matches on error type, so errors.Is(err, &Error{Type: ErrTypeRateLimit})
// works regardless of message or provider.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

func (e *Error) IsRetryable() bool {
	return e.Retryable
}

func NewAuthenticationError(provider, message string) *Error {
	return &Error{Type: ErrTypeAuthentication, Message: message, StatusCode: 401, Retryable: false, Provider: provider}
}

func NewRateLimitError(provider, message string) *Error {
	return &Error{Type: ErrTypeRateLimit, Message: message, StatusCode: 429, Retryable: true, Provider: provider}
}

func NewServiceUnavailableError(provider, message string) *Error {
	return &Error{Type: ErrTypeServiceUnavailable, Message: message, StatusCode: 503, Retryable: true, Provider: provider}
}

func NewInvalidRequestError(provider, message string) *Error {
	return &Error{Type: ErrTypeInvalidRequest, Message: message, StatusCode: 400, Retryable: false, Provider: provider}
}

func NewTimeoutError(provider, message string) *Error {
	return &Error{Type: ErrTypeTimeout, Message: message, StatusCode: 0, Retryable: true, Provider: provider}
}

func NewModelNotFoundError(provider, message string) *Error {
	return &Error{Type: ErrTypeModelNotFound, Message: message, StatusCode: 404, Retryable: false, Provider: provider}
}

func NewContentFilteredError(provider, message string) *Error {
	return &Error{Type: ErrTypeContentFiltered, Message: message, StatusCode: 400, Retryable: false, Provider: provider}
}

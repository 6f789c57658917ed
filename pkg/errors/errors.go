package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents the classes of failure the crawl pipeline distinguishes
type ErrorType string

const (
	ErrorTypeTransport      ErrorType = "transport"
	ErrorTypeFetchExhausted ErrorType = "fetch_exhausted"
	ErrorTypeShape          ErrorType = "shape"
	ErrorTypePrecondition   ErrorType = "precondition"
	ErrorTypePoolExhausted  ErrorType = "pool_exhausted"
	ErrorTypeConfig         ErrorType = "config"
	ErrorTypeSource         ErrorType = "source"
	ErrorTypeSink           ErrorType = "sink"
	ErrorTypeUnknown        ErrorType = "unknown"
)

// Error carries a failure class, an optional HTTP status and the wrapped cause
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s error: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches two *Error values by type, so sentinels work with errors.Is
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Type == e.Type && (t.Message == "" || t.Message == e.Message)
}

// Sentinels for errors.Is checks
var (
	ErrFetchExhausted = &Error{Type: ErrorTypeFetchExhausted}
	ErrShape          = &Error{Type: ErrorTypeShape}
	ErrPoolExhausted  = &Error{Type: ErrorTypePoolExhausted}
	ErrPrecondition   = &Error{Type: ErrorTypePrecondition}
)

// New creates a typed error
func New(t ErrorType, msg string) *Error {
	return &Error{Type: t, Message: msg}
}

// Wrap creates a typed error around a cause
func Wrap(t ErrorType, err error, msg string) *Error {
	return &Error{Type: t, Message: msg, Err: err}
}

// Transport creates a transport error for a failed request or a blocking status
func Transport(err error, code int) *Error {
	msg := "request failed"
	if code != 0 {
		msg = fmt.Sprintf("blocking status %d", code)
	}
	return &Error{Type: ErrorTypeTransport, Message: msg, Code: code, Err: err}
}

// Shapef creates a shape error
func Shapef(format string, args ...interface{}) *Error {
	return &Error{Type: ErrorTypeShape, Message: fmt.Sprintf(format, args...)}
}

// TypeOf returns the ErrorType of err, or ErrorTypeUnknown
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// IsTransport reports whether err is a transport failure
func IsTransport(err error) bool {
	return TypeOf(err) == ErrorTypeTransport
}

// IsShape reports whether err is a shape failure
func IsShape(err error) bool {
	return TypeOf(err) == ErrorTypeShape
}

// IsRetryable checks if an error type is recovered by retrying
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeTransport:
		return true
	case ErrorTypeShape, ErrorTypePrecondition, ErrorTypeFetchExhausted, ErrorTypeConfig:
		return false
	default:
		return false
	}
}

// IsProxyBlockingStatus reports whether a status code means the proxy, not
// the target, is the problem: refused auth, bans, throttling, gateway errors.
func IsProxyBlockingStatus(statusCode int) bool {
	switch statusCode {
	case 403, 407, 418, 429:
		return true
	case 500, 502, 503, 504:
		return true
	default:
		return statusCode >= 500
	}
}

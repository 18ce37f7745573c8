package errs

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType error type enumeration
type ErrorType int

const (
	// ErrorTypeFatal fatal error (requires disconnection)
	ErrorTypeFatal ErrorType = iota
	// ErrorTypeRecoverable recoverable error (can retry)
	ErrorTypeRecoverable
	// ErrorTypeTransient transient error (temporary failure, will auto-recover)
	ErrorTypeTransient
)

// String returns string representation of ErrorType
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeFatal:
		return "fatal"
	case ErrorTypeRecoverable:
		return "recoverable"
	case ErrorTypeTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Error unified error structure
type Error struct {
	Type    ErrorType
	Service string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Service, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Service, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// NewFatal create fatal error
func NewFatal(service, message string, err error) *Error {
	return &Error{
		Type:    ErrorTypeFatal,
		Service: service,
		Message: message,
		Err:     err,
	}
}

// NewRecoverable create recoverable error
func NewRecoverable(service, message string, err error) *Error {
	return &Error{
		Type:    ErrorTypeRecoverable,
		Service: service,
		Message: message,
		Err:     err,
	}
}

// NewTransient create transient error
func NewTransient(service, message string, err error) *Error {
	return &Error{
		Type:    ErrorTypeTransient,
		Service: service,
		Message: message,
		Err:     err,
	}
}

// IsFatal check if error is fatal
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Type == ErrorTypeFatal
	}

	// check keywords in error message
	errMsg := strings.ToLower(err.Error())
	fatalKeywords := []string{
		"unauthorized",
		"authentication failed",
		"invalid credentials",
		"api key invalid",
		"api key expired",
		"permission denied",
		"access denied",
	}

	for _, keyword := range fatalKeywords {
		if strings.Contains(errMsg, keyword) {
			return true
		}
	}

	return false
}

// IsTransient check if error is transient
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Type == ErrorTypeTransient
	}

	errMsg := strings.ToLower(err.Error())
	transientKeywords := []string{
		"timeout",
		"connection reset",
		"connection refused",
		"network",
		"temporary",
		"retry",
		"rate limit",
		"too many requests",
		"service unavailable",
		"internal server error",
	}

	for _, keyword := range transientKeywords {
		if strings.Contains(errMsg, keyword) {
			return true
		}
	}

	return false
}

// Classify error type
func Classify(err error, service string) *Error {
	if err == nil {
		return nil
	}

	// if already unified error type, return directly
	var e *Error
	if errors.As(err, &e) {
		return e
	}

	errType := ErrorTypeRecoverable
	if IsFatal(err) {
		errType = ErrorTypeFatal
	} else if IsTransient(err) {
		errType = ErrorTypeTransient
	}

	return &Error{
		Type:    errType,
		Service: service,
		Message: err.Error(),
		Err:     err,
	}
}

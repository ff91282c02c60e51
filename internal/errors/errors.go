// Package errors provides the error taxonomy for the scanner.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// ErrorType categorizes errors for handling decisions. Only Input errors
// surface synchronously to callers; everything else is absorbed into the
// scan loop as a classified miss or a warning event.
type ErrorType int

const (
	// Unknown is an uncategorized error.
	Unknown ErrorType = iota
	// Input represents malformed caller input (bad URL, no digit run).
	Input
	// Transient represents per-probe failures (timeout, reset, bad status).
	Transient
	// RateLimit represents 429 responses.
	RateLimit
	// Blocked represents 403 responses.
	Blocked
	// GateTimeout represents an unresolved consent barrier.
	GateTimeout
	// AutomationUnavailable represents a missing browser engine or binary.
	AutomationUnavailable
	// Fatal represents an error escaping the loop body.
	Fatal
	// Cancelled represents caller disconnect or context cancellation.
	Cancelled
)

// String returns the string representation of ErrorType.
func (t ErrorType) String() string {
	switch t {
	case Input:
		return "input"
	case Transient:
		return "transient"
	case RateLimit:
		return "rate_limit"
	case Blocked:
		return "blocked"
	case GateTimeout:
		return "gate_timeout"
	case AutomationUnavailable:
		return "automation_unavailable"
	case Fatal:
		return "fatal"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Recoverable reports whether the scan continues after an error of this
// type. Input errors stop a scan before it starts and Fatal errors end it.
func (t ErrorType) Recoverable() bool {
	switch t {
	case Input, Fatal:
		return false
	default:
		return true
	}
}

// ScanError is a categorized scanner error.
type ScanError struct {
	Type       ErrorType
	URL        string
	Operation  string
	Message    string
	Cause      error
	StatusCode int
}

// Error implements the error interface.
func (e *ScanError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error during %s on %s: %s (caused by: %v)",
			e.Type.String(), e.Operation, e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error during %s on %s: %s",
		e.Type.String(), e.Operation, e.URL, e.Message)
}

// Unwrap returns the underlying error.
func (e *ScanError) Unwrap() error {
	return e.Cause
}

// Is matches ScanErrors by type.
func (e *ScanError) Is(target error) bool {
	t, ok := target.(*ScanError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// New creates a ScanError.
func New(errType ErrorType, url, operation, message string, cause error) *ScanError {
	return &ScanError{
		Type:      errType,
		URL:       url,
		Operation: operation,
		Message:   message,
		Cause:     cause,
	}
}

// NewInputError creates an input validation error.
func NewInputError(message string, cause error) *ScanError {
	return New(Input, "", "validate", message, cause)
}

// NewTransientError creates a per-probe transport error.
func NewTransientError(url string, cause error) *ScanError {
	return New(Transient, url, "probe", "probe failed", cause)
}

// NewGateTimeoutError creates a gate-timeout warning error.
func NewGateTimeoutError(url string) *ScanError {
	return New(GateTimeout, url, "gate_bypass", "gate not resolved within poll bound", nil)
}

// NewAutomationUnavailableError creates a missing-browser error.
func NewAutomationUnavailableError(cause error) *ScanError {
	return New(AutomationUnavailable, "", "browser_launch", "browser engine unavailable", cause)
}

// NewFatalError wraps an error that escaped the loop body.
func NewFatalError(operation string, cause error) *ScanError {
	return New(Fatal, "", operation, "unrecoverable scan failure", cause)
}

// NewCancelledError creates a cancellation error.
func NewCancelledError(operation string) *ScanError {
	return New(Cancelled, "", operation, "scan cancelled", nil)
}

// Categorize determines the error type of a generic error.
func Categorize(err error, url string) *ScanError {
	if err == nil {
		return nil
	}

	var scanErr *ScanError
	if errors.As(err, &scanErr) {
		return scanErr
	}

	if errors.Is(err, context.Canceled) {
		return NewCancelledError("probe")
	}

	if isTimeout(err) || isNetworkError(err) {
		return NewTransientError(url, err)
	}

	return New(Unknown, url, "probe", err.Error(), err)
}

// FromStatus maps a non-success HTTP status to its error category, or nil
// for statuses the classifier handles as ordinary content.
func FromStatus(statusCode int, url string) *ScanError {
	switch statusCode {
	case 403:
		e := New(Blocked, url, "probe", "forbidden", nil)
		e.StatusCode = statusCode
		return e
	case 429:
		e := New(RateLimit, url, "probe", "rate limited", nil)
		e.StatusCode = statusCode
		return e
	default:
		return nil
	}
}

// IsTransient reports whether the error should be absorbed as a miss.
func IsTransient(err error) bool {
	var scanErr *ScanError
	if errors.As(err, &scanErr) {
		return scanErr.Type == Transient || scanErr.Type == RateLimit
	}
	return isTimeout(err) || isNetworkError(err)
}

// GetErrorType extracts the error type from an error.
func GetErrorType(err error) ErrorType {
	var scanErr *ScanError
	if errors.As(err, &scanErr) {
		return scanErr.Type
	}
	return Unknown
}

// isTimeout checks if an error is a timeout.
func isTimeout(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded")
}

// isNetworkError checks if an error is network-related.
func isNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}

	errStr := err.Error()
	return strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "network is unreachable") ||
		strings.Contains(errStr, "dial tcp")
}

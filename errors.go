package courier

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Error type constants carried in Error.Type.
const (
	// ErrorTypeValidation covers empty or malformed URLs, unsupported
	// methods, unserializable bodies and invalid pipeline configuration.
	// These fail fast, carry no status code and are never retried.
	ErrorTypeValidation = "Validation"
	// ErrorTypeTimeout is raised when the per-attempt timer fires before
	// transport completes. Carries status 408.
	ErrorTypeTimeout = "Timeout"
	// ErrorTypeNetwork is raised when transport fails before any response is
	// received, and when an interceptor aborts an attempt. Carries status 0.
	ErrorTypeNetwork = "Network"
	// ErrorTypeHTTP is raised for any response with a failure status and
	// carries the decoded error body.
	ErrorTypeHTTP = "HTTP"
	// ErrorTypeCanceled is raised when the caller's context is canceled or
	// reaches its deadline. Cancellation is never retried.
	ErrorTypeCanceled = "Canceled"
)

// Error is the single error shape escaping the pipeline: every failure a
// call site can observe is a *Error. StatusCode is 0 whenever the failure
// happened before any response was received.
type Error struct {
	Type       string
	Message    string
	StatusCode int
	StatusText string
	// Body holds the decoded error response body: the structured decode when
	// the server sent JSON, the plain text otherwise, nil when both fail.
	Body       any
	Method     string
	URL        string
	Attempt    int
	MaxRetries int
	RequestID  string
	Timestamp  time.Time
	Cause      error
}

// IsAuthError reports whether the failure is an authentication failure. It
// is derived from the status code: true iff 401 or 403.
func (e *Error) IsAuthError() bool {
	if e == nil {
		return false
	}
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// Error implements error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Attempt > 0 {
		msg = fmt.Sprintf("%s (attempt %d/%d)", msg, e.Attempt, e.MaxRetries)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error types for errors.Is.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*Error); ok {
		return e.Type == targetErr.Type
	}
	return false
}

// DebugInfo renders a multi-line string with diagnostic context.
func (e *Error) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	info := fmt.Sprintf("Error Type: %s\n", e.Type)
	info += fmt.Sprintf("Message: %s\n", e.Message)
	if e.RequestID != "" {
		info += fmt.Sprintf("Request ID: %s\n", e.RequestID)
	}
	if e.Method != "" {
		info += fmt.Sprintf("Method: %s\n", e.Method)
	}
	if e.URL != "" {
		info += fmt.Sprintf("URL: %s\n", e.URL)
	}
	if e.StatusCode > 0 {
		info += fmt.Sprintf("Status Code: %d\n", e.StatusCode)
	}
	if e.StatusText != "" {
		info += fmt.Sprintf("Status Text: %s\n", e.StatusText)
	}
	if e.IsAuthError() {
		info += "Auth Error: true\n"
	}
	if e.Attempt > 0 {
		info += fmt.Sprintf("Attempt: %d/%d\n", e.Attempt, e.MaxRetries)
	}
	if !e.Timestamp.IsZero() {
		info += fmt.Sprintf("Timestamp: %s\n", e.Timestamp.Format(time.RFC3339))
	}
	if e.Cause != nil {
		info += fmt.Sprintf("Cause: %v\n", e.Cause)
	}
	return info
}

// AsError extracts a *Error from err via errors.As.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsTimeout reports whether err is a pipeline timeout failure.
func IsTimeout(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Type == ErrorTypeTimeout
	}
	return false
}

// IsAuthFailure reports whether err carries an authentication failure
// status (401 or 403).
func IsAuthFailure(err error) bool {
	if e, ok := AsError(err); ok {
		return e.IsAuthError()
	}
	return false
}

// IsHTTPStatus reports whether err is an HTTP failure with the given
// status code.
func IsHTTPStatus(err error, statusCode int) bool {
	if e, ok := AsError(err); ok {
		return e.Type == ErrorTypeHTTP && e.StatusCode == statusCode
	}
	return false
}

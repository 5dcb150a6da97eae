// Package llmerrors classifies model backend failures so the gate can decide
// whether another attempt is worth making.
package llmerrors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ErrorType is the failure class of a backend call.
type ErrorType int8

// Retryable classes first, then the ones a retry cannot fix.
const (
	ErrorTypeRateLimit ErrorType = iota
	ErrorTypeTransient
	ErrorTypeEmptyResponse // HTTP 200 with no text
	ErrorTypeUnknown
	ErrorTypeAuth
	ErrorTypeBadPrompt
	ErrorTypeServiceUnavailable // attempts exhausted
)

var typeNames = [...]string{
	ErrorTypeRateLimit:          "rate_limit",
	ErrorTypeTransient:          "transient",
	ErrorTypeEmptyResponse:      "empty_response",
	ErrorTypeUnknown:            "unknown",
	ErrorTypeAuth:               "auth",
	ErrorTypeBadPrompt:          "bad_prompt",
	ErrorTypeServiceUnavailable: "service_unavailable",
}

func (t ErrorType) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return "invalid"
	}
	return typeNames[t]
}

// Retryable reports whether another attempt may succeed.
func (t ErrorType) Retryable() bool {
	return t < ErrorTypeAuth
}

// Error is a classified backend failure.
type Error struct {
	Err        error
	Message    string
	Type       ErrorType
	StatusCode int
}

func (e *Error) Error() string {
	var detail string
	switch {
	case e.Message != "":
		detail = e.Message
	case e.Err != nil:
		detail = e.Err.Error()
	default:
		detail = fmt.Sprintf("status %d", e.StatusCode)
	}
	return e.Type.String() + ": " + detail
}

func (e *Error) Unwrap() error { return e.Err }

// IsRetryable reports whether the gate should try again after e.
func (e *Error) IsRetryable() bool { return e.Type.Retryable() }

// Is reports whether err carries a classified error of type t.
func Is(err error, t ErrorType) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == t
}

// TypeOf returns the class of err, ErrorTypeUnknown when unclassified.
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// NewError returns a classified error with a message.
func NewError(t ErrorType, message string) *Error {
	return &Error{Type: t, Message: message}
}

// NewErrorWithCause returns a classified error wrapping cause.
func NewErrorWithCause(t ErrorType, cause error, message string) *Error {
	return &Error{Type: t, Err: cause, Message: message}
}

// NewServiceUnavailableError reports that attempts ran out; cause is the last failure.
func NewServiceUnavailableError(cause error, attempts int) *Error {
	return &Error{
		Type:    ErrorTypeServiceUnavailable,
		Err:     cause,
		Message: fmt.Sprintf("gave up after %d attempts: %v", attempts, cause),
	}
}

// ClassifyStatus maps an HTTP status to a class.
func ClassifyStatus(status int) ErrorType {
	switch status {
	case http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrorTypeAuth
	case http.StatusBadRequest, http.StatusNotFound, http.StatusRequestEntityTooLarge, http.StatusUnprocessableEntity:
		return ErrorTypeBadPrompt
	}
	if status >= http.StatusInternalServerError {
		return ErrorTypeTransient
	}
	return ErrorTypeUnknown
}

// messageRules classify errors that arrive without a status, first match wins.
var messageRules = []struct {
	needles []string
	typ     ErrorType
}{
	{[]string{"rate limit", "quota"}, ErrorTypeRateLimit},
	{[]string{"api key", "unauthorized"}, ErrorTypeAuth},
	{[]string{"eof", "connection reset", "connection refused", "timeout"}, ErrorTypeTransient},
}

// Classify wraps a provider SDK error. status is 0 when the SDK exposed none.
// Context errors and already classified errors come back unchanged.
func Classify(err error, status int, provider string) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var classified *Error
	if errors.As(err, &classified) {
		return err
	}

	t := ClassifyStatus(status)
	if status == 0 {
		t = classifyMessage(err)
	}
	return &Error{Type: t, StatusCode: status, Err: err, Message: fmt.Sprintf("%s: %v", provider, err)}
}

func classifyMessage(err error) ErrorType {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorTypeTransient
	}
	msg := strings.ToLower(err.Error())
	for _, rule := range messageRules {
		for _, needle := range rule.needles {
			if strings.Contains(msg, needle) {
				return rule.typ
			}
		}
	}
	return ErrorTypeUnknown
}

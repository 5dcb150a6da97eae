package gate

import (
	"errors"

	"relaybot/pkg/llm"
)

// Outcome tags how a gated call ended.
type Outcome int

const (
	// OutcomeSuccess means the model returned a non-empty answer.
	OutcomeSuccess Outcome = iota
	// OutcomeTimeout means the deadline (timeout plus grace) elapsed. Never retried.
	OutcomeTimeout
	// OutcomeExhausted means every attempt failed; Err holds the last failure.
	OutcomeExhausted
	// OutcomeUnconfigured means no credential or provider exists for the model.
	OutcomeUnconfigured
	// OutcomeCanceled means the caller's context ended first.
	OutcomeCanceled
)

// String returns the metric label for the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeExhausted:
		return "exhausted"
	case OutcomeUnconfigured:
		return "unconfigured"
	case OutcomeCanceled:
		return "canceled"
	default:
		return "invalid"
	}
}

var (
	// ErrTimeout is wrapped by the error of a timed out call.
	ErrTimeout = errors.New("model call timed out")
	// ErrNotConfigured is wrapped by the error of an unconfigured call.
	ErrNotConfigured = errors.New("model not configured")
)

// Result is the tagged outcome of Gate.Call.
type Result struct {
	Outcome   Outcome
	Text      string
	Err       error
	Attempts  int
	Model     string
	RequestID string
	Usage     llm.Usage
}

// OK reports whether the call succeeded.
func (r Result) OK() bool {
	return r.Outcome == OutcomeSuccess
}

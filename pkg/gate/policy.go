package gate

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// Policy decides whether and when a failed model call is retried.
// Delay is a pure function of the attempt index and a jitter sample in [0, 1).
type Policy struct {
	MaxAttempts int           // total attempts, including the first
	Step        time.Duration // delay grows by Step per attempt
	MaxJitter   time.Duration // jitter is bounded to [0, MaxJitter)
	Jitter      func() float64
	Classifier  func(error) bool
}

// DefaultPolicy waits 1.2s × attempt plus up to 1s of jitter, for 3 attempts.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		Step:        1200 * time.Millisecond,
		MaxJitter:   time.Second,
		Jitter:      rand.Float64,
		Classifier:  ShouldRetry,
	}
}

// ShouldRetry retries every failure except cancellation and deadline expiry.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Delay returns the wait after the given failed attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.DelayWithJitter(attempt, p.sample())
}

// DelayWithJitter computes Step × attempt + jitter × MaxJitter for an explicit sample.
// Samples outside [0, 1) are clamped.
func (p Policy) DelayWithJitter(attempt int, jitter float64) time.Duration {
	switch {
	case jitter < 0:
		jitter = 0
	case jitter >= 1:
		jitter = 0.999999
	}
	return time.Duration(attempt)*p.Step + time.Duration(jitter*float64(p.MaxJitter))
}

// ShouldRetry applies the configured classifier.
func (p Policy) ShouldRetry(err error) bool {
	if p.Classifier == nil {
		return ShouldRetry(err)
	}
	return p.Classifier(err)
}

func (p Policy) sample() float64 {
	if p.Jitter == nil || p.MaxJitter <= 0 {
		return 0
	}
	return p.Jitter()
}

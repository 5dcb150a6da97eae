// Package gate bounds outbound model calls: a fixed pool of slots provides back-pressure,
// each call runs under a deadline of timeout plus grace, and failures below the deadline
// are retried with a linear backoff plus bounded jitter.
package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"relaybot/pkg/config"
	"relaybot/pkg/llm"
	"relaybot/pkg/llmerrors"
	"relaybot/pkg/logx"
	"relaybot/pkg/metrics"
	"relaybot/pkg/tokens"
)

// Resolver maps a model identifier to a client.
type Resolver interface {
	Client(model string) (llm.Client, error)
}

// Config holds the gate settings.
type Config struct {
	MaxConcurrent   int
	Timeout         time.Duration
	Grace           time.Duration
	TokensPerMinute int
	Policy          Policy
	PollInterval    time.Duration
}

// ConfigFrom converts the file configuration into gate settings.
func ConfigFrom(cfg config.GateConfig) Config {
	policy := DefaultPolicy()
	policy.MaxAttempts = cfg.MaxAttempts
	return Config{
		MaxConcurrent:   cfg.MaxConcurrent,
		Timeout:         cfg.RequestTimeout(),
		Grace:           cfg.Grace(),
		TokensPerMinute: cfg.TokensPerMinute,
		Policy:          policy,
	}
}

// Gate is the single cross-conversation shared resource for model calls.
type Gate struct {
	resolver Resolver
	limiter  *Limiter
	policy   Policy
	timeout  time.Duration
	grace    time.Duration
	recorder metrics.Recorder
	counter  *tokens.Counter
	logger   *logx.Logger
}

// New creates a gate. A nil recorder disables metrics.
func New(resolver Resolver, cfg Config, recorder metrics.Recorder) *Gate {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	if cfg.Policy.MaxAttempts <= 0 {
		cfg.Policy.MaxAttempts = 1
	}
	return &Gate{
		resolver: resolver,
		limiter: NewLimiter(LimiterConfig{
			MaxConcurrent:   cfg.MaxConcurrent,
			TokensPerMinute: cfg.TokensPerMinute,
			PollInterval:    cfg.PollInterval,
		}),
		policy:   cfg.Policy,
		timeout:  cfg.Timeout,
		grace:    cfg.Grace,
		recorder: recorder,
		counter:  tokens.Default(),
		logger:   logx.NewLogger("gate"),
	}
}

// Start runs background work (token bucket refill) until ctx is cancelled.
func (g *Gate) Start(ctx context.Context) {
	g.limiter.Start(ctx)
}

// Deadline returns the clock bound applied to every call.
func (g *Gate) Deadline() time.Duration {
	return g.timeout + g.grace
}

// InFlight returns the number of calls currently holding a slot.
func (g *Gate) InFlight() int {
	return g.limiter.Active()
}

// Stats returns the limiter statistics.
func (g *Gate) Stats() LimiterStats {
	return g.limiter.Stats()
}

// Call runs one completion through the gate. It never returns a raw failure: the
// outcome is always tagged on the Result.
func (g *Gate) Call(ctx context.Context, model string, messages []llm.Message, maxTokens int, temperature float32) Result {
	requestID := uuid.NewString()
	ctx = logx.WithRequestID(ctx, requestID)
	start := time.Now()

	result := g.call(ctx, model, llm.Request{
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	result.Model = model
	result.RequestID = requestID

	g.recorder.ObserveModelCall(model, result.Outcome.String(), time.Since(start))
	if result.OK() {
		g.logger.Info("call %s model=%s ok after %d attempt(s) in %s", requestID, model, result.Attempts, time.Since(start).Round(time.Millisecond))
	} else {
		g.logger.Warn("call %s model=%s %s after %d attempt(s): %v", requestID, model, result.Outcome, result.Attempts, result.Err)
	}
	return result
}

func (g *Gate) call(ctx context.Context, model string, req llm.Request) Result {
	client, err := g.resolver.Client(model)
	if err != nil {
		return Result{Outcome: OutcomeUnconfigured, Err: fmt.Errorf("%w: %w", ErrNotConfigured, err)}
	}
	if err := req.Validate(); err != nil {
		return Result{Outcome: OutcomeExhausted, Err: llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, err.Error())}
	}

	waitStart := time.Now()
	release, err := g.limiter.Acquire(ctx, g.counter.EstimatePrompt(req)+req.MaxTokens)
	g.recorder.ObserveGateWait(time.Since(waitStart))
	if err != nil {
		return Result{Outcome: OutcomeCanceled, Err: err}
	}
	g.recorder.SetGateInFlight(g.limiter.Active())
	// A provider call abandoned at the deadline keeps the slot until it returns.
	var abandoned <-chan struct{}
	defer func() {
		free := func() {
			release()
			g.recorder.SetGateInFlight(g.limiter.Active())
		}
		if abandoned == nil {
			free()
			return
		}
		go func() {
			<-abandoned
			free()
		}()
	}()

	deadlineCtx, cancel := context.WithTimeout(ctx, g.Deadline())
	defer cancel()

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= g.policy.MaxAttempts; attempt++ {
		attempts = attempt
		resp, pending, err := complete(deadlineCtx, client, req)
		if pending != nil {
			abandoned = pending
		}
		if expired := g.expired(ctx, deadlineCtx, attempts); expired != nil {
			return *expired
		}
		if err == nil && resp.Empty() {
			err = llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "model returned no content")
		}
		if err == nil {
			return Result{Outcome: OutcomeSuccess, Text: resp.Content, Attempts: attempts, Usage: resp.Usage}
		}

		lastErr = err
		logx.Debug(deadlineCtx, "gate", "attempt %d/%d for %s failed: %v", attempt, g.policy.MaxAttempts, model, err)
		if !g.policy.ShouldRetry(err) || attempt == g.policy.MaxAttempts {
			break
		}

		timer := time.NewTimer(g.policy.Delay(attempt))
		select {
		case <-deadlineCtx.Done():
			timer.Stop()
			return *g.expired(ctx, deadlineCtx, attempts)
		case <-timer.C:
		}
	}

	return Result{
		Outcome:  OutcomeExhausted,
		Err:      llmerrors.NewServiceUnavailableError(lastErr, attempts),
		Attempts: attempts,
	}
}

// expired returns a terminal result once the deadline or the caller's context has ended.
func (g *Gate) expired(parent, deadlineCtx context.Context, attempts int) *Result {
	if deadlineCtx.Err() == nil {
		return nil
	}
	if parent.Err() != nil {
		return &Result{Outcome: OutcomeCanceled, Err: parent.Err(), Attempts: attempts}
	}
	return &Result{
		Outcome:  OutcomeTimeout,
		Err:      fmt.Errorf("%w after %s", ErrTimeout, g.Deadline()),
		Attempts: attempts,
	}
}

// complete runs the client call but returns as soon as ctx is done, so a provider that
// ignores cancellation cannot hold the caller past the deadline. In that case the returned
// channel is closed once the provider call finally returns.
func complete(ctx context.Context, client llm.Client, req llm.Request) (llm.Response, <-chan struct{}, error) {
	type outcome struct {
		resp llm.Response
		err  error
	}
	done := make(chan outcome, 1)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		resp, err := client.Complete(ctx, req)
		done <- outcome{resp, err}
	}()

	select {
	case out := <-done:
		return out.resp, nil, out.err
	case <-ctx.Done():
		return llm.Response{}, finished, ctx.Err() //nolint:wrapcheck // Classified by the caller
	}
}

// IsTimeout reports whether err came from a timed out call.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

package metrics

import (
	"context"
	"errors"
	"time"

	"relaybot/pkg/llm"
	"relaybot/pkg/llmerrors"
	"relaybot/pkg/logx"
	"relaybot/pkg/tokens"
)

// UsageExtractor extracts token usage from a request and its response.
type UsageExtractor func(req llm.Request, resp llm.Response) (promptTokens, completionTokens int)

// DefaultUsageExtractor uses the provider-reported usage and falls back to tiktoken counts.
func DefaultUsageExtractor(req llm.Request, resp llm.Response) (promptTokens, completionTokens int) {
	if resp.Usage.InputTokens > 0 || resp.Usage.OutputTokens > 0 {
		return resp.Usage.InputTokens, resp.Usage.OutputTokens
	}
	counter := tokens.Default()
	return counter.EstimatePrompt(req), counter.Count(resp.Content)
}

// Middleware records latency, token usage and error type of every provider request.
func Middleware(recorder Recorder, usageExtractor UsageExtractor, logger *logx.Logger) llm.Middleware {
	if usageExtractor == nil {
		usageExtractor = DefaultUsageExtractor
	}

	return func(next llm.Client) llm.Client {
		model := next.ModelName()
		return llm.Wrap(model, func(ctx context.Context, req llm.Request) (llm.Response, error) {
			start := time.Now()
			resp, err := next.Complete(ctx, req)
			elapsed := time.Since(start)

			var prompt, completion int
			errorType := ""
			if err == nil {
				prompt, completion = usageExtractor(req, resp)
			} else {
				errorType = errorTypeOf(err)
			}
			recorder.ObserveRequest(model, prompt, completion, err == nil, errorType, elapsed)

			if logger != nil {
				logger.Debug("request %s model=%s tokens=%d+%d error=%q duration=%dms",
					logx.RequestID(ctx), model, prompt, completion, errorType, elapsed.Milliseconds())
			}
			return resp, err //nolint:wrapcheck // passed through unchanged
		})
	}
}

func errorTypeOf(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return llmerrors.TypeOf(err).String()
	}
}

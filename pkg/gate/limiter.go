package gate

import (
	"context"
	"sync"
	"time"

	"relaybot/pkg/logx"
)

// DefaultPollInterval is how often a blocked Acquire re-checks availability when no
// release wakes it first.
const DefaultPollInterval = 100 * time.Millisecond

// LimiterConfig configures the slot pool and the optional token bucket.
type LimiterConfig struct {
	MaxConcurrent   int           // size of the slot pool
	TokensPerMinute int           // 0 disables the token bucket
	PollInterval    time.Duration // 0 means DefaultPollInterval
}

// LimiterStats represents current limiter statistics.
type LimiterStats struct {
	Active          int   `json:"active"`
	MaxConcurrent   int   `json:"max_concurrent"`
	AvailableTokens int   `json:"available_tokens"`
	MaxCapacity     int   `json:"max_capacity"`
	ConcurrencyHits int64 `json:"concurrency_hits"`
	TokenLimitHits  int64 `json:"token_limit_hits"`
}

// Limiter is a fixed-size pool of model call slots combined with an optional
// tokens-per-minute bucket. Both are acquired atomically under one lock.
type Limiter struct {
	mu sync.Mutex

	active        int
	maxConcurrent int

	tokensEnabled   bool
	availableTokens int
	tokensPerRefill int
	maxCapacity     int

	concurrencyHits int64
	tokenLimitHits  int64

	pollInterval time.Duration
	released     chan struct{}
	logger       *logx.Logger
}

// NewLimiter creates a limiter. The bucket starts full; call Start to refill it.
func NewLimiter(cfg LimiterConfig) *Limiter {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	l := &Limiter{
		maxConcurrent: cfg.MaxConcurrent,
		pollInterval:  cfg.PollInterval,
		released:      make(chan struct{}, 1),
		logger:        logx.NewLogger("gate"),
	}
	if cfg.TokensPerMinute > 0 {
		l.tokensEnabled = true
		l.maxCapacity = cfg.TokensPerMinute
		l.availableTokens = cfg.TokensPerMinute
		// Refill every 6 seconds.
		l.tokensPerRefill = cfg.TokensPerMinute / 10
	}
	return l
}

// Acquire blocks until a slot (and, when the bucket is enabled, enough tokens) is
// available or ctx is done. The returned release function must be called exactly once;
// extra calls are ignored.
func (l *Limiter) Acquire(ctx context.Context, tokens int) (func(), error) {
	firstAttempt := true
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		l.mu.Lock()
		need := l.clampTokens(tokens)
		hasSlot := l.active < l.maxConcurrent
		hasTokens := !l.tokensEnabled || l.availableTokens >= need

		if hasSlot && hasTokens {
			l.active++
			if l.tokensEnabled {
				l.availableTokens -= need
			}
			l.mu.Unlock()

			var once sync.Once
			return func() { once.Do(l.release) }, nil
		}

		if firstAttempt {
			if !hasSlot {
				l.concurrencyHits++
				l.logger.Debug("slot pool exhausted, waiting (active: %d/%d)", l.active, l.maxConcurrent)
			}
			if !hasTokens {
				l.tokenLimitHits++
				l.logger.Debug("token bucket low, waiting (need %d, have %d)", need, l.availableTokens)
			}
			firstAttempt = false
		}
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err() //nolint:wrapcheck // Context error propagated as-is
		case <-l.released:
		case <-ticker.C:
		}
	}
}

// clampTokens keeps a single oversized request from waiting forever. Called under lock.
func (l *Limiter) clampTokens(tokens int) int {
	if tokens > l.maxCapacity {
		return l.maxCapacity
	}
	if tokens < 0 {
		return 0
	}
	return tokens
}

// release returns a slot. Tokens are consumed and not refunded.
func (l *Limiter) release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()

	select {
	case l.released <- struct{}{}:
	default:
	}
}

// Start refills the token bucket every 6 seconds until ctx is cancelled.
// It is a no-op when the bucket is disabled.
func (l *Limiter) Start(ctx context.Context) {
	if !l.tokensEnabled {
		return
	}
	ticker := time.NewTicker(6 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.refill()
			}
		}
	}()
}

// refill adds tokens to the bucket up to max capacity.
func (l *Limiter) refill() {
	l.mu.Lock()
	old := l.availableTokens
	l.availableTokens += l.tokensPerRefill
	if l.availableTokens > l.maxCapacity {
		l.availableTokens = l.maxCapacity
	}
	changed := l.availableTokens != old
	l.mu.Unlock()

	if changed {
		select {
		case l.released <- struct{}{}:
		default:
		}
	}
}

// Active returns the number of slots currently held.
func (l *Limiter) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// Stats returns current limiter statistics.
func (l *Limiter) Stats() LimiterStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return LimiterStats{
		Active:          l.active,
		MaxConcurrent:   l.maxConcurrent,
		AvailableTokens: l.availableTokens,
		MaxCapacity:     l.maxCapacity,
		ConcurrencyHits: l.concurrencyHits,
		TokenLimitHits:  l.tokenLimitHits,
	}
}

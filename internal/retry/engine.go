package retry

import (
	"context"
	"sync"
	"time"

	retrygo "github.com/avast/retry-go/v4"
	"go.uber.org/zap"

	"github.com/Maken-HQ-Team/meetmate/internal/monitor"
)

// DefaultBackoff is the fixed delay schedule between attempts. When more
// attempts are configured than entries, the last entry repeats.
var DefaultBackoff = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

const defaultMaxRetries = 3

// Engine executes operations with classification-driven retries. Attempt
// state is tracked per operation context and cleared on success or
// exhaustion; it is never a global counter.
type Engine struct {
	logger     *zap.Logger
	monitor    *monitor.Monitor
	maxRetries int
	backoff    []time.Duration
	busyNotify func(opCtx string, retryAfter time.Duration)

	mu       sync.Mutex
	attempts map[string]int
}

// Option configures an Engine
type Option func(*Engine)

// WithMaxRetries overrides the default retry count
func WithMaxRetries(n int) Option {
	return func(e *Engine) { e.maxRetries = n }
}

// WithBackoff overrides the delay schedule, mainly for tests
func WithBackoff(schedule []time.Duration) Option {
	return func(e *Engine) {
		if len(schedule) > 0 {
			e.backoff = schedule
		}
	}
}

// WithBusyNotify registers a callback invoked when a rate-limit-class
// failure is observed, with the delay the engine is about to wait. Wired to
// the store rate limiter so later calls back off before hitting the
// backend.
func WithBusyNotify(fn func(opCtx string, retryAfter time.Duration)) Option {
	return func(e *Engine) { e.busyNotify = fn }
}

// NewEngine creates a retry engine reporting to the given monitor
func NewEngine(logger *zap.Logger, mon *monitor.Monitor, opts ...Option) *Engine {
	e := &Engine{
		logger:     logger,
		monitor:    mon,
		maxRetries: defaultMaxRetries,
		backoff:    DefaultBackoff,
		attempts:   make(map[string]int),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Do runs the operation, retrying per the classification of each failure.
// Non-retryable or exhausted-retry failures return the final error. The
// series' duration and outcome are reported to the monitor either way.
func (e *Engine) Do(ctx context.Context, opCtx string, operation func(context.Context) error) error {
	_, err := DoValue(e, ctx, opCtx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, operation(ctx)
	})
	return err
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](e *Engine, ctx context.Context, opCtx string, operation func(context.Context) (T, error)) (T, error) {
	start := time.Now()

	result, err := retrygo.DoWithData(
		func() (T, error) {
			return operation(ctx)
		},
		retrygo.Context(ctx),
		retrygo.Attempts(uint(e.maxRetries)+1),
		retrygo.LastErrorOnly(true),
		retrygo.RetryIf(func(err error) bool {
			c := Classify(err, opCtx)
			if !c.Retry {
				e.logger.Debug("error not retryable",
					zap.String("operation", opCtx),
					zap.String("kind", string(c.Kind)),
					zap.Error(err),
				)
			}
			return c.Retry
		}),
		retrygo.DelayType(func(n uint, err error, _ *retrygo.Config) time.Duration {
			return e.delayFor(n, err, opCtx)
		}),
		retrygo.OnRetry(func(n uint, err error) {
			e.recordAttempt(opCtx)
			e.logger.Warn("retrying operation",
				zap.String("operation", opCtx),
				zap.Uint("attempt", n+1),
				zap.Error(err),
			)
		}),
	)

	e.clearAttempts(opCtx)
	e.monitor.RecordOperation(opCtx, time.Since(start), err == nil, nil)

	return result, err
}

// delayFor returns the wait before retry n (0-based). Rate-limit-class
// failures skip the first schedule entry so the initial delay is longer.
func (e *Engine) delayFor(n uint, err error, opCtx string) time.Duration {
	idx := int(n)
	rateLimited := Classify(err, opCtx).Kind == KindRateLimit
	if rateLimited {
		idx++
	}
	if idx >= len(e.backoff) {
		idx = len(e.backoff) - 1
	}

	delay := e.backoff[idx]
	if rateLimited && e.busyNotify != nil {
		e.busyNotify(opCtx, delay)
	}
	return delay
}

func (e *Engine) recordAttempt(opCtx string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attempts[opCtx]++
}

func (e *Engine) clearAttempts(opCtx string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.attempts, opCtx)
}

// pendingRetries reports the tracked retry count for a context, for tests
func (e *Engine) pendingRetries(opCtx string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attempts[opCtx]
}

package retry

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// minInvocationInterval is the shortest allowed gap between two executions
// of the same logical operation.
const minInvocationInterval = time.Second

// Guard is a cooperative circuit breaker against re-entrant or accidental
// rapid-fire invocation of the same logical operation (e.g. triggered both
// by startup and by a change event in the same instant). Denied calls are
// dropped, not queued; callers wanting eventual execution go through the
// debounced path instead.
type Guard struct {
	mu     sync.Mutex
	last   map[string]time.Time
	logger *zap.Logger
	now    func() time.Time
}

// NewGuard creates a guard
func NewGuard(logger *zap.Logger) *Guard {
	return &Guard{
		last:   make(map[string]time.Time),
		logger: logger,
		now:    time.Now,
	}
}

// Allow reports whether the operation context may execute now. The
// invocation timestamp is recorded only when execution is allowed.
func (g *Guard) Allow(opCtx string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if last, ok := g.last[opCtx]; ok && now.Sub(last) < minInvocationInterval {
		g.logger.Warn("rapid-fire invocation denied",
			zap.String("operation", opCtx),
			zap.Duration("since_last", now.Sub(last)),
		)
		return false
	}

	g.last[opCtx] = now
	return true
}

// Reset forgets the last invocation for a context, re-arming it immediately
func (g *Guard) Reset(opCtx string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.last, opCtx)
}

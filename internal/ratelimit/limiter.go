// Package ratelimit implements client-side rate limiting for store
// operations, so a misbehaving sync loop cannot hammer the backend.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// defaults for new buckets; per-operation pressure adjusts them at runtime
const (
	defaultRate  = rate.Limit(10) // requests per second
	defaultBurst = 10
)

// Bucket tracks limiting state for one named operation
type Bucket struct {
	limiter *rate.Limiter
	busyTil time.Time
	mu      sync.Mutex
}

// Limiter manages rate limits per named store operation (e.g.
// "windows.fetch", "profiles.batch")
type Limiter struct {
	buckets map[string]*Bucket
	mu      sync.RWMutex
	logger  *zap.Logger

	busyMu  sync.Mutex
	busyTil time.Time
}

// NewLimiter creates a limiter
func NewLimiter(logger *zap.Logger) *Limiter {
	return &Limiter{
		buckets: make(map[string]*Bucket),
		logger:  logger,
	}
}

// getBucket retrieves or creates a bucket for an operation
func (l *Limiter) getBucket(op string) *Bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	if bucket, exists := l.buckets[op]; exists {
		return bucket
	}

	bucket := &Bucket{
		limiter: rate.NewLimiter(defaultRate, defaultBurst),
	}
	l.buckets[op] = bucket
	return bucket
}

// Wait blocks until the operation may proceed, honoring both the token
// bucket and any backoff window set by SetBusy. Cancellation of ctx aborts
// the wait.
func (l *Limiter) Wait(ctx context.Context, op string) error {
	bucket := l.getBucket(op)

	bucket.mu.Lock()
	busyTil := bucket.busyTil
	bucket.mu.Unlock()

	l.busyMu.Lock()
	if l.busyTil.After(busyTil) {
		busyTil = l.busyTil
	}
	l.busyMu.Unlock()

	if wait := time.Until(busyTil); wait > 0 {
		l.logger.Warn("operation backing off",
			zap.String("operation", op),
			zap.Duration("wait", wait),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	if err := bucket.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	return nil
}

// SetBusy marks an operation as rate limited by the backend; subsequent
// Waits block until the window passes. The retry engine calls this when it
// classifies a rate-limit-class error.
func (l *Limiter) SetBusy(op string, retryAfter time.Duration) {
	if retryAfter <= 0 {
		retryAfter = time.Second
	}

	bucket := l.getBucket(op)
	bucket.mu.Lock()
	bucket.busyTil = time.Now().Add(retryAfter)
	bucket.mu.Unlock()

	l.logger.Warn("operation marked busy",
		zap.String("operation", op),
		zap.Duration("retry_after", retryAfter),
	)
}

// SetBusyAll opens a backoff window covering every operation. Used for
// backend-wide pressure such as connection exhaustion, where throttling a
// single operation would not help.
func (l *Limiter) SetBusyAll(retryAfter time.Duration) {
	if retryAfter <= 0 {
		retryAfter = time.Second
	}

	l.busyMu.Lock()
	l.busyTil = time.Now().Add(retryAfter)
	l.busyMu.Unlock()

	l.logger.Warn("all operations marked busy", zap.Duration("retry_after", retryAfter))
}

// Busy reports whether an operation is currently inside a backoff window
func (l *Limiter) Busy(op string) bool {
	l.busyMu.Lock()
	globalBusy := time.Now().Before(l.busyTil)
	l.busyMu.Unlock()
	if globalBusy {
		return true
	}

	bucket := l.getBucket(op)
	bucket.mu.Lock()
	defer bucket.mu.Unlock()
	return time.Now().Before(bucket.busyTil)
}

// Reset clears all buckets (useful for testing)
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buckets = make(map[string]*Bucket)
	l.busyMu.Lock()
	l.busyTil = time.Time{}
	l.busyMu.Unlock()
	l.logger.Info("rate limiter reset")
}

package ratelimit

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestLimiter() *Limiter {
	logger, _ := zap.NewDevelopment()
	return NewLimiter(logger)
}

func TestWait_NewOperation(t *testing.T) {
	limiter := newTestLimiter()

	start := time.Now()
	err := limiter.Wait(context.Background(), "windows.fetch")
	duration := time.Since(start)

	if err != nil {
		t.Fatalf("Wait() failed: %v", err)
	}
	if duration > 100*time.Millisecond {
		t.Errorf("Wait() took too long for fresh operation: %v", duration)
	}
}

func TestWait_BusyWindowBlocks(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping timing test in short mode")
	}
	limiter := newTestLimiter()

	limiter.SetBusy("grants.fetch", 200*time.Millisecond)

	start := time.Now()
	err := limiter.Wait(context.Background(), "grants.fetch")
	duration := time.Since(start)

	if err != nil {
		t.Fatalf("Wait() failed: %v", err)
	}
	if duration < 150*time.Millisecond {
		t.Errorf("Wait() did not honor busy window: waited only %v", duration)
	}
}

func TestWait_CancelledContext(t *testing.T) {
	limiter := newTestLimiter()
	limiter.SetBusy("profiles.batch", time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := limiter.Wait(ctx, "profiles.batch"); err == nil {
		t.Error("Expected error when context expires during backoff")
	}
}

func TestBusy(t *testing.T) {
	limiter := newTestLimiter()

	if limiter.Busy("windows.fetch") {
		t.Error("Expected fresh operation not busy")
	}

	limiter.SetBusy("windows.fetch", time.Minute)
	if !limiter.Busy("windows.fetch") {
		t.Error("Expected operation busy after SetBusy")
	}

	// Other operations are independent.
	if limiter.Busy("grants.fetch") {
		t.Error("Expected other operations unaffected")
	}
}

func TestSetBusy_DefaultWindow(t *testing.T) {
	limiter := newTestLimiter()

	limiter.SetBusy("op", 0)
	if !limiter.Busy("op") {
		t.Error("Expected default busy window applied for non-positive retryAfter")
	}
}

func TestSetBusyAll_CoversEveryOperation(t *testing.T) {
	limiter := newTestLimiter()

	limiter.SetBusyAll(time.Minute)

	if !limiter.Busy("grants.fetch") || !limiter.Busy("profiles.batch") {
		t.Error("Expected global busy window to cover all operations")
	}
}

func TestReset(t *testing.T) {
	limiter := newTestLimiter()

	limiter.SetBusy("op", time.Minute)
	limiter.SetBusyAll(time.Minute)
	limiter.Reset()

	if limiter.Busy("op") {
		t.Error("Expected busy state cleared after reset")
	}
}

func TestConcurrentAccess(t *testing.T) {
	limiter := newTestLimiter()

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			if err := limiter.Wait(context.Background(), "shared.op"); err != nil {
				t.Errorf("Wait() failed: %v", err)
			}
			done <- true
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}
}

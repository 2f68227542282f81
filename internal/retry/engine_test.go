package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/Maken-HQ-Team/meetmate/internal/monitor"
)

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *monitor.Monitor) {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	mon := monitor.New(logger)
	opts = append([]Option{WithBackoff([]time.Duration{time.Millisecond, 2 * time.Millisecond, 4 * time.Millisecond})}, opts...)
	return NewEngine(logger, mon, opts...), mon
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	engine, mon := newTestEngine(t)

	calls := 0
	err := engine.Do(context.Background(), "op.ok", func(context.Context) error {
		calls++
		return nil
	})

	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}

	stats, ok := mon.OperationStats("op.ok")
	if !ok || stats.SuccessCount != 1 {
		t.Error("Expected success recorded on monitor")
	}
}

func TestDo_FailTwiceThenSucceed(t *testing.T) {
	engine, mon := newTestEngine(t)

	calls := 0
	result, err := DoValue(engine, context.Background(), "op.flaky", func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("connection reset by peer")
		}
		return "payload", nil
	})

	if err != nil {
		t.Fatalf("Expected eventual success, got: %v", err)
	}
	if result != "payload" {
		t.Errorf("Expected success value, got %q", result)
	}
	if calls != 3 {
		t.Errorf("Expected exactly 3 attempts, got %d", calls)
	}

	stats, ok := mon.OperationStats("op.flaky")
	if !ok || stats.SuccessCount != 1 || stats.ErrorCount != 0 {
		t.Error("Expected the series recorded as one success")
	}
}

func TestDo_NonRetryableShortCircuits(t *testing.T) {
	engine, mon := newTestEngine(t)

	calls := 0
	err := engine.Do(context.Background(), "op.integrity", func(context.Context) error {
		calls++
		return &pq.Error{Code: "23503"}
	})

	if err == nil {
		t.Fatal("Expected error")
	}
	if calls != 1 {
		t.Errorf("Expected exactly 1 attempt for non-retryable error, got %d", calls)
	}

	stats, ok := mon.OperationStats("op.integrity")
	if !ok || stats.ErrorCount != 1 {
		t.Error("Expected failure recorded on monitor")
	}
}

func TestDo_ExhaustsRetries(t *testing.T) {
	engine, _ := newTestEngine(t, WithMaxRetries(2))

	calls := 0
	wantErr := errors.New("i/o timeout")
	err := engine.Do(context.Background(), "op.doomed", func(context.Context) error {
		calls++
		return wantErr
	})

	if err == nil {
		t.Fatal("Expected final error after exhaustion")
	}
	if err.Error() != wantErr.Error() {
		t.Errorf("Expected the final error returned, got: %v", err)
	}
	// 1 initial + 2 retries
	if calls != 3 {
		t.Errorf("Expected 3 attempts, got %d", calls)
	}
}

func TestDo_AttemptStateClearedOnSuccess(t *testing.T) {
	engine, _ := newTestEngine(t)

	calls := 0
	_ = engine.Do(context.Background(), "op.clear", func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("connection refused")
		}
		return nil
	})

	if got := engine.pendingRetries("op.clear"); got != 0 {
		t.Errorf("Expected attempt state cleared, got %d", got)
	}
}

func TestDo_AttemptStateClearedOnExhaustion(t *testing.T) {
	engine, _ := newTestEngine(t, WithMaxRetries(1))

	_ = engine.Do(context.Background(), "op.exhaust", func(context.Context) error {
		return errors.New("i/o timeout")
	})

	if got := engine.pendingRetries("op.exhaust"); got != 0 {
		t.Errorf("Expected attempt state cleared after exhaustion, got %d", got)
	}
}

func TestDelayFor_Schedule(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	engine := NewEngine(logger, monitor.New(logger))

	timeoutErr := errors.New("i/o timeout")

	// Fixed schedule 1s, 2s, 4s; last entry repeats beyond the end.
	if d := engine.delayFor(0, timeoutErr, "op"); d != 1*time.Second {
		t.Errorf("Expected 1s for first retry, got %v", d)
	}
	if d := engine.delayFor(1, timeoutErr, "op"); d != 2*time.Second {
		t.Errorf("Expected 2s for second retry, got %v", d)
	}
	if d := engine.delayFor(2, timeoutErr, "op"); d != 4*time.Second {
		t.Errorf("Expected 4s for third retry, got %v", d)
	}
	if d := engine.delayFor(5, timeoutErr, "op"); d != 4*time.Second {
		t.Errorf("Expected last entry to repeat, got %v", d)
	}
}

func TestDelayFor_RateLimitStartsLonger(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	engine := NewEngine(logger, monitor.New(logger))

	rateErr := errors.New("rate limit exceeded")

	if d := engine.delayFor(0, rateErr, "op"); d != 2*time.Second {
		t.Errorf("Expected rate-limit first delay 2s, got %v", d)
	}
	if d := engine.delayFor(1, rateErr, "op"); d != 4*time.Second {
		t.Errorf("Expected rate-limit second delay 4s, got %v", d)
	}
}

func TestDelayFor_RateLimitNotifiesBusy(t *testing.T) {
	logger, _ := zap.NewDevelopment()

	var notifiedOp string
	var notifiedDelay time.Duration
	engine := NewEngine(logger, monitor.New(logger), WithBusyNotify(func(opCtx string, retryAfter time.Duration) {
		notifiedOp = opCtx
		notifiedDelay = retryAfter
	}))

	engine.delayFor(0, errors.New("too many requests"), "profiles.batch")
	if notifiedOp != "profiles.batch" || notifiedDelay != 2*time.Second {
		t.Errorf("Expected busy notification (profiles.batch, 2s), got (%s, %v)", notifiedOp, notifiedDelay)
	}

	// non-rate-limit failures never notify
	notifiedOp = ""
	engine.delayFor(0, errors.New("timeout"), "profiles.batch")
	if notifiedOp != "" {
		t.Error("Expected no busy notification for timeout-class error")
	}
}

func TestDo_ContextCancelStopsRetries(t *testing.T) {
	engine, _ := newTestEngine(t, WithBackoff([]time.Duration{50 * time.Millisecond}))

	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := engine.Do(ctx, "op.cancelled", func(context.Context) error {
		calls++
		return errors.New("connection reset")
	})

	if err == nil {
		t.Fatal("Expected error after cancellation")
	}
	if calls > 2 {
		t.Errorf("Expected retries to stop on cancel, got %d calls", calls)
	}
}

package backoff

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDelayGrowsExponentially(t *testing.T) {
	p := Policy{Initial: 100 * time.Millisecond, Max: 30 * time.Second, Factor: 2, Jitter: 0}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
	}
	for _, tc := range cases {
		if got := p.delayWithRand(tc.attempt, 0); got != tc.want {
			t.Errorf("Delay(attempt=%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestDelayClampsToMax(t *testing.T) {
	p := Policy{Initial: time.Second, Max: 5 * time.Second, Factor: 10, Jitter: 0}
	if got := p.delayWithRand(4, 0); got != 5*time.Second {
		t.Errorf("Delay(4) = %v, want clamp at 5s", got)
	}
}

func TestDelayJitterIsBounded(t *testing.T) {
	p := Policy{Initial: time.Second, Max: time.Minute, Factor: 2, Jitter: 0.5}

	min := p.delayWithRand(1, 0)
	max := p.delayWithRand(1, 0.999999)
	if min != time.Second {
		t.Errorf("zero-random delay = %v, want 1s", min)
	}
	if max < min || max >= 1500*time.Millisecond+time.Millisecond {
		t.Errorf("full-random delay = %v, want within [1s, 1.5s]", max)
	}
}

func TestDelayTreatsAttemptBelowOneAsFirst(t *testing.T) {
	p := Policy{Initial: 100 * time.Millisecond, Max: time.Minute, Factor: 2, Jitter: 0}
	if got := p.delayWithRand(0, 0); got != 100*time.Millisecond {
		t.Errorf("Delay(0) = %v, want initial", got)
	}
}

func TestSleepWithContextCompletes(t *testing.T) {
	start := time.Now()
	if err := SleepWithContext(context.Background(), 30*time.Millisecond); err != nil {
		t.Fatalf("SleepWithContext: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("returned after %v, want >= 30ms", elapsed)
	}
}

func TestSleepWithContextZeroDurationReturnsImmediately(t *testing.T) {
	if err := SleepWithContext(context.Background(), 0); err != nil {
		t.Fatalf("SleepWithContext(0): %v", err)
	}
}

func TestSleepWithContextHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := SleepWithContext(ctx, 5*time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("cancellation took %v, want well under the full sleep", elapsed)
	}
}

func fastPolicy() Policy {
	return Policy{Initial: time.Millisecond, Max: 5 * time.Millisecond, Factor: 2, Jitter: 0}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(), 5, func(attempt int) error {
		calls++
		if attempt < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := Retry(context.Background(), fastPolicy(), 3, func(int) error {
		calls++
		return boom
	})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("error = %v, want ErrExhausted", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want wrapped last error", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	fatal := errors.New("http 413")
	err := Retry(context.Background(), fastPolicy(), 5, func(int) error {
		calls++
		return Permanent(fatal)
	})
	if !errors.Is(err, fatal) {
		t.Fatalf("error = %v, want the permanent cause", err)
	}
	if errors.Is(err, ErrExhausted) {
		t.Fatalf("permanent error must not read as exhaustion: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Retry(ctx, fastPolicy(), 5, func(int) error {
		calls++
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0 (cancelled before first attempt)", calls)
	}
}

func TestPermanentNilIsNil(t *testing.T) {
	if Permanent(nil) != nil {
		t.Fatal("Permanent(nil) should be nil")
	}
}

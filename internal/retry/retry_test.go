package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

var errFlaky = errors.New("upstream hiccup")

func TestDoStopsOnSuccess(t *testing.T) {
	t.Run("first attempt", func(t *testing.T) {
		calls := 0
		err := Do(context.Background(), 4, 5*time.Millisecond, func() error {
			calls++
			return nil
		})
		if err != nil || calls != 1 {
			t.Fatalf("err=%v calls=%d, want nil/1", err, calls)
		}
	})

	t.Run("after transient failures", func(t *testing.T) {
		calls := 0
		err := Do(context.Background(), 4, 5*time.Millisecond, func() error {
			calls++
			if calls < 3 {
				return errFlaky
			}
			return nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if calls != 3 {
			t.Fatalf("calls = %d, want 3", calls)
		}
	})
}

func TestDoReturnsLastErrorWhenExhausted(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 3, 2*time.Millisecond, func() error {
		calls++
		return errFlaky
	})
	if !errors.Is(err, errFlaky) {
		t.Fatalf("err = %v, want errFlaky", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestDoPermanentShortCircuits(t *testing.T) {
	notFound := errors.New("project not found")
	calls := 0
	err := Do(context.Background(), 5, 2*time.Millisecond, func() error {
		calls++
		return Permanent(notFound)
	})
	if !errors.Is(err, notFound) {
		t.Fatalf("err = %v, want notFound", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1; permanent errors must not retry", calls)
	}
}

func TestDoHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var calls atomic.Int32
	go func() {
		time.Sleep(25 * time.Millisecond)
		cancel()
	}()

	err := Do(ctx, 10, 200*time.Millisecond, func() error {
		calls.Add(1)
		return errFlaky
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if c := calls.Load(); c == 0 || c > 2 {
		t.Fatalf("calls = %d, want cancellation during the first backoff sleep", c)
	}
}

func TestDoClampsAttemptsToOne(t *testing.T) {
	for _, attempts := range []int{0, -3} {
		calls := 0
		if err := Do(context.Background(), attempts, time.Millisecond, func() error {
			calls++
			return nil
		}); err != nil {
			t.Fatalf("attempts=%d: unexpected error %v", attempts, err)
		}
		if calls != 1 {
			t.Fatalf("attempts=%d: calls = %d, want 1", attempts, calls)
		}
	}
}

func TestDoBacksOffBetweenAttempts(t *testing.T) {
	var stamps []time.Time
	err := Do(context.Background(), 3, 20*time.Millisecond, func() error {
		stamps = append(stamps, time.Now())
		if len(stamps) < 3 {
			return errFlaky
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Jitter is +-25%, so each gap is at least three quarters of its base.
	first := stamps[1].Sub(stamps[0])
	second := stamps[2].Sub(stamps[1])
	if first < 15*time.Millisecond {
		t.Errorf("first gap %v shorter than the jitter floor", first)
	}
	if second < 30*time.Millisecond {
		t.Errorf("second gap %v shorter than the doubled jitter floor", second)
	}
}

func TestPermanentWrapsForErrorsIs(t *testing.T) {
	inner := errors.New("bad address")
	if !errors.Is(Permanent(inner), inner) {
		t.Fatal("Permanent should unwrap to the inner error")
	}
}

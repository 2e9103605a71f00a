package schedule

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

type fixedRand struct{ n int64 }

func (f fixedRand) Int64N(n int64) int64 {
	if f.n >= n {
		return n - 1
	}
	return f.n
}

func TestRunSingleShotInvokesCycleExactlyOnce(t *testing.T) {
	s := New(0, 0, nil)

	var calls int32
	err := s.Run(context.Background(), func(ctx context.Context, tok Token) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRunSingleShotPropagatesCycleError(t *testing.T) {
	s := New(0, 0, nil)

	want := errors.New("boom")
	err := s.Run(context.Background(), func(ctx context.Context, tok Token) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Errorf("Run error = %v, want %v", err, want)
	}
}

func TestRunPollingStopsWhenParentCancelled(t *testing.T) {
	s := New(1*time.Hour, 0, nil, WithRandSource(fixedRand{0}))

	ctx, cancel := context.WithCancel(context.Background())
	var calls int32

	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(ctx context.Context, tok Token) error {
			atomic.AddInt32(&calls, 1)
			cancel()
			return nil
		})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	if calls != 1 {
		t.Errorf("calls = %d, want exactly 1 (no cycle after cancellation)", calls)
	}
}

func TestJitterDurationStaysWithinBound(t *testing.T) {
	s := New(0, 10*time.Second, nil, WithRandSource(fixedRand{7}))
	d := s.jitterDuration()
	if d != 7*time.Second {
		t.Errorf("jitterDuration = %v, want 7s", d)
	}
}

func TestJitterDurationZeroWhenUnconfigured(t *testing.T) {
	s := New(0, 0, nil)
	if d := s.jitterDuration(); d != 0 {
		t.Errorf("jitterDuration = %v, want 0", d)
	}
}

func TestSleepReturnsFalseOnCancellation(t *testing.T) {
	s := New(0, 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	wake := make(chan os.Signal, 1)
	if s.sleep(ctx, wake, time.Hour) {
		t.Error("sleep returned true for an already-cancelled context")
	}
}

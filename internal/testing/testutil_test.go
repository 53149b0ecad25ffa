package testing

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestGoroutineTest(t *testing.T) {
	gt := NewGoroutineTest(t)

	var n atomic.Int32
	for i := 0; i < 10; i++ {
		gt.Go(func() error {
			n.Add(1)
			return nil
		})
	}
	gt.Wait()

	if n.Load() != 10 {
		t.Errorf("expected 10 goroutines to run, got %d", n.Load())
	}
}

func TestWithTimeout(t *testing.T) {
	if err := WithTimeout(time.Second, func() error { return nil }); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	want := errors.New("boom")
	if err := WithTimeout(time.Second, func() error { return want }); err != want {
		t.Errorf("expected fn error, got %v", err)
	}

	err := WithTimeout(10*time.Millisecond, func() error {
		time.Sleep(200 * time.Millisecond)
		return nil
	})
	if err == nil {
		t.Error("expected timeout error")
	}
}

func TestEventually(t *testing.T) {
	start := time.Now()
	err := Eventually(time.Second, 5*time.Millisecond, func() bool {
		return time.Since(start) > 20*time.Millisecond
	})
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if err := Eventually(20*time.Millisecond, 5*time.Millisecond, func() bool { return false }); err == nil {
		t.Error("expected error for condition that never holds")
	}
}

func TestTicks(t *testing.T) {
	ticks := Ticks(HourAligned, 60, 3, LinearRate(100, 10))
	if len(ticks) != 3 {
		t.Fatalf("expected 3 ticks, got %d", len(ticks))
	}
	if ticks[2].Timestamp != HourAligned+120 || ticks[2].Rate != 120 {
		t.Errorf("unexpected last tick: %+v", ticks[2])
	}
	if HourAligned%3600 != 0 {
		t.Error("HourAligned is not on an hour boundary")
	}
	if err := AssertEqual(ConstantRate(7)(5), int64(7), "constant"); err != nil {
		t.Error(err)
	}
}

// Package testing provides test utilities for gemrate.
//
// Using t.Fatal or t.FailNow in a goroutine only exits that goroutine, so
// concurrent tests report failures through GoroutineTest instead.
package testing

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/xtxerr/gemrate/internal/types"
)

// =============================================================================
// Error Channel Pattern
// =============================================================================

// GoroutineTest collects errors returned by goroutines and reports them on
// the test goroutine.
//
// Example usage:
//
//	func TestConcurrentReads(t *testing.T) {
//	    gt := testutil.NewGoroutineTest(t)
//	    defer gt.Wait()
//
//	    gt.Go(func() error {
//	        _, err := ds.Raw(ctx)
//	        return err
//	    })
//	}
type GoroutineTest struct {
	t      *testing.T
	wg     sync.WaitGroup
	errors chan error
	ctx    context.Context
	cancel context.CancelFunc
}

// NewGoroutineTest creates a new GoroutineTest helper.
func NewGoroutineTest(t *testing.T) *GoroutineTest {
	ctx, cancel := context.WithCancel(context.Background())
	return &GoroutineTest{
		t:      t,
		errors: make(chan error, 100),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Go runs fn in a goroutine and collects its error.
func (gt *GoroutineTest) Go(fn func() error) {
	gt.wg.Add(1)
	go func() {
		defer gt.wg.Done()
		if err := fn(); err != nil {
			select {
			case gt.errors <- err:
			default:
				gt.t.Logf("error channel full, dropping error: %v", err)
			}
		}
	}()
}

// GoWithContext runs fn with the test context in a goroutine.
func (gt *GoroutineTest) GoWithContext(fn func(ctx context.Context) error) {
	gt.Go(func() error { return fn(gt.ctx) })
}

// Wait waits for all goroutines and fails the test if any returned an
// error. Call it with defer right after NewGoroutineTest.
func (gt *GoroutineTest) Wait() {
	gt.wg.Wait()
	gt.cancel()
	close(gt.errors)

	var errs []error
	for err := range gt.errors {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		gt.t.Errorf("goroutine test failed with %d error(s):", len(errs))
		for i, err := range errs {
			gt.t.Errorf("  [%d] %v", i+1, err)
		}
		gt.t.FailNow()
	}
}

// Context returns the context for this test.
func (gt *GoroutineTest) Context() context.Context {
	return gt.ctx
}

// =============================================================================
// Assertion Helpers
// =============================================================================

// AssertEqual returns an error if got != want.
func AssertEqual[T comparable](got, want T, msg string) error {
	if got != want {
		return fmt.Errorf("%s: got %v, want %v", msg, got, want)
	}
	return nil
}

// AssertNoError returns an error if err is not nil.
func AssertNoError(err error, msg string) error {
	if err != nil {
		return fmt.Errorf("%s: unexpected error: %w", msg, err)
	}
	return nil
}

// =============================================================================
// Timing Helpers
// =============================================================================

// WithTimeout runs fn and fails if it does not return within timeout.
func WithTimeout(timeout time.Duration, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("operation timed out after %v", timeout)
	}
}

// Eventually polls condition until it holds or timeout elapses.
func Eventually(timeout, interval time.Duration, condition func() bool) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return nil
		}
		time.Sleep(interval)
	}
	return fmt.Errorf("condition not met within %v", timeout)
}

// =============================================================================
// Tick Fixtures
// =============================================================================

// HourAligned is an hour-aligned epoch second in November 2023 used as
// the start of generated tick sequences.
const HourAligned int64 = 1699999200

// Ticks returns n ticks starting at start, step seconds apart, with rates
// produced by rate(i).
func Ticks(start, step int64, n int, rate func(i int) int64) []types.Tick {
	ticks := make([]types.Tick, n)
	for i := range ticks {
		ticks[i] = types.Tick{Timestamp: start + int64(i)*step, Rate: rate(i)}
	}
	return ticks
}

// ConstantRate returns a rate function that always yields v.
func ConstantRate(v int64) func(int) int64 {
	return func(int) int64 { return v }
}

// LinearRate returns a rate function yielding base + i*slope.
func LinearRate(base, slope int64) func(int) int64 {
	return func(i int) int64 { return base + int64(i)*slope }
}

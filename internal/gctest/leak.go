// Package gctest provides test helpers shared across this module's
// package-level test files: a goroutine-leak checker for the
// collector's long-running worker goroutines and pool-steal loops.
//
// Grounded on SeleniaProject-Orizon/internal/testing/resource_leak_test.go's
// before/after resource-count pattern (baseline via runtime.NumGoroutine,
// run the operation, allow the runtime's own GC and a short settle
// window, then compare), adapted from file-descriptor counting to
// goroutine counting since this module's leak surface is goroutines
// (collector worker, fsnotify watch loop) rather than file handles.
package gctest

import (
	"runtime"
	"testing"
	"time"
)

// VerifyNoWorkerLeak snapshots the current goroutine count, and
// returns a func to call at the end of the test that fails t if the
// count grew by more than allowance once the runtime has had a chance
// to settle. Intended as:
//
//	defer gctest.VerifyNoWorkerLeak(t, 2)()
//	... exercise code that spawns goroutines ...
func VerifyNoWorkerLeak(t *testing.T, allowance int) func() {
	t.Helper()
	baseline := runtime.NumGoroutine()
	return func() {
		t.Helper()
		// Give spawned goroutines a moment to exit before counting;
		// runtime.Gosched alone isn't reliable for goroutines blocked
		// on channels/timers, so a short real sleep is used instead.
		for i := 0; i < 10; i++ {
			if runtime.NumGoroutine()-baseline <= allowance {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
		if diff := runtime.NumGoroutine() - baseline; diff > allowance {
			t.Errorf("possible goroutine leak: baseline=%d, current=%d, diff=%d (allowance=%d)",
				baseline, baseline+diff, diff, allowance)
		}
	}
}

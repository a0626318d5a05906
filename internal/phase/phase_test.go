package phase

import (
	"sync"
	"testing"
)

func TestCycleTransitions(t *testing.T) {
	o := New(false)
	if o.GetPhase() != Idle {
		t.Fatalf("expected Idle, got %v", o.GetPhase())
	}
	if o.CurrentColor() != Remapped {
		t.Fatalf("expected Remapped, got %v", o.CurrentColor())
	}

	o.SwitchToNextPhase() // -> ConcurrentMark, color flips
	if o.GetPhase() != ConcurrentMark {
		t.Fatalf("expected ConcurrentMark, got %v", o.GetPhase())
	}
	firstColor := o.CurrentColor()
	if firstColor != M0 && firstColor != M1 {
		t.Fatalf("expected M0 or M1, got %v", firstColor)
	}

	o.SwitchToNextPhase() // -> Remark
	if o.GetPhase() != Remark {
		t.Fatalf("expected Remark, got %v", o.GetPhase())
	}
	o.SwitchToNextPhase() // -> Sweep
	if o.GetPhase() != Sweep {
		t.Fatalf("expected Sweep, got %v", o.GetPhase())
	}
	o.SwitchToNextPhase() // -> Idle
	if o.GetPhase() != Idle {
		t.Fatalf("expected Idle, got %v", o.GetPhase())
	}
	if o.CurrentColor() != firstColor {
		t.Fatalf("color should be unchanged outside the Idle->ConcurrentMark edge")
	}

	o.SwitchToNextPhase() // -> ConcurrentMark again, color flips again
	if o.CurrentColor() == firstColor {
		t.Fatalf("color should flip on every Idle->ConcurrentMark edge")
	}
}

func TestNeedSweep(t *testing.T) {
	o := New(false)
	o.SwitchToNextPhase() // ConcurrentMark, current color is e.g. M0
	current := o.CurrentColor()
	stale := current.Flip()

	if o.NeedSweep(current, true) {
		t.Fatal("object marked with current color should not need sweep")
	}
	if !o.NeedSweep(stale, true) {
		t.Fatal("object marked with stale color should need sweep")
	}
	if o.NeedSweep(stale, false) {
		t.Fatal("unallocated slot never needs sweep")
	}
}

func TestNeedSelfHeal(t *testing.T) {
	o := New(false)
	o.SwitchToNextPhase() // ConcurrentMark
	current := o.CurrentColor()
	stale := current.Flip()

	if o.NeedSelfHeal(Remapped) {
		t.Fatal("remapped handles never need healing")
	}
	if !o.NeedSelfHeal(stale) {
		t.Fatal("during marking, a stale-colored handle needs healing")
	}
	if o.NeedSelfHeal(current) {
		t.Fatal("during marking, a current-colored handle does not need healing")
	}

	o.SwitchToNextPhase() // Remark
	o.SwitchToNextPhase() // Sweep
	o.SwitchToNextPhase() // Idle: current color is unchanged from marking
	if !o.NeedSelfHeal(current) {
		t.Fatal("outside marking, a handle colored with the (just-concluded) current color needs healing")
	}
	if o.NeedSelfHeal(stale) {
		t.Fatal("outside marking, a stale-colored handle does not need healing (it was never live this cycle)")
	}
}

func TestSTWLockExcludesWriters(t *testing.T) {
	o := New(true)
	var wg sync.WaitGroup
	wg.Add(1)
	o.EnterCriticalSection()
	done := make(chan struct{})
	go func() {
		defer wg.Done()
		o.StopTheWorld()
		close(done)
		o.ResumeTheWorld()
	}()
	select {
	case <-done:
		t.Fatal("StopTheWorld returned while a mutator critical section was still open")
	default:
	}
	o.LeaveCriticalSection()
	wg.Wait()
}

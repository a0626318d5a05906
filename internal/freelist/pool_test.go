package freelist

import "testing"

func TestPoolFirstFitAndSplit(t *testing.T) {
	p := NewPool()
	p.Deposit(1000, 100)

	a := p.Allocate(40)
	if a != 1000 {
		t.Fatalf("expected first-fit to return extent head 1000, got %d", a)
	}
	if got := p.TotalFree(); got != 60 {
		t.Fatalf("expected 60 bytes left after split, got %d", got)
	}
}

func TestPoolFreeCoalescesBothNeighbors(t *testing.T) {
	p := NewPool()
	p.Deposit(0, 10)
	p.Deposit(20, 10)
	// gap [10,20) not yet free

	p.Free(10, 10)

	if got := p.TotalFree(); got != 30 {
		t.Fatalf("expected full coalesce to 30 bytes, got %d", got)
	}
	if len(p.free) != 1 {
		t.Fatalf("expected a single merged extent, got %d entries", len(p.free))
	}
	if p.free[0].Addr != 0 || p.free[0].Size != 30 {
		t.Fatalf("unexpected merged extent: %+v", p.free[0])
	}
}

func TestPoolAllocateExhausted(t *testing.T) {
	p := NewPool()
	p.Deposit(0, 10)
	if addr := p.Allocate(100); addr != 0 {
		t.Fatalf("expected 0 for an unsatisfiable request, got %d", addr)
	}
}

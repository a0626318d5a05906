package regiongc

import (
	"context"
	"testing"

	"github.com/regiongc/regiongc/internal/gctest"
)

type chainNode struct {
	Next  Handle[chainNode]
	Value int
}

func TestNewAndDerefRoundTrip(t *testing.T) {
	defer gctest.VerifyNoWorkerLeak(t, 0)()

	c, err := Initialize(nil)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer c.Shutdown()

	h, err := New(c, chainNode{Value: 42}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if h.IsNull() {
		t.Fatal("freshly constructed handle must not be null")
	}

	g, ok := h.Deref()
	if !ok {
		t.Fatal("Deref of a live handle must succeed")
	}
	if g.Get().Value != 42 {
		t.Fatalf("expected Value 42, got %d", g.Get().Value)
	}
	g.Release()
}

func TestClearThenDerefFails(t *testing.T) {
	defer gctest.VerifyNoWorkerLeak(t, 0)()

	c, err := Initialize(nil)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer c.Shutdown()

	h, err := New(c, chainNode{Value: 1}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.Clear()
	if !h.IsNull() {
		t.Fatal("handle must be null after Clear")
	}
	if _, ok := h.Deref(); ok {
		t.Fatal("Deref of a cleared handle must fail")
	}
}

func TestTriggerGCReclaimsAfterClearAndRunsDestructor(t *testing.T) {
	defer gctest.VerifyNoWorkerLeak(t, 0)()

	c, err := Initialize(nil)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer c.Shutdown()

	destroyed := false
	h, err := New(c, chainNode{Value: 7}, func(n *chainNode) { destroyed = true })
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	if err := c.TriggerGC(ctx); err != nil {
		t.Fatalf("first TriggerGC: %v", err)
	}
	g, ok := h.Deref()
	if !ok {
		t.Fatal("root handle must survive a cycle while still referenced")
	}
	g.Release()

	h.Clear()
	if err := c.TriggerGC(ctx); err != nil {
		t.Fatalf("second TriggerGC: %v", err)
	}
	if !destroyed {
		t.Fatal("expected destructor to run once the node became unreachable")
	}
}

func TestNestedHandleFieldIsDiscoveredByTracer(t *testing.T) {
	defer gctest.VerifyNoWorkerLeak(t, 0)()

	c, err := Initialize(nil)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer c.Shutdown()

	tailDestroyed := false
	tail, err := New(c, chainNode{Value: 2}, func(*chainNode) { tailDestroyed = true })
	if err != nil {
		t.Fatalf("New tail: %v", err)
	}

	head, err := New(c, chainNode{Value: 1}, nil)
	if err != nil {
		t.Fatalf("New head: %v", err)
	}
	gHead, ok := head.Deref()
	if !ok {
		t.Fatal("head must deref")
	}
	// head.Next's embedded HandleBase was already bound as an interior
	// (non-root) handle by New's tracer pass; wiring it to tail's
	// target goes through the promoted Set barrier rather than a bulk
	// struct copy, which would also overwrite Next's own root-set
	// bookkeeping with tail's.
	gHead.Get().Next.Set(tail.Raw(), tail.Size(), tail.RegionOf())
	gHead.Release()
	// Drop tail's own root reference so head.Next is the only path to it.
	tail.Clear()

	ctx := context.Background()
	if err := c.TriggerGC(ctx); err != nil {
		t.Fatalf("TriggerGC: %v", err)
	}

	if tailDestroyed {
		t.Fatal("tail reachable only through head.Next must survive a cycle")
	}
	gHead, ok = head.Deref()
	if !ok {
		t.Fatal("head must deref after a cycle")
	}
	next := (*chainNode)(gHead.Get().Next.Raw())
	if next == nil {
		t.Fatal("head.Next must still point at tail after a cycle")
	}
	if next.Value != 2 {
		t.Fatalf("expected tail Value 2, got %d", next.Value)
	}
	gHead.Release()
}

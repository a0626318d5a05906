package handle

import (
	"reflect"
	"testing"
	"unsafe"

	"github.com/regiongc/regiongc/internal/freelist"
	"github.com/regiongc/regiongc/internal/gclog"
	"github.com/regiongc/regiongc/internal/heap"
	"github.com/regiongc/regiongc/internal/phase"
	"github.com/regiongc/regiongc/internal/region"
	"github.com/regiongc/regiongc/internal/rootset"
)

// fakeWorker is a minimal Worker for package-local tests; internal/collector
// provides the real implementation.
type fakeWorker struct {
	oracle  *phase.Oracle
	heapA   *heap.Allocator
	roots   *rootset.RootSet
	satb    *ShardedSATB
	relocOn bool
}

func (w *fakeWorker) Oracle() *phase.Oracle                  { return w.oracle }
func (w *fakeWorker) GetRegion(addr unsafe.Pointer) *region.Region { return w.heapA.GetRegion(addr) }
func (w *fakeWorker) Roots() *rootset.RootSet                { return w.roots }
func (w *fakeWorker) RelocationEnabled() bool                { return w.relocOn }
func (w *fakeWorker) EnqueueSATB(addr unsafe.Pointer, size uintptr, r *region.Region) {
	w.satb.Enqueue(0, SATBEntry{Addr: addr, Size: size, Region: r})
}

func newFakeWorker(t *testing.T) *fakeWorker {
	t.Helper()
	mgr := freelist.NewManager(1)
	t.Cleanup(func() { mgr.Shutdown() })
	o := phase.New(false)
	return &fakeWorker{
		oracle:  o,
		heapA:   heap.New(o, mgr, gclog.NewNop()),
		roots:   rootset.New(2),
		satb:    NewShardedSATB(2, false),
		relocOn: true,
	}
}

func TestHandleRegistersAsRootWhenOutsideAnyRegion(t *testing.T) {
	w := newFakeWorker(t)
	var stackSlot int
	h := NewHandleBase(w, unsafe.Pointer(&stackSlot))
	if !h.IsRoot() {
		t.Fatal("a handle whose own address is outside every region must register as a root")
	}
	if w.roots.Size() != 1 {
		t.Fatalf("expected root set size 1, got %d", w.roots.Size())
	}
}

func TestSetEnqueuesSATBDuringMarking(t *testing.T) {
	w := newFakeWorker(t)
	var stackSlot int
	h := NewHandleBase(w, unsafe.Pointer(&stackSlot))

	r, addr, err := w.heapA.Allocate(16)
	if err != nil {
		t.Fatal(err)
	}
	h.Set(addr, 16, r)

	w.oracle.SwitchToNextPhase() // -> ConcurrentMark

	r2, addr2, err := w.heapA.Allocate(16)
	if err != nil {
		t.Fatal(err)
	}
	h.Set(addr2, 16, r2)

	if w.satb.Len() != 1 {
		t.Fatalf("expected the overwritten target to be SATB-enqueued, got %d entries", w.satb.Len())
	}
}

func TestDestroyDeregistersRoot(t *testing.T) {
	w := newFakeWorker(t)
	var stackSlot int
	h := NewHandleBase(w, unsafe.Pointer(&stackSlot))
	h.Destroy()
	if w.roots.Size() != 0 {
		t.Fatalf("expected root set empty after destroy, got %d", w.roots.Size())
	}
	if h.InlineState() != DeAllocated {
		t.Fatal("expected inline state DeAllocated after destroy")
	}
}

type nested struct {
	A HandleBase
}

type withHandles struct {
	X HandleBase
	N nested
	Y int
}

func TestTracerFindsNestedHandleOffsets(t *testing.T) {
	tr := NewTracer()
	offs := tr.OffsetsFor(reflect.TypeOf(withHandles{}))
	if len(offs) != 2 {
		t.Fatalf("expected 2 handle offsets (direct + nested), got %d", len(offs))
	}

	var v withHandles
	addr := unsafe.Pointer(&v)
	var visited int
	tr.Trace(reflect.TypeOf(v), addr, func(h *HandleBase) { visited++ })
	if visited != 2 {
		t.Fatalf("expected Trace to visit 2 handles, got %d", visited)
	}
}

func TestTracerCachesPerType(t *testing.T) {
	tr := NewTracer()
	typ := reflect.TypeOf(withHandles{})
	first := tr.OffsetsFor(typ)
	second := tr.OffsetsFor(typ)
	if len(first) != len(second) {
		t.Fatal("cached offsets must be stable across calls")
	}
}

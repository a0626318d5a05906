package region

import (
	"sync"
	"testing"
	"unsafe"

	"github.com/regiongc/regiongc/internal/phase"
)

func TestAllocateBumpAndBounds(t *testing.T) {
	o := phase.New(false)
	r := New(o, Small, 256)

	a := r.Allocate(16)
	if a == nil {
		t.Fatal("expected allocation to succeed")
	}
	b := r.Allocate(16)
	if b == nil || b == a {
		t.Fatal("expected second distinct allocation")
	}
	if !r.InsideRegion(a, 16) || !r.InsideRegion(b, 16) {
		t.Fatal("allocated addresses must be inside the region")
	}

	huge := r.Allocate(1 << 20)
	if huge != nil {
		t.Fatal("over-sized allocation must fail")
	}
}

func TestMarkAndClearUnmarked(t *testing.T) {
	o := phase.New(false)
	r := New(o, Small, 4096)

	survivor := r.Allocate(16)
	victim := r.Allocate(16)
	_ = victim

	o.SwitchToNextPhase() // Idle -> ConcurrentMark, flips color
	r.Mark(survivor, 16)  // only survivor re-marked with the new color

	reclaimed := r.ClearUnmarked()
	if reclaimed == 0 {
		t.Fatal("expected the unmarked victim to be reclaimed")
	}
	if !r.Marked(survivor) {
		t.Fatal("survivor must still read as marked with the current color")
	}
}

func TestDestructorInvokedOnReclaim(t *testing.T) {
	o := phase.New(false)
	r := New(o, Small, 4096)

	addr := r.Allocate(16)
	var called bool
	r.RegisterDestructor(addr, func(unsafe.Pointer) { called = true })

	o.SwitchToNextPhase()
	r.ClearUnmarked()

	if !called {
		t.Fatal("expected destructor to run for a reclaimed object")
	}
}

func TestPinBlocksWaitUnpinned(t *testing.T) {
	o := phase.New(false)
	r := New(o, Small, 4096)
	r.IncPin()

	done := make(chan struct{})
	go func() {
		r.waitUnpinned()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("waitUnpinned returned while still pinned")
	default:
	}

	r.DecPin()
	<-done
}

func TestTriggerRelocationPublishesForwarding(t *testing.T) {
	o := phase.New(false)
	r := New(o, Small, 4096)
	dst := New(o, Small, 4096)

	addr := r.Allocate(16)

	alloc := func(class SizeClass, size uintptr) (*Region, unsafe.Pointer) {
		return dst, dst.Allocate(size)
	}
	r.TriggerRelocation(alloc)

	if !r.IsEvacuated() {
		t.Fatal("region must be marked evacuated")
	}
	fwd, ok := r.QueryForwardingTable(addr)
	if !ok {
		t.Fatal("expected a forwarding entry for the evacuated object")
	}
	if fwd.NewRegion != dst {
		t.Fatal("forwarding entry must point at the destination region")
	}
}

func TestCanFreeAfterAllReclaimed(t *testing.T) {
	o := phase.New(false)
	r := New(o, Small, 4096)
	r.Allocate(16)

	o.SwitchToNextPhase() // nothing re-marked: everything becomes unmarked
	r.ClearUnmarked()

	if !r.CanFree() {
		t.Fatal("expected region with zero live bytes to be freeable")
	}
}

func TestConcurrentAllocateIsRaceFree(t *testing.T) {
	o := phase.New(false)
	r := New(o, Small, 1<<16)

	var wg sync.WaitGroup
	seen := make([][]unsafe.Pointer, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		i := i
		go func() {
			defer wg.Done()
			for j := 0; j < 64; j++ {
				if a := r.Allocate(8); a != nil {
					seen[i] = append(seen[i], a)
				}
			}
		}()
	}
	wg.Wait()

	set := make(map[unsafe.Pointer]bool)
	for _, addrs := range seen {
		for _, a := range addrs {
			if set[a] {
				t.Fatalf("address %v handed out twice", a)
			}
			set[a] = true
		}
	}
}

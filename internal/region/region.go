package region

import (
	"reflect"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/regiongc/regiongc/internal/phase"
)

// SizeClass selects a region's allocation-size bracket.
type SizeClass int

const (
	Tiny SizeClass = iota
	Small
	Medium
	Large
)

func (c SizeClass) String() string {
	switch c {
	case Tiny:
		return "tiny"
	case Small:
		return "small"
	case Medium:
		return "medium"
	case Large:
		return "large"
	default:
		return "invalid"
	}
}

// Size-class thresholds and default region sizes, per spec.md §3.
const (
	TinyObjectThreshold   = 4
	TinyRegionSize        = 256 * 1024
	SmallObjectThreshold  = 16 * 1024
	SmallRegionSize       = 1 * 1024 * 1024
	MediumObjectThreshold = 1 * 1024 * 1024
	MediumRegionSize      = 32 * 1024 * 1024
)

// ClassFor chooses the size class for an allocation request, per the
// boundary rule of spec.md §8: an object at exactly a threshold belongs
// to the class the threshold names, not the next one up.
func ClassFor(size uintptr) SizeClass {
	switch {
	case size <= TinyObjectThreshold:
		return Tiny
	case size <= SmallObjectThreshold:
		return Small
	case size <= MediumObjectThreshold:
		return Medium
	default:
		return Large
	}
}

// DefaultRegionSize returns the region size a fresh region of class c
// should be created with (ignored for Large, which is sized exactly to
// the triggering allocation).
func DefaultRegionSize(c SizeClass) uintptr {
	switch c {
	case Tiny:
		return TinyRegionSize
	case Small:
		return SmallRegionSize
	case Medium:
		return MediumRegionSize
	default:
		return 0
	}
}

type destructorFn func(unsafe.Pointer)
type moveConstructorFn func(src, dst unsafe.Pointer)

// Region is a contiguous slab of memory managed by bump allocation, with
// a per-object mark bitmap (non-Large classes) or a single mark state
// (Large), a forwarding table for evacuated objects, and the destructor /
// move-constructor registries objects allocated in it are tracked by.
//
// Grounded on SeleniaProject-Orizon/internal/runtime/region_alloc.go's
// Region type (unsafe.Pointer over a kept-alive []byte backing slice,
// CAS bump allocation) and original_source/GCRegion.{h,cpp} for the
// mark/sweep/evacuate algorithm this port must reproduce exactly.
type Region struct {
	oracle *phase.Oracle

	class     SizeClass
	backing   []byte // keeps the slab alive against the Go runtime's own GC
	start     unsafe.Pointer
	totalSize uintptr

	allocatedOffset atomic.Uintptr
	liveSize        atomic.Uintptr
	fragSize        atomic.Uintptr

	bitmap         *BitMap // nil for Large
	largeMarkState atomic.Int32

	forwarding *ForwardingTable

	destructorMu sync.RWMutex
	destructors  map[uintptr]destructorFn

	moveCtorMu sync.RWMutex
	moveCtors  map[uintptr]moveConstructorFn

	typeMu sync.RWMutex
	types  map[uintptr]reflect.Type // addr -> static type, registered at make_managed time

	relocationMu recursiveMutex
	pinCount     atomic.Int32
	pinZero      chan struct{} // closed and replaced each time pinCount drops to zero

	evacuated atomic.Bool
	freed     atomic.Bool // start == nil, only the forwarding table is retained
	allFree   atomic.Int32 // -1 unknown/has-live, 0 unset, 1 all-free
}

// bitmapUnitFor returns the mark-bitmap granularity for c, matching
// GCBitMap's region_to_bitmap_ratio discipline: TINY objects are always
// exactly TinyObjectThreshold bytes, so they get one bitmap unit each
// (Walk's tiny branch treats one occupied unit as one whole object,
// never a head/tail pair). SMALL and MEDIUM use the original's default
// ratio of 1 — one bitmap unit per byte — so that every object (whose
// size always exceeds TinyObjectThreshold, hence exceeds the unit) spans
// at least two units and always gets a head bit distinct from its tail.
// A coarser unit (e.g. 16) would collapse any object whose aligned size
// happens to equal the unit into a single bit, which Walk's head/tail
// pairing cannot represent.
func bitmapUnitFor(c SizeClass) uintptr {
	if c == Tiny {
		return TinyObjectThreshold
	}
	return 1
}

// New allocates a fresh region of class c and totalSize bytes, backed by
// a Go byte slice. Convenience constructor for tests and for callers
// that don't route region memory through internal/freelist.
func New(oracle *phase.Oracle, class SizeClass, totalSize uintptr) *Region {
	backing := make([]byte, totalSize)
	return newRegion(oracle, class, backing, unsafe.Pointer(&backing[0]), totalSize)
}

// NewFromExtent builds a region over a pre-acquired memory extent — the
// production path, where internal/heap obtains [addr, addr+totalSize)
// from an internal/freelist.Manager-backed OS arena rather than letting
// the Go runtime's own allocator own the bytes.
func NewFromExtent(oracle *phase.Oracle, class SizeClass, addr unsafe.Pointer, totalSize uintptr) *Region {
	return newRegion(oracle, class, nil, addr, totalSize)
}

func newRegion(oracle *phase.Oracle, class SizeClass, backing []byte, start unsafe.Pointer, totalSize uintptr) *Region {
	r := &Region{
		oracle:      oracle,
		class:       class,
		backing:     backing,
		start:       start,
		totalSize:   totalSize,
		forwarding:  newForwardingTable(),
		destructors: make(map[uintptr]destructorFn),
		moveCtors:   make(map[uintptr]moveConstructorFn),
		types:       make(map[uintptr]reflect.Type),
		pinZero:     make(chan struct{}),
	}
	if class != Large {
		r.bitmap = NewBitMap(totalSize, bitmapUnitFor(class))
	} else {
		r.largeMarkState.Store(int32(phase.Remapped))
	}
	return r
}

func (r *Region) Class() SizeClass      { return r.class }
func (r *Region) TotalSize() uintptr    { return r.totalSize }
func (r *Region) StartAddr() unsafe.Pointer { return r.start }
func (r *Region) IsEvacuated() bool     { return r.evacuated.Load() }
func (r *Region) IsFreed() bool         { return r.freed.Load() }
func (r *Region) LiveSize() uintptr     { return r.liveSize.Load() }

// InsideRegion reports whether [addr, addr+size) lies within the slab.
// Once a region is freed only its forwarding table survives, so this
// always returns false after Retire().
func (r *Region) InsideRegion(addr unsafe.Pointer, size uintptr) bool {
	if r.freed.Load() {
		return false
	}
	start := uintptr(r.start)
	a := uintptr(addr)
	return a >= start && a+size <= start+r.totalSize
}

// offsetOf converts an absolute address into this region into a byte
// offset from start.
func (r *Region) offsetOf(addr unsafe.Pointer) uintptr {
	return uintptr(addr) - uintptr(r.start)
}

func (r *Region) addrOf(offset uintptr) unsafe.Pointer {
	return unsafe.Pointer(uintptr(r.start) + offset)
}

func alignUp(size, unit uintptr) uintptr {
	if unit <= 1 || size%unit == 0 {
		return size
	}
	return (size/unit + 1) * unit
}

// Allocate claims size bytes from the bump pointer and returns the new
// object's address, or nil if the region doesn't have room (the caller
// must then allocate a new region). The newly claimed span is marked
// live immediately: with the current color if a cycle is in progress,
// or Remapped otherwise, so objects created between cycles need no
// tracing to be considered alive.
func (r *Region) Allocate(size uintptr) unsafe.Pointer {
	if r.freed.Load() || r.start == nil {
		return nil
	}
	switch r.class {
	case Tiny:
		size = TinyObjectThreshold
	case Large:
		// exact size, no alignment
	default:
		size = alignUp(size, r.bitmap.Unit())
	}

	var offset uintptr
	for {
		cur := r.allocatedOffset.Load()
		next := cur + size
		if next > r.totalSize {
			return nil
		}
		if r.allocatedOffset.CompareAndSwap(cur, next) {
			offset = cur
			break
		}
	}

	addr := r.addrOf(offset)
	if r.class == Large {
		state := phase.Remapped
		if r.oracle.DuringGC() {
			state = r.oracle.CurrentColor()
		}
		r.largeMarkState.Store(int32(state))
	} else {
		state := phase.Remapped
		if r.oracle.DuringGC() {
			state = r.oracle.CurrentColor()
		}
		r.bitmap.Mark(offset, size, state)
	}
	r.liveSize.Add(size)
	return addr
}

// Free marks [addr, addr+size) as not-allocated bookkeeping; the bytes
// themselves are only reclaimed when the whole region retires.
func (r *Region) Free(addr unsafe.Pointer, size uintptr) {
	if r.class == Large {
		return
	}
	offset := r.offsetOf(addr)
	if offset >= r.allocatedOffset.Load() {
		return
	}
	r.fragSize.Add(size)
	r.bitmap.MarkNotAllocated(offset, size)
}

// Mark sets the mark bit(s) of the object at addr to the current color.
func (r *Region) Mark(addr unsafe.Pointer, size uintptr) {
	if r.class == Large {
		r.largeMarkState.Store(int32(r.oracle.CurrentColor()))
		return
	}
	offset := r.offsetOf(addr)
	r.bitmap.Mark(offset, size, r.oracle.CurrentColor())
}

// Marked reports whether the object at addr already carries the current
// color (used to cut off re-tracing an already-marked object).
func (r *Region) Marked(addr unsafe.Pointer) bool {
	if r.class == Large {
		return phase.Color(r.largeMarkState.Load()) == r.oracle.CurrentColor()
	}
	offset := r.offsetOf(addr)
	return r.bitmap.GetMarkState(offset) == r.oracle.CurrentColor()
}

// FragmentRatio is frag_size / allocated_offset.
func (r *Region) FragmentRatio() float64 {
	allocated := r.allocatedOffset.Load()
	if allocated == 0 {
		return 0
	}
	return float64(r.fragSize.Load()) / float64(allocated)
}

// FreeRatio is 1 - allocated_offset/total_size.
func (r *Region) FreeRatio() float64 {
	if r.totalSize == 0 {
		return 0
	}
	return 1.0 - float64(r.allocatedOffset.Load())/float64(r.totalSize)
}

// NeedsEvacuate implements the fragmentation policy of spec.md §4.B: a
// region qualifies for evacuation when its fragmentation ratio is at
// least 25% and its free ratio is under 25%.
func (r *Region) NeedsEvacuate() bool {
	return r.FragmentRatio() >= 0.25 && r.FreeRatio() < 0.25
}

// RegisterDestructor records the callback to invoke on addr before its
// memory is reclaimed.
func (r *Region) RegisterDestructor(addr unsafe.Pointer, fn func(unsafe.Pointer)) {
	r.destructorMu.Lock()
	r.destructors[uintptr(addr)] = fn
	r.destructorMu.Unlock()
}

// RegisterMoveConstructor records the callback used to bitwise-move an
// object to a new address during evacuation.
func (r *Region) RegisterMoveConstructor(addr unsafe.Pointer, fn func(src, dst unsafe.Pointer)) {
	r.moveCtorMu.Lock()
	r.moveCtors[uintptr(addr)] = fn
	r.moveCtorMu.Unlock()
}

// RegisterType records the static type of the object at addr, the
// redesigned replacement for magic-sentinel handle discovery spec.md
// §9 calls for: a per-type handle-offset table, looked up here by
// address and resolved to offsets by internal/handle.Tracer.
func (r *Region) RegisterType(addr unsafe.Pointer, typ reflect.Type) {
	r.typeMu.Lock()
	r.types[uintptr(addr)] = typ
	r.typeMu.Unlock()
}

// TypeOf returns the static type registered for addr, if any.
func (r *Region) TypeOf(addr unsafe.Pointer) (reflect.Type, bool) {
	r.typeMu.RLock()
	defer r.typeMu.RUnlock()
	typ, ok := r.types[uintptr(addr)]
	return typ, ok
}

func (r *Region) deleteType(addr unsafe.Pointer) {
	r.typeMu.Lock()
	delete(r.types, uintptr(addr))
	r.typeMu.Unlock()
}

func (r *Region) callDestructor(addr unsafe.Pointer) {
	r.destructorMu.Lock()
	fn, ok := r.destructors[uintptr(addr)]
	if ok {
		delete(r.destructors, uintptr(addr))
	}
	r.destructorMu.Unlock()
	if ok && fn != nil {
		fn(addr)
	}
}

// migrateRegistrations moves addr's destructor/move-constructor entries
// from r to the object's post-evacuation home in dst at newAddr.
func (r *Region) migrateRegistrations(addr unsafe.Pointer, dst *Region, newAddr unsafe.Pointer) {
	r.destructorMu.Lock()
	fn, ok := r.destructors[uintptr(addr)]
	if ok {
		delete(r.destructors, uintptr(addr))
	}
	r.destructorMu.Unlock()
	if ok {
		dst.RegisterDestructor(newAddr, fn)
	}

	r.moveCtorMu.Lock()
	mfn, mok := r.moveCtors[uintptr(addr)]
	if mok {
		delete(r.moveCtors, uintptr(addr))
	}
	r.moveCtorMu.Unlock()
	if mok {
		dst.RegisterMoveConstructor(newAddr, mfn)
	}

	r.typeMu.Lock()
	typ, tok := r.types[uintptr(addr)]
	if tok {
		delete(r.types, uintptr(addr))
	}
	r.typeMu.Unlock()
	if tok {
		dst.RegisterType(newAddr, typ)
	}
}

// IncPin increments the pin count: a mutator has dereferenced into this
// region and holds a raw pointer. While pinned, relocation of this
// region blocks.
func (r *Region) IncPin() {
	r.pinCount.Add(1)
}

// DecPin releases a pin. If the count reaches zero, goroutines waiting
// in WaitUnpinned are woken.
func (r *Region) DecPin() {
	if r.pinCount.Add(-1) == 0 {
		r.notifyZero()
	}
}

func (r *Region) notifyZero() {
	r.relocationMu.mu.Lock() // borrow the relocation mutex's inner lock only to guard pinZero's swap
	old := r.pinZero
	r.pinZero = make(chan struct{})
	close(old)
	r.relocationMu.mu.Unlock()
}

// waitUnpinned blocks until the pin count is (momentarily) zero.
func (r *Region) waitUnpinned() {
	for r.pinCount.Load() != 0 {
		r.relocationMu.mu.Lock()
		ch := r.pinZero
		r.relocationMu.mu.Unlock()
		if r.pinCount.Load() == 0 {
			return
		}
		<-ch
	}
}

// QueryForwardingTable looks up the post-evacuation location of the
// object at addr.
func (r *Region) QueryForwardingTable(addr unsafe.Pointer) (fwd Forward, ok bool) {
	return r.forwarding.Query(r.offsetOf(addr))
}

// ClearUnmarked sweeps the bitmap: every live object whose mark state
// differs from the current color is stale (per phase.Oracle.NeedSweep)
// and is dead, including objects still carrying Remapped from an
// allocation that happened between cycles and was never reached by this
// cycle's trace. Its destructor (if any) is invoked and its span is
// returned to NotAllocated. Objects sharing the current color (because
// they were traced reachable from a root, or allocated mid-cycle) are
// left untouched.
//
// Ported from GCRegion::clearUnmarked. Not valid for Large regions,
// which are swept by the caller checking largeMarkState directly.
func (r *Region) ClearUnmarked() (reclaimed uintptr) {
	if r.class == Large {
		return 0
	}
	tiny := r.class == Tiny
	fixed := uintptr(TinyObjectThreshold)

	var dead []ObjectSpan
	r.bitmap.Walk(tiny, fixed, func(span ObjectSpan) {
		if !r.oracle.NeedSweep(span.State.toColor(), span.State.Allocated()) {
			return
		}
		dead = append(dead, span)
	})

	for _, span := range dead {
		addr := r.addrOf(span.Offset)
		r.callDestructor(addr)
		r.deleteType(addr)
		r.bitmap.MarkNotAllocated(span.Offset, span.Size)
		r.fragSize.Add(span.Size)
		reclaimed += span.Size
	}
	if reclaimed <= r.liveSize.Load() {
		r.liveSize.Add(-reclaimed)
	} else {
		r.liveSize.Store(0)
	}
	return reclaimed
}

// CanFree reports whether the region has no live objects left and can be
// retired to its owning allocator's free-list.
func (r *Region) CanFree() bool {
	if r.freed.Load() {
		return false
	}
	if r.class == Large {
		return phase.Color(r.largeMarkState.Load()) != r.oracle.CurrentColor()
	}
	return r.liveSize.Load() == 0
}

// Retire releases the region's backing memory; only its forwarding
// table survives, so in-flight self-heal lookups for objects evacuated
// out of this region continue to resolve correctly.
func (r *Region) Retire() {
	r.backing = nil
	r.start = nil
	r.freed.Store(true)
}

// relocator is the callback a region's TriggerRelocation uses to obtain
// a destination for an evacuated object, supplied by the heap allocator
// that owns the region (keeping this package free of an import cycle on
// internal/heap).
type relocator func(class SizeClass, size uintptr) (dst *Region, addr unsafe.Pointer)

// TriggerRelocation evacuates every live object out of the region into
// fresh space obtained from alloc, publishing a forwarding entry for
// each (an object alloc finds no room for stays in place with no
// entry), then marks the region evacuated. Serialized per region via
// relocationMu: a concurrent caller blocks until the first finishes,
// then returns because the region is already evacuated.
//
// Deliberately does not free the arena or null start here, unlike
// spec.md §4.B's literal "release the underlying memory, null out
// start_addr" wording: nothing reads a region's raw bytes once it's
// evacuated (self-heal resolves purely through the forwarding table,
// never the source bytes), but this cycle's sweep still walks the
// region's bitmap once more after Resume — freeing start immediately
// would turn every addrOf computed from a stale bitmap offset during
// that walk into an invalid pointer. Instead the arena stays mapped
// until a later ClearUnmarked drains liveSize to 0 by discovering the
// evacuated spans' now-stale color, at which point CanFree and the
// allocator's retire path free it exactly as for any other emptied
// region — the same end state spec.md §4.B describes, reached one
// cycle later with no extra invariant to guard in the meantime.
func (r *Region) TriggerRelocation(alloc relocator) {
	r.relocationMu.Lock()
	defer r.relocationMu.Unlock()

	if r.evacuated.Load() || r.freed.Load() {
		return
	}
	r.waitUnpinned()

	if r.class == Large {
		r.evacuated.Store(true)
		return
	}

	tiny := r.class == Tiny
	fixed := uintptr(TinyObjectThreshold)

	var live []ObjectSpan
	r.bitmap.Walk(tiny, fixed, func(span ObjectSpan) {
		if !r.oracle.NeedSweep(span.State.toColor(), span.State.Allocated()) {
			live = append(live, span)
		}
	})

	for _, span := range live {
		r.relocateObject(span, alloc)
	}
	r.evacuated.Store(true)
}

func (r *Region) relocateObject(span ObjectSpan, alloc relocator) {
	srcAddr := r.addrOf(span.Offset)
	if _, ok := r.forwarding.Query(span.Offset); ok {
		return // already evacuated by a racing self-heal
	}

	dst, dstAddr := alloc(r.class, span.Size)
	if dst == nil {
		return // allocator exhausted; object stays in place, evacuation is best-effort
	}

	copy(unsafe.Slice((*byte)(dstAddr), span.Size), unsafe.Slice((*byte)(srcAddr), span.Size))

	r.moveCtorMu.Lock()
	mfn := r.moveCtors[uintptr(srcAddr)]
	r.moveCtorMu.Unlock()
	if mfn != nil {
		mfn(srcAddr, dstAddr)
	}

	dst.bitmap.Mark(dst.offsetOf(dstAddr), span.Size, span.State.toColor())
	r.migrateRegistrations(srcAddr, dst, dstAddr)

	r.forwarding.Insert(span.Offset, Forward{NewOffset: dst.offsetOf(dstAddr), NewRegion: dst})
}

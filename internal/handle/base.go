// Package handle implements the collector's Barriers & Handle
// Operations component: the non-generic HandleBase every managed
// pointer wraps, its SATB write barrier, self-healing read barrier, and
// the per-type tracer table used to discover nested handles during
// marking.
//
// Grounded on original_source/GCPtrBase.h (inline mark state, identity
// constants) and original_source/GCPtr.h (needHeal/selfHeal, the SATB
// enqueue on overwrite, root-vs-interior registration on construction).
package handle

import (
	"sync"
	"unsafe"

	"github.com/regiongc/regiongc/internal/phase"
	"github.com/regiongc/regiongc/internal/region"
	"github.com/regiongc/regiongc/internal/rootset"
)

// State mirrors the original's MarkState enum as seen through a handle:
// every phase.Color value plus DeAllocated, which a handle's destructor
// sets so any use-after-destroy is diagnosable.
type State int32

const (
	Remapped    State = State(phase.Remapped)
	M0          State = State(phase.M0)
	M1          State = State(phase.M1)
	DeAllocated State = -1
)

// Lock is the per-handle field guard spec.md §4.F calls "a weak-spin
// read/write lock optional per build knob". Implemented here as a plain
// RWMutex; internal/phase.STWLock's weak spin variant is reused at the
// process-wide STW level, so handles default to the simpler, always-
// correct option.
type Lock struct {
	mu sync.RWMutex
}

func (l *Lock) RLock()   { l.mu.RLock() }
func (l *Lock) RUnlock() { l.mu.RUnlock() }
func (l *Lock) Lock()    { l.mu.Lock() }
func (l *Lock) Unlock()  { l.mu.Unlock() }

// Worker is the subset of the collector worker a HandleBase needs:
// SATB enqueue, the phase oracle, the owning allocator (for self-heal's
// forwarding lookups), and the root set a handle registers into when it
// lives outside any region (i.e. on a mutator stack or in static
// storage).
type Worker interface {
	Oracle() *phase.Oracle
	GetRegion(addr unsafe.Pointer) *region.Region
	EnqueueSATB(addr unsafe.Pointer, size uintptr, r *region.Region)
	Roots() *rootset.RootSet
	RelocationEnabled() bool
}

// HandleBase is the non-generic core every Handle[T] embeds: the
// target address, its size, the region it (was last known to) live in,
// the inlined mark state, and root-set registration bookkeeping.
type HandleBase struct {
	worker Worker
	lock   Lock

	target unsafe.Pointer
	size   uintptr
	region *region.Region

	inlineState State

	isRoot   bool
	shardIdx int
	offset   uint64
}

// NewHandleBase constructs a handle with no target, registering it as a
// root if selfAddr (the handle's own storage address — a stack slot or a
// static variable) lies outside every managed region, or as an interior
// handle (discovered later by tracing) otherwise.
//
// Ported from GCPtr_'s default constructor: inline state starts at the
// current color if a cycle is running, else Remapped (spec.md §4.B's
// "newly created objects are implicitly live" rule applies to handles
// too, not just heap objects).
func NewHandleBase(w Worker, selfAddr unsafe.Pointer) *HandleBase {
	h := &HandleBase{}
	h.Bind(w, selfAddr)
	return h
}

// Bind initializes an already-addressable HandleBase in place: used by
// NewHandleBase for a freshly allocated one, and directly by callers
// that discover an embedded HandleBase inside a just-constructed
// managed object's bytes (the generic Handle[T] in the root package
// embeds HandleBase by value, so its interior occurrences inside a
// managed object's fields need exactly this in-place initialization
// rather than a fresh allocation). selfAddr is h's own address; root-
// vs-interior registration is decided the same way regardless of
// which path constructed h.
func (h *HandleBase) Bind(w Worker, selfAddr unsafe.Pointer) {
	h.worker = w
	if w.Oracle().DuringGC() {
		h.inlineState = State(w.Oracle().CurrentColor())
	} else {
		h.inlineState = Remapped
	}
	h.isRoot = w.GetRegion(selfAddr) == nil
	if h.isRoot {
		h.shardIdx, h.offset = w.Roots().Add(h)
	}
}

// SetRootOffset implements rootset.Root.
func (h *HandleBase) SetRootOffset(offset uint64) { h.offset = offset }

// IsRoot reports whether this handle is registered in the root set
// (true) or is only discoverable by tracing an owning object (false).
func (h *HandleBase) IsRoot() bool { return h.isRoot }

// InlineState returns the handle's inlined mark state.
func (h *HandleBase) InlineState() State {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return h.inlineState
}

// Destroy tears down a handle: if a mark cycle is running and the
// handle still has a target, its current value is SATB-enqueued before
// the handle goes away (an in-flight collector must still trace
// whatever this handle pointed to at the snapshot boundary). Root
// handles deregister from the root set.
func (h *HandleBase) Destroy() {
	h.lock.Lock()
	if h.target != nil && h.worker.Oracle().DuringMarking() {
		h.worker.EnqueueSATB(h.target, h.size, h.region)
	}
	h.inlineState = DeAllocated
	h.lock.Unlock()

	if h.isRoot {
		h.worker.Roots().Remove(h, h.shardIdx, h.offset)
	}
}

// Set installs a new target, SATB-enqueuing the previous non-nil target
// if a mark cycle is running (GCPtr_::operator= 's barrier).
func (h *HandleBase) Set(target unsafe.Pointer, size uintptr, r *region.Region) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.setLocked(target, size, r)
}

func (h *HandleBase) setLocked(target unsafe.Pointer, size uintptr, r *region.Region) {
	if h.target != nil && h.target != target && h.worker.Oracle().DuringMarking() {
		h.worker.EnqueueSATB(h.target, h.size, h.region)
	}
	if h.worker.Oracle().DuringMarking() {
		h.inlineState = State(h.worker.Oracle().CurrentColor())
	} else if h.worker.Oracle().DuringGC() {
		h.inlineState = State(h.worker.Oracle().CurrentColor())
	} else {
		h.inlineState = Remapped
	}
	h.target = target
	h.size = size
	h.region = r
}

// Clear installs a nil target, SATB-enqueuing the previous target the
// same way Set does.
func (h *HandleBase) Clear() {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.target != nil && h.worker.Oracle().DuringMarking() {
		h.worker.EnqueueSATB(h.target, h.size, h.region)
	}
	h.target = nil
	h.size = 0
	h.region = nil
}

// Raw returns the handle's current target, healing it first if the
// self-heal barrier determines it might point into an evacuated
// region.
func (h *HandleBase) Raw() unsafe.Pointer {
	h.lock.RLock()
	target, size, r, state := h.target, h.size, h.region, h.inlineState
	h.lock.RUnlock()

	if target == nil {
		return nil
	}
	if !h.needHeal(state) {
		return target
	}

	healed, healedRegion, ok := selfHeal(h.worker, target, size, r)
	if !ok {
		return target
	}

	h.lock.Lock()
	if h.target == target { // nobody raced us to a fresher value
		h.target = healed
		h.region = healedRegion
		if h.worker.Oracle().DuringGC() {
			h.inlineState = State(h.worker.Oracle().CurrentColor())
		} else {
			h.inlineState = Remapped
		}
	}
	h.lock.Unlock()
	return healed
}

// RegionOf reports the region the handle's target is (last known to be)
// in, for ObjectInfo-style introspection.
func (h *HandleBase) RegionOf() *region.Region {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return h.region
}

// Size reports the byte size of the handle's current target.
func (h *HandleBase) Size() uintptr {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return h.size
}

func (h *HandleBase) needHeal(state State) bool {
	if h.target == nil || !h.worker.RelocationEnabled() {
		return false
	}
	return h.worker.Oracle().NeedSelfHeal(phase.Color(state))
}

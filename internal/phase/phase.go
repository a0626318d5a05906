// Package phase implements the collector's global phase and mark-color
// state machine, and the stop-the-world read/write lock mutators and the
// collector coordinate through.
package phase

import (
	"sync"
	"sync/atomic"
)

// Color is a three-valued mark tag. Exactly one of {M0, M1} is the
// current color during a collection cycle; the other is the stale color
// left over from the previous cycle. Remapped means "known live, pointer
// fully healed" and is the steady-state color outside of a cycle.
type Color int32

const (
	Remapped Color = iota
	M0
	M1
)

func (c Color) String() string {
	switch c {
	case Remapped:
		return "REMAPPED"
	case M0:
		return "M0"
	case M1:
		return "M1"
	default:
		return "INVALID"
	}
}

// Flip returns the other of {M0, M1}; Remapped flips to itself.
func (c Color) Flip() Color {
	switch c {
	case M0:
		return M1
	case M1:
		return M0
	default:
		return Remapped
	}
}

// Phase is the collector-visible cycle state. Transitions are linear:
// Idle -> ConcurrentMark -> Remark -> Sweep -> Idle.
type Phase int32

const (
	Idle Phase = iota
	ConcurrentMark
	Remark
	Sweep
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case ConcurrentMark:
		return "concurrent-mark"
	case Remark:
		return "remark"
	case Sweep:
		return "sweep"
	default:
		return "invalid"
	}
}

// Oracle is the process-wide phase and color state machine plus the STW
// barrier. Mutators take the STW lock's read side during every critical
// section (handle assignment, destruction, read-through); the collector
// takes the write side to stop the world. Methods are safe for
// concurrent use.
type Oracle struct {
	phase   atomic.Int32
	color   atomic.Int32
	flipMu  sync.Mutex
	stwLock *STWLock
}

// New constructs an Oracle at Idle/Remapped. weak selects the spin-capable
// STW lock variant used for low-latency stop-the-world windows; the
// mutex-backed variant is used otherwise. Correctness never depends on
// which lock is chosen, only latency does.
func New(weak bool) *Oracle {
	o := &Oracle{}
	o.phase.Store(int32(Idle))
	o.color.Store(int32(Remapped))
	if weak {
		o.stwLock = newWeakSTWLock()
	} else {
		o.stwLock = newMutexSTWLock()
	}
	return o
}

// GetPhase returns the current phase.
func (o *Oracle) GetPhase() Phase {
	return Phase(o.phase.Load())
}

// CurrentColor returns the color that means "live" in the current cycle.
func (o *Oracle) CurrentColor() Color {
	return Color(o.color.Load())
}

// DuringGC reports whether a cycle is in progress.
func (o *Oracle) DuringGC() bool {
	return o.GetPhase() != Idle
}

// DuringMarking reports whether the phase is ConcurrentMark or Remark —
// the window where write-barrier SATB logging is required.
func (o *Oracle) DuringMarking() bool {
	p := o.GetPhase()
	return p == ConcurrentMark || p == Remark
}

// SwitchToNextPhase rotates Idle->ConcurrentMark->Remark->Sweep->Idle.
// On the Idle->ConcurrentMark edge the current color flips under an
// internal lock so no concurrent CurrentColor observes a half-switched
// state: the color swap and the phase swap appear atomic to readers that
// only ever read one of the two fields, because the color is written
// before the phase on this edge and every other edge leaves color alone.
func (o *Oracle) SwitchToNextPhase() {
	switch o.GetPhase() {
	case Idle:
		o.flipMu.Lock()
		next := o.CurrentColor().Flip()
		if next == Remapped {
			next = M0
		}
		o.color.Store(int32(next))
		o.phase.Store(int32(ConcurrentMark))
		o.flipMu.Unlock()
	case ConcurrentMark:
		o.phase.Store(int32(Remark))
	case Remark:
		o.phase.Store(int32(Sweep))
	case Sweep:
		o.phase.Store(int32(Idle))
	}
}

// NeedSweep reports whether an object whose bitmap mark equals state
// must be reclaimed at this sweep: it is stale relative to the current
// color. NotAllocated objects never need sweeping (they're already free).
func (o *Oracle) NeedSweep(state Color, allocated bool) bool {
	if !allocated {
		return false
	}
	return state != o.CurrentColor()
}

// NeedSelfHeal implements the original's direction-dependent rule
// (ported from GCPhase::needSelfHeal): during marking, a handle whose
// inline color differs from the current cycle's color may point into an
// object that was live last cycle and could have been evacuated by a
// concurrent relocation, so it needs healing precisely when it differs.
// Outside marking (sweep or idle) "current" just flipped meaning at
// cycle start, so a handle needs healing precisely when its color
// equals the current color (it was painted during the cycle that just
// ended and may have moved during sweep-time relocation).
func (o *Oracle) NeedSelfHeal(inlineColor Color) bool {
	if inlineColor == Remapped {
		return false
	}
	o.flipMu.Lock()
	current := o.CurrentColor()
	marking := o.DuringMarking()
	o.flipMu.Unlock()
	if marking {
		return inlineColor != current
	}
	return inlineColor == current
}

// IsLiveObject reports whether a mark color is the current, live color.
func (o *Oracle) IsLiveObject(state Color) bool {
	return state == o.CurrentColor()
}

// EnterCriticalSection takes the STW lock's read side; mutators hold it
// for the duration of a handle read/write/destroy.
func (o *Oracle) EnterCriticalSection() { o.stwLock.RLock() }

// LeaveCriticalSection releases the STW lock's read side.
func (o *Oracle) LeaveCriticalSection() { o.stwLock.RUnlock() }

// StopTheWorld takes the STW lock's write side, blocking until every
// in-flight mutator critical section has exited.
func (o *Oracle) StopTheWorld() { o.stwLock.Lock() }

// ResumeTheWorld releases the STW lock's write side.
func (o *Oracle) ResumeTheWorld() { o.stwLock.Unlock() }

package region

import (
	"sync"

	"github.com/regiongc/regiongc/internal/goid"
)

// recursiveMutex is a re-entrant mutex keyed by goroutine ID, modeling
// the original GCRegion's std::recursive_mutex relocation_mutex. Its
// only user is TriggerRelocation, which takes it once per call; the
// self-heal barrier (internal/handle/selfheal.go) does not relocate, so
// nothing in this module re-enters it.
type recursiveMutex struct {
	mu    sync.Mutex
	owner uint64
	depth int
}

func (m *recursiveMutex) Lock() {
	gid := goid.Current()
	m.mu.Lock()
	if m.depth > 0 && m.owner == gid {
		m.depth++
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.acquire(gid)
}

// acquire blocks (by spinning on the plain mutex) until this goroutine
// becomes the owner at depth 1. A true blocking recursive mutex needs a
// condition variable here in the contended case; the collector's
// relocation path is already serialized per-region by the caller
// (TriggerRelocation itself takes this lock once per region per cycle),
// so contention is rare and a short spin is the idiomatic tradeoff over
// building a condvar-based recursive lock for a cold path.
func (m *recursiveMutex) acquire(gid uint64) {
	for {
		m.mu.Lock()
		if m.depth == 0 {
			m.owner = gid
			m.depth = 1
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()
	}
}

func (m *recursiveMutex) Unlock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.depth == 0 {
		panic("region: Unlock of unlocked recursiveMutex")
	}
	m.depth--
}

package heap

import (
	"sort"
	"sync"
	"unsafe"

	"github.com/regiongc/regiongc/internal/region"
)

// RegionMap supports "which region contains this pointer?" in O(log n)
// via a strictly sorted, non-overlapping slice of region start
// addresses, queried by upper_bound-then-decrement — the idiom
// spec.md §9 flags as an Open Question about the original source ("a
// re-implementation must enforce [non-overlap] on every
// insertion/eviction"). This port resolves that by making Insert/Evict
// the map's only mutators and keeping the slice invariant enforced
// there, never exposed for direct manipulation.
type RegionMap struct {
	mu      sync.RWMutex
	starts  []uintptr
	regions []*region.Region
}

// NewRegionMap constructs an empty map.
func NewRegionMap() *RegionMap {
	return &RegionMap{}
}

// Insert adds r, keyed by its start address. Panics if r's span
// overlaps an already-registered region — the non-overlap invariant
// this map depends on for upper_bound lookups to be correct.
func (m *RegionMap) Insert(r *region.Region) {
	start := uintptr(r.StartAddr())
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := sort.Search(len(m.starts), func(i int) bool { return m.starts[i] >= start })
	if idx < len(m.starts) && m.starts[idx] == start {
		panic("heap: region map insert collides with an existing start address")
	}
	if idx > 0 && m.starts[idx-1]+m.regions[idx-1].TotalSize() > start {
		panic("heap: region map insert overlaps the preceding region")
	}
	if idx < len(m.starts) && start+r.TotalSize() > m.starts[idx] {
		panic("heap: region map insert overlaps the following region")
	}
	m.starts = append(m.starts, 0)
	copy(m.starts[idx+1:], m.starts[idx:])
	m.starts[idx] = start

	m.regions = append(m.regions, nil)
	copy(m.regions[idx+1:], m.regions[idx:])
	m.regions[idx] = r
}

// Evict removes r from the map.
func (m *RegionMap) Evict(r *region.Region) {
	start := uintptr(r.StartAddr())
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := sort.Search(len(m.starts), func(i int) bool { return m.starts[i] >= start })
	if idx >= len(m.starts) || m.starts[idx] != start {
		return
	}
	m.starts = append(m.starts[:idx], m.starts[idx+1:]...)
	m.regions = append(m.regions[:idx], m.regions[idx+1:]...)
}

// Lookup finds the region containing addr: the upper_bound of addr
// among start addresses, decremented by one (the last region whose
// start is <= addr), verified by an inside-region check since the
// decremented candidate might not actually span addr (a gap between
// regions, or addr before the first region).
func (m *RegionMap) Lookup(addr unsafe.Pointer) *region.Region {
	a := uintptr(addr)
	m.mu.RLock()
	defer m.mu.RUnlock()

	idx := sort.Search(len(m.starts), func(i int) bool { return m.starts[i] > a })
	if idx == 0 {
		return nil
	}
	candidate := m.regions[idx-1]
	if candidate.InsideRegion(addr, 0) {
		return candidate
	}
	return nil
}

// Len reports the number of registered regions.
func (m *RegionMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.starts)
}

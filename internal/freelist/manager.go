package freelist

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/regiongc/regiongc/internal/gcerr"
)

// InitialSingleSize is the minimum fresh OS extent size acquired when no
// pool has room: max(InitialSingleSize, requested size), per spec.md §4.C.
const InitialSingleSize = 8 * 1024 * 1024

// Manager owns one Pool per hardware thread and arbitrates between them:
// a local-pool miss triggers an advisory linear work-steal scan of the
// other pools before falling back to acquiring a fresh OS extent.
//
// Grounded on SeleniaProject-Orizon/internal/runtime/numa_optimizer.go's
// per-node pool table for the N-pools-by-hardware-thread shape, and
// spec.md §4.C for the first-fit/coalesce/steal/grow policy itself (the
// teacher's own allocator.go pools are fixed-size-class, not address-
// ordered-coalescing, so the policy is original to this port).
type Manager struct {
	pools     []*Pool
	nextPool  atomic.Uint64
	totalMmap atomic.Uint64

	mu      sync.RWMutex
	extents map[uintptr]uintptr // base addr -> size, for Shutdown's unmap pass
}

// NewManager constructs a Manager with n pools (n<=0 defaults to
// runtime.GOMAXPROCS(0), one pool per hardware thread as spec.md names
// it).
func NewManager(n int) *Manager {
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	m := &Manager{
		pools:   make([]*Pool, n),
		extents: make(map[uintptr]uintptr),
	}
	for i := range m.pools {
		m.pools[i] = NewPool()
	}
	return m
}

// poolFor returns this goroutine's preferred pool, round-robin indexed
// by an atomic counter (a cheap stand-in for hardware-thread affinity,
// which Go's scheduler does not expose).
func (m *Manager) poolFor() (int, *Pool) {
	idx := int(m.nextPool.Add(1)-1) % len(m.pools)
	return idx, m.pools[idx]
}

// Allocate services size bytes: first-fit from the caller's local pool,
// then an advisory linear steal scan of the other pools, then a fresh OS
// extent of max(InitialSingleSize, size) deposited into the local pool.
func (m *Manager) Allocate(size uintptr) (uintptr, error) {
	localIdx, local := m.poolFor()
	if addr := local.Allocate(size); addr != 0 {
		return addr, nil
	}

	for i, p := range m.pools {
		if i == localIdx {
			continue
		}
		if addr := p.Allocate(size); addr != 0 {
			return addr, nil
		}
	}

	grow := size
	if grow < InitialSingleSize {
		grow = InitialSingleSize
	}
	addr, err := mapExtent(grow)
	if err != nil {
		return 0, gcerr.Wrap(gcerr.Exhaustion, "freelist: acquire OS extent", err)
	}
	m.totalMmap.Add(uint64(grow))
	m.mu.Lock()
	m.extents[addr] = grow
	m.mu.Unlock()

	local.Deposit(addr, grow)
	result := local.Allocate(size)
	if result == 0 {
		return 0, gcerr.New(gcerr.Exhaustion, fmt.Sprintf("freelist: grew by %d bytes but still can't satisfy %d-byte request", grow, size))
	}
	return result, nil
}

// Free returns [addr, addr+size) to the caller's local pool. Pools are
// independent; freeing to a different pool than the one that serviced
// the allocation is correct (just less cache-friendly), matching
// spec.md §4.C's "per hardware thread" pools being an affinity hint,
// not a partition mutators must respect.
func (m *Manager) Free(addr, size uintptr) {
	_, local := m.poolFor()
	local.Free(addr, size)
}

// TotalMapped reports the cumulative bytes ever acquired from the OS.
func (m *Manager) TotalMapped() uint64 { return m.totalMmap.Load() }

// TotalFree reports the sum of free bytes across every pool.
func (m *Manager) TotalFree() uintptr {
	var total uintptr
	for _, p := range m.pools {
		total += p.TotalFree()
	}
	return total
}

// Shutdown unmaps every OS extent acquired over the Manager's lifetime.
// Safe to call once; subsequent allocations are undefined after this.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for addr, size := range m.extents {
		if err := unmapExtent(addr, size); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.extents = make(map[uintptr]uintptr)
	return firstErr
}

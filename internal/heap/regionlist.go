// Package heap implements the collector's Memory Allocator: size-class
// dispatch over per-class region lists, a region map supporting
// address-to-owning-region lookup, and the sweep-boundary
// select-and-clear / select-and-relocate walks.
//
// Grounded on SeleniaProject-Orizon/internal/allocator/allocator.go for
// the size-class dispatch shape, and on spec.md §4.D/§9's
// "upper_bound then --" region map for address lookup (an explicit Open
// Question in the original the port resolves by keeping the map's slice
// strictly sorted and non-overlapping on every insert).
package heap

import (
	"sync/atomic"
	"unsafe"

	"github.com/regiongc/regiongc/internal/region"
)

// node is one lock-free singly-linked-list entry wrapping a region.
type node struct {
	r    *region.Region
	next atomic.Pointer[node]
}

// RegionList is a lock-free, CAS-head-insert singly linked list of
// regions belonging to one size class.
type RegionList struct {
	head atomic.Pointer[node]
}

// Insert CAS-prepends r to the list head.
func (l *RegionList) Insert(r *region.Region) {
	n := &node{r: r}
	for {
		old := l.head.Load()
		n.next.Store(old)
		if l.head.CompareAndSwap(old, n) {
			return
		}
	}
}

// Remove splices r out of the list via CAS re-splicing. No-op if r is
// not present (already removed by a racing sweep).
func (l *RegionList) Remove(r *region.Region) {
	for {
		prev := (*node)(nil)
		cur := l.head.Load()
		found := false
		for cur != nil {
			if cur.r == r {
				found = true
				break
			}
			prev = cur
			cur = cur.next.Load()
		}
		if !found {
			return
		}
		next := cur.next.Load()
		var ok bool
		if prev == nil {
			ok = l.head.CompareAndSwap(cur, next)
		} else {
			ok = prev.next.CompareAndSwap(cur, next)
		}
		if ok {
			return
		}
		// list mutated concurrently; retry the whole scan
	}
}

// Each calls visit for every region currently in the list. The walk
// observes a consistent snapshot of next-pointers at visit time but
// does not freeze the list; concurrent inserts/removes may or may not
// be observed, matching the lock-free list's advisory iteration
// semantics.
func (l *RegionList) Each(visit func(*region.Region)) {
	for cur := l.head.Load(); cur != nil; cur = cur.next.Load() {
		visit(cur.r)
	}
}

// Find locates the first region for which addr lies inside its span.
func (l *RegionList) Find(addr unsafe.Pointer) *region.Region {
	for cur := l.head.Load(); cur != nil; cur = cur.next.Load() {
		if cur.r.InsideRegion(addr, 0) {
			return cur.r
		}
	}
	return nil
}

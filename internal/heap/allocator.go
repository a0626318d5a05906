package heap

import (
	"unsafe"

	"github.com/regiongc/regiongc/internal/freelist"
	"github.com/regiongc/regiongc/internal/gcerr"
	"github.com/regiongc/regiongc/internal/gclog"
	"github.com/regiongc/regiongc/internal/phase"
	"github.com/regiongc/regiongc/internal/region"
)

// Allocator is the collector's Memory Allocator: four per-size-class
// region lists plus a global region map, backed by an
// internal/freelist.Manager for the raw OS-extent memory each new
// region wraps.
//
// Grounded on SeleniaProject-Orizon/internal/allocator/allocator.go's
// size-class dispatch and spec.md §4.D for the list/map/sweep design.
type Allocator struct {
	oracle  *phase.Oracle
	extents *freelist.Manager
	log     *gclog.Logger

	lists [4]RegionList // indexed by region.SizeClass
	mapp  *RegionMap
}

// New constructs an Allocator. extents backs every region, Large
// included, with an OS-mapped arena; log receives structured
// diagnostics when a region's extent cannot be acquired.
func New(oracle *phase.Oracle, extents *freelist.Manager, log *gclog.Logger) *Allocator {
	return &Allocator{
		oracle:  oracle,
		extents: extents,
		log:     log,
		mapp:    NewRegionMap(),
	}
}

// Allocate services a size-byte request: choose the size class, walk
// the matching region list calling Region.Allocate until one succeeds,
// otherwise create a fresh region of the class's default size and
// retry. LARGE requests always get a new region sized exactly to the
// request.
func (a *Allocator) Allocate(size uintptr) (*region.Region, unsafe.Pointer, error) {
	class := region.ClassFor(size)

	if class == region.Large {
		r, err := a.newRegion(class, size)
		if err != nil {
			return nil, nil, err
		}
		addr := r.Allocate(size)
		if addr == nil {
			return nil, nil, gcerr.New(gcerr.Invariant, "heap: fresh LARGE region rejected its own sized allocation")
		}
		return r, addr, nil
	}

	var found *region.Region
	var addr unsafe.Pointer
	a.lists[class].Each(func(r *region.Region) {
		if addr != nil || r.IsFreed() || r.IsEvacuated() {
			return
		}
		if got := r.Allocate(size); got != nil {
			found, addr = r, got
		}
	})
	if addr != nil {
		return found, addr, nil
	}

	r, err := a.newRegion(class, region.DefaultRegionSize(class))
	if err != nil {
		return nil, nil, err
	}
	got := r.Allocate(size)
	if got == nil {
		return nil, nil, gcerr.New(gcerr.Invariant, "heap: fresh region rejected an allocation within its own default size")
	}
	return r, got, nil
}

// newRegion acquires totalSize bytes from the free-list manager,
// registers a region over it in the matching list and the global
// region map, and returns it.
func (a *Allocator) newRegion(class region.SizeClass, totalSize uintptr) (*region.Region, error) {
	base, err := a.extents.Allocate(totalSize)
	if err != nil {
		a.log.Warn("region extent acquisition failed", "class", class.String(), "size", totalSize, "error", err)
		return nil, err
	}
	r := region.NewFromExtent(a.oracle, class, unsafe.Pointer(base), totalSize)
	a.lists[class].Insert(r)
	a.mapp.Insert(r)
	return r, nil
}

// relocateInto is the region.relocator callback wired into
// Region.TriggerRelocation: it allocates same-class destination space
// via this Allocator, exactly as spec.md §4.B's evacuation step
// requires ("allocate a same-class destination via the external
// allocator").
func (a *Allocator) relocateInto(class region.SizeClass, size uintptr) (*region.Region, unsafe.Pointer) {
	r, addr, err := a.allocateInClass(class, size)
	if err != nil {
		return nil, nil
	}
	return r, addr
}

func (a *Allocator) allocateInClass(class region.SizeClass, size uintptr) (*region.Region, unsafe.Pointer, error) {
	var found *region.Region
	var addr unsafe.Pointer
	a.lists[class].Each(func(r *region.Region) {
		if addr != nil || r.IsFreed() || r.IsEvacuated() {
			return
		}
		if got := r.Allocate(size); got != nil {
			found, addr = r, got
		}
	})
	if addr != nil {
		return found, addr, nil
	}
	total := region.DefaultRegionSize(class)
	if class == region.Large {
		total = size
	}
	r, err := a.newRegion(class, total)
	if err != nil {
		return nil, nil, err
	}
	got := r.Allocate(size)
	return r, got, nil
}

// GetRegion looks up the region containing addr, or nil.
func (a *Allocator) GetRegion(addr unsafe.Pointer) *region.Region {
	return a.mapp.Lookup(addr)
}

// RegionCount reports the number of regions currently registered in
// the global region map, for the collector's live-region gauge.
func (a *Allocator) RegionCount() int {
	return a.mapp.Len()
}

// SelectAndClear sweeps every non-LARGE list: clear_unmarked each
// region, then retire (remove from list + map, free arena back to the
// free-list manager) any that report CanFree. LARGE regions are always
// processed in clear mode (wholesale free when unmarked).
func (a *Allocator) SelectAndClear() {
	for class := region.Tiny; class <= region.Medium; class++ {
		a.sweepList(class, false)
	}
	a.sweepLarge()
}

// SelectAndRelocate sweeps every non-LARGE list, additionally triggering
// evacuation on regions whose fragmentation passes the threshold.
func (a *Allocator) SelectAndRelocate() {
	for class := region.Tiny; class <= region.Medium; class++ {
		a.sweepList(class, true)
	}
	a.sweepLarge()
}

func (a *Allocator) sweepList(class region.SizeClass, relocate bool) {
	var victims, dead []*region.Region
	a.lists[class].Each(func(r *region.Region) {
		if r.IsFreed() {
			return
		}
		r.ClearUnmarked()
		if r.CanFree() {
			dead = append(dead, r)
			return
		}
		if relocate && !r.IsEvacuated() && r.NeedsEvacuate() {
			victims = append(victims, r)
		}
	})
	for _, r := range victims {
		r.TriggerRelocation(a.relocateInto)
	}
	for _, r := range dead {
		a.retire(class, r)
	}
}

func (a *Allocator) sweepLarge() {
	var dead []*region.Region
	a.lists[region.Large].Each(func(r *region.Region) {
		if r.IsFreed() {
			return
		}
		if r.CanFree() {
			dead = append(dead, r)
		}
	})
	for _, r := range dead {
		a.retire(region.Large, r)
	}
}

func (a *Allocator) retire(class region.SizeClass, r *region.Region) {
	base := uintptr(r.StartAddr())
	total := r.TotalSize()
	a.lists[class].Remove(r)
	a.mapp.Evict(r)
	r.Retire()
	a.extents.Free(base, total)
}

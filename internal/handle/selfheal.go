package handle

import (
	"unsafe"

	"github.com/regiongc/regiongc/internal/region"
)

// selfHeal is the forwarding lookup of the read barrier: ask target's
// region for a forwarding entry and, if found, return the healed
// (address, region) pair with ok=true. Otherwise it returns ok=false and
// the caller keeps the original target. It never relocates anything
// itself: a region that is marked evacuated but has no entry for target
// gets no single-object evacuation here.
//
// Ported from GCPtr_::selfHeal / GCWorker::getHealedPointer.
func selfHeal(w Worker, target unsafe.Pointer, size uintptr, r *region.Region) (healed unsafe.Pointer, healedRegion *region.Region, ok bool) {
	if r == nil {
		return nil, nil, false
	}

	if fwd, found := r.QueryForwardingTable(target); found {
		return addrIn(fwd), fwd.NewRegion, true
	}

	if !r.IsEvacuated() {
		return nil, nil, false
	}

	// evacuated is set only after TriggerRelocation's walk has finished,
	// so reaching here with IsEvacuated()==true and no entry means the
	// object was not moved: it was already dead (swept, not evacuated),
	// it was left in place because the destination allocator had no
	// room, or this handle's target is stale from before the region was
	// reused. Either way there is nothing to heal into.
	return nil, nil, false
}

func addrIn(fwd region.Forward) unsafe.Pointer {
	return unsafe.Pointer(uintptr(fwd.NewRegion.StartAddr()) + fwd.NewOffset)
}

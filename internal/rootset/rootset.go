package rootset

import "github.com/regiongc/regiongc/internal/goid"

// RootSet is the collector's full, sharded root set: P shards, one per
// hardware thread, each an independent Shard. Insertion picks the shard
// by hash(thread_id) mod P; removal tries the inserting thread's
// recorded shard first and falls back to a linear scan of the others,
// since a handle may migrate goroutines between construction and
// destruction (spec.md §4.E).
type RootSet struct {
	shards []*Shard
}

// New constructs a RootSet with p shards (p<=0 defaults to 4, matching
// the collector worker's default thread-pool size in spec.md §4.G).
func New(p int) *RootSet {
	if p <= 0 {
		p = 4
	}
	rs := &RootSet{shards: make([]*Shard, p)}
	for i := range rs.shards {
		rs.shards[i] = NewShard()
	}
	return rs
}

// ShardCount reports the number of shards P.
func (rs *RootSet) ShardCount() int { return len(rs.shards) }

// shardFor picks a shard index by hashing the calling goroutine's ID.
// Exported as ShardForCurrentGoroutine so a handle can record which
// shard it registered into.
func (rs *RootSet) shardFor(threadHint uint64) int {
	return int(threadHint % uint64(len(rs.shards)))
}

// ShardForCurrentGoroutine returns the shard index the calling
// goroutine maps to right now.
func (rs *RootSet) ShardForCurrentGoroutine() int {
	return rs.shardFor(goid.Current())
}

// Add registers r in the shard the calling goroutine maps to, returning
// the (shard index, offset) pair the caller must retain to later Remove
// it in O(1).
func (rs *RootSet) Add(r Root) (shardIdx int, offset uint64) {
	idx := rs.ShardForCurrentGoroutine()
	off := rs.shards[idx].Add(r)
	return idx, off
}

// Remove deregisters r, given the (shardIdx, offset) pair Add returned.
// It first tries that exact shard (the O(1) path, valid when the
// removing goroutine is the same one — or maps to the same shard — as
// the one that added it). If the shard no longer has r at that offset
// (the adding and removing goroutines hashed to different shards), it
// falls back to a linear scan of every other shard.
func (rs *RootSet) Remove(r Root, shardIdx int, offset uint64) {
	if shardIdx >= 0 && shardIdx < len(rs.shards) {
		if rs.shards[shardIdx].findAndRemove(r, offset) {
			return
		}
	}
	for i, sh := range rs.shards {
		if i == shardIdx {
			continue
		}
		if sh.linearRemove(r) {
			return
		}
	}
}

// Snapshot returns every live root across every shard. Used by the
// collector's concurrent-mark step, which snapshots shard-by-shard
// under each shard's own brief write lock.
func (rs *RootSet) Snapshot() []Root {
	var all []Root
	for _, sh := range rs.shards {
		all = append(all, sh.Snapshot()...)
	}
	return all
}

// Size reports the total number of live roots across every shard.
func (rs *RootSet) Size() uint64 {
	var total uint64
	for _, sh := range rs.shards {
		total += sh.Size()
	}
	return total
}

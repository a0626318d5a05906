package handle

import (
	"sync"
	"unsafe"

	"github.com/regiongc/regiongc/internal/region"
)

// SATBEntry is one recorded pre-overwrite value: the old target, its
// size, and the region it lived in at enqueue time.
type SATBEntry struct {
	Addr   unsafe.Pointer
	Size   uintptr
	Region *region.Region
}

// SATBQueue is one pool shard's snapshot-at-the-beginning log: every
// handle write/destroy during CONCURRENT_MARK that overwrites a
// non-nil target appends the old value here, so the remark step can
// trace it even though the mutator's own edge to it is gone.
//
// Grounded on spec.md §4.F; the teacher has no SATB analogue, so the
// queue + optional dedup-set shape follows the original's description
// directly rather than a teacher file.
type SATBQueue struct {
	mu      sync.Mutex
	entries []SATBEntry
	dedup   map[unsafe.Pointer]bool // nil unless distinct-set mode is enabled
}

// NewSATBQueue constructs a queue. distinctSet enables the optional
// dedup-by-address mode spec.md §4.F mentions.
func NewSATBQueue(distinctSet bool) *SATBQueue {
	q := &SATBQueue{}
	if distinctSet {
		q.dedup = make(map[unsafe.Pointer]bool)
	}
	return q
}

// Enqueue appends e, unless distinct-set mode is on and addr has
// already been recorded this cycle.
func (q *SATBQueue) Enqueue(e SATBEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.dedup != nil {
		if q.dedup[e.Addr] {
			return
		}
		q.dedup[e.Addr] = true
	}
	q.entries = append(q.entries, e)
}

// Drain returns every queued entry and clears the queue (and its dedup
// set, if any) for the next cycle.
func (q *SATBQueue) Drain() []SATBEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.entries
	q.entries = nil
	if q.dedup != nil {
		q.dedup = make(map[unsafe.Pointer]bool)
	}
	return out
}

// Len reports the number of currently queued entries.
func (q *SATBQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// ShardedSATB is one SATBQueue per pool shard, matching spec.md §4.F's
// "per-pool SATB queue".
type ShardedSATB struct {
	shards []*SATBQueue
}

// NewShardedSATB constructs p per-shard queues.
func NewShardedSATB(p int, distinctSet bool) *ShardedSATB {
	if p <= 0 {
		p = 4
	}
	s := &ShardedSATB{shards: make([]*SATBQueue, p)}
	for i := range s.shards {
		s.shards[i] = NewSATBQueue(distinctSet)
	}
	return s
}

// Enqueue appends e to the shard keyed by shardIdx mod the shard count.
func (s *ShardedSATB) Enqueue(shardIdx int, e SATBEntry) {
	s.shards[shardIdx%len(s.shards)].Enqueue(e)
}

// DrainAll drains every shard, used by the collector's remark step.
func (s *ShardedSATB) DrainAll() []SATBEntry {
	var all []SATBEntry
	for _, sh := range s.shards {
		all = append(all, sh.Drain()...)
	}
	return all
}

// Len reports the total number of entries queued across every shard.
func (s *ShardedSATB) Len() int {
	var total int
	for _, sh := range s.shards {
		total += sh.Len()
	}
	return total
}

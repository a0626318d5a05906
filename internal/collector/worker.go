// Package collector implements the Collector Worker: the singleton
// cycle driver that snapshots the root set, drains SATB, and sweeps
// the heap allocator through the phase oracle's state machine.
//
// Grounded on spec.md §4.G for the eight-step cycle and state machine,
// and on SeleniaProject-Orizon/internal/packagemanager/manager.go's
// errgroup.WithContext(ctx) + buffered-channel concurrency-limit
// pattern for the parallel root-snapshot mark fan-out (ported here as
// errgroup.Group + golang.org/x/sync/semaphore.Weighted, since the
// pack wires both under the same golang.org/x/sync module).
package collector

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unsafe"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/regiongc/regiongc/internal/gcerr"
	"github.com/regiongc/regiongc/internal/gclog"
	"github.com/regiongc/regiongc/internal/handle"
	"github.com/regiongc/regiongc/internal/heap"
	"github.com/regiongc/regiongc/internal/phase"
	"github.com/regiongc/regiongc/internal/region"
	"github.com/regiongc/regiongc/internal/rootset"
)

// DefaultPoolSize is the collector thread pool's default width
// (spec.md §4.G: "thread pool, size 4 by default").
const DefaultPoolSize = 4

// Worker is the process's singleton collector: the phase oracle, the
// heap allocator it sweeps, the sharded root set and SATB queues it
// traces, and the per-type tracer table it uses to discover nested
// handles. It implements internal/handle.Worker so every live Handle
// routes its barriers through this type.
type Worker struct {
	oracle  *phase.Oracle
	heapA   *heap.Allocator
	roots   *rootset.RootSet
	satb    *handle.ShardedSATB
	tracer  *handle.Tracer
	log     *gclog.Logger
	metrics *Metrics

	poolSize   int
	relocation bool

	cycleMu sync.Mutex // one cycle in flight at a time
}

// Config bundles a Worker's construction parameters.
type Config struct {
	Oracle     *phase.Oracle
	Heap       *heap.Allocator
	Roots      *rootset.RootSet
	SATB       *handle.ShardedSATB
	Tracer     *handle.Tracer
	Log        *gclog.Logger
	Metrics    *Metrics
	PoolSize   int  // <=0 defaults to DefaultPoolSize
	Relocation bool // enables evacuation at sweep
}

// New constructs a Worker from cfg.
func New(cfg Config) (*Worker, error) {
	if cfg.Oracle == nil || cfg.Heap == nil || cfg.Roots == nil || cfg.SATB == nil || cfg.Tracer == nil {
		return nil, gcerr.New(gcerr.Config, "collector: Oracle, Heap, Roots, SATB and Tracer are required")
	}
	if cfg.Log == nil {
		cfg.Log = gclog.NewNop()
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}
	return &Worker{
		oracle:     cfg.Oracle,
		heapA:      cfg.Heap,
		roots:      cfg.Roots,
		satb:       cfg.SATB,
		tracer:     cfg.Tracer,
		log:        cfg.Log,
		metrics:    cfg.Metrics,
		poolSize:   poolSize,
		relocation: cfg.Relocation,
	}, nil
}

// Oracle implements internal/handle.Worker.
func (w *Worker) Oracle() *phase.Oracle { return w.oracle }

// GetRegion implements internal/handle.Worker.
func (w *Worker) GetRegion(addr unsafe.Pointer) *region.Region { return w.heapA.GetRegion(addr) }

// EnqueueSATB implements internal/handle.Worker: the SATB shard is
// chosen the same way root-set shards are, by the enqueuing
// goroutine's id, so a pool's SATB queue sees writes from the
// goroutines that would also register roots into its shard.
func (w *Worker) EnqueueSATB(addr unsafe.Pointer, size uintptr, r *region.Region) {
	shard := w.roots.ShardForCurrentGoroutine()
	w.satb.Enqueue(shard, handle.SATBEntry{Addr: addr, Size: size, Region: r})
}

// Roots implements internal/handle.Worker.
func (w *Worker) Roots() *rootset.RootSet { return w.roots }

// RelocationEnabled implements internal/handle.Worker.
func (w *Worker) RelocationEnabled() bool { return w.relocation }

// RegionCount reports how many regions are currently live, for the
// collector's gauge and for diagnostics.
func (w *Worker) RegionCount() int { return w.heapA.RegionCount() }

// TriggerGC runs exactly one full collection cycle end to end,
// following spec.md §4.G's eight steps. Only one cycle runs at a time;
// a concurrent caller blocks on cycleMu until the in-flight cycle
// finishes.
func (w *Worker) TriggerGC(ctx context.Context) error {
	w.cycleMu.Lock()
	defer w.cycleMu.Unlock()

	cycleID := uuid.New().String()
	start := time.Now()
	w.log.Info("gc cycle start", "cycle_id", cycleID, "relocation", w.relocation)

	// Step 1: Start. Idle -> ConcurrentMark flips the current color.
	// Region registration in this port is never buffered (internal/heap
	// inserts into the global map synchronously at creation), so there
	// is no region-buffer flush step to perform here.
	w.oracle.SwitchToNextPhase()

	// Step 2: Concurrent mark.
	roots := w.roots.Snapshot()
	if err := w.markRootsParallel(ctx, roots); err != nil {
		w.log.Error("concurrent mark failed", "cycle_id", cycleID, "error", err)
		return gcerr.Wrap(gcerr.Invariant, "collector: concurrent mark aborted", err)
	}

	// Step 3: Stop the world.
	w.oracle.StopTheWorld()

	// Step 4: Remark. Drain every SATB shard through the same tracing
	// procedure used for roots.
	w.oracle.SwitchToNextPhase() // ConcurrentMark -> Remark
	entries := w.satb.DrainAll()
	for _, e := range entries {
		w.traceAddr(e.Addr, e.Size, e.Region)
	}

	// Step 5: Select victims. Victim selection is folded into the sweep
	// call itself in this port (internal/heap.Allocator.sweepList checks
	// NeedsEvacuate per region as it walks), so this edge is just the
	// phase transition.
	w.oracle.SwitchToNextPhase() // Remark -> Sweep

	// Step 6: Resume the world.
	w.oracle.ResumeTheWorld()

	// Step 7: Sweep.
	if w.relocation {
		w.heapA.SelectAndRelocate()
	} else {
		w.heapA.SelectAndClear()
	}

	// Step 8: End.
	w.oracle.SwitchToNextPhase() // Sweep -> Idle

	elapsed := time.Since(start)
	if w.metrics != nil {
		w.metrics.CyclesTotal.Inc()
		w.metrics.CycleDuration.Observe(elapsed.Seconds())
		w.metrics.SATBDrained.Add(float64(len(entries)))
		w.metrics.LiveRegions.Set(float64(w.heapA.RegionCount()))
	}
	w.log.Info("gc cycle complete", "cycle_id", cycleID, "duration", elapsed.String(), "satb_drained", len(entries))
	return nil
}

// markRootsParallel partitions the root snapshot across the worker's
// thread pool (spec.md §4.G: "When parallel, partition the root
// snapshot evenly across the pool"), capping in-flight goroutines at
// poolSize via a weighted semaphore.
func (w *Worker) markRootsParallel(ctx context.Context, roots []rootset.Root) error {
	if len(roots) == 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(w.poolSize))

	for _, root := range roots {
		h, ok := root.(*handle.HandleBase)
		if !ok {
			continue
		}
		if err := sem.Acquire(gctx, 1); err != nil {
			return fmt.Errorf("collector: acquiring mark slot: %w", err)
		}
		g.Go(func() error {
			defer sem.Release(1)
			w.traceHandle(h)
			return nil
		})
	}
	return g.Wait()
}

// traceHandle implements the handle-tracing procedure of spec.md
// §4.G step 2: read the target under the handle's own lock (via
// Raw(), which also runs the self-heal barrier), then trace the
// target object the same way traceAddr does for any address.
func (w *Worker) traceHandle(h *handle.HandleBase) {
	target := h.Raw()
	if target == nil {
		return
	}
	w.traceAddr(target, h.Size(), h.RegionOf())
}

// traceAddr marks addr's span with the current color if it doesn't
// already carry it, then looks up the object's registered type (set
// at make_managed time via Region.RegisterType) and recurses into
// every nested handle the tracer table reports, mirroring the
// original's "scan the target's bytes for handle sentinels and
// recurse on each discovered interior handle" with the spec's own
// redesigned per-type offset table instead of sentinel scanning.
func (w *Worker) traceAddr(addr unsafe.Pointer, size uintptr, r *region.Region) {
	if addr == nil || r == nil || r.IsFreed() {
		return
	}
	if r.Marked(addr) {
		return // already traced this cycle; cuts off cycles in the object graph
	}
	r.Mark(addr, size)

	typ, ok := r.TypeOf(addr)
	if !ok {
		return
	}
	w.tracer.Trace(typ, addr, func(nested *handle.HandleBase) {
		w.traceHandle(nested)
	})
}

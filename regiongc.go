// Package regiongc is a concurrent, region-based, tracing garbage
// collector for Go host programs that want deterministic, mark-sweep-
// compact memory management for a managed object subgraph embedded
// inside otherwise ordinary Go values — the host opts individual
// objects into collection via Handle[T] rather than handing the whole
// heap to this collector.
//
// Initialize builds one Collector; Shutdown tears it down. Nothing in
// this package is a package-level singleton — spec.md §9's own design
// note flags the original's global singleton collector as something a
// re-implementation should wrap in an explicit initialize/shutdown
// pair instead of lazy-on-first-use, specifically so teardown ordering
// is testable.
package regiongc

import (
	"context"
	"reflect"
	"unsafe"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/regiongc/regiongc/internal/collector"
	"github.com/regiongc/regiongc/internal/freelist"
	"github.com/regiongc/regiongc/internal/gcconfig"
	"github.com/regiongc/regiongc/internal/gcerr"
	"github.com/regiongc/regiongc/internal/gclog"
	"github.com/regiongc/regiongc/internal/handle"
	"github.com/regiongc/regiongc/internal/heap"
	"github.com/regiongc/regiongc/internal/phase"
	"github.com/regiongc/regiongc/internal/region"
	"github.com/regiongc/regiongc/internal/rootset"
)

// Config is a re-export of the resolved tunable set; see gcconfig.Config
// for field documentation and gcconfig.Default for spec.md §6's
// defaults.
type Config = gcconfig.Config

// DefaultConfig returns gcconfig.Default()'s values.
func DefaultConfig() *Config { return gcconfig.Default() }

// Collector is one initialized instance of the collector: its phase
// oracle, heap, root set, SATB queues, and the worker that drives
// collection cycles. The zero value is not usable; construct with
// Initialize.
type Collector struct {
	cfg     *Config
	oracle  *phase.Oracle
	extents *freelist.Manager
	heapA   *heap.Allocator
	roots   *rootset.RootSet
	satb    *handle.ShardedSATB
	tracer  *handle.Tracer
	log     *gclog.Logger
	metrics *collector.Metrics
	worker  *collector.Worker
	reg     *prometheus.Registry
}

// Initialize validates cfg and builds every component of a Collector.
// Pass nil to use DefaultConfig().
func Initialize(cfg *Config) (*Collector, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log, err := gclog.New()
	if err != nil {
		return nil, gcerr.Wrap(gcerr.Config, "regiongc: building logger", err)
	}

	oracle := phase.New(cfg.WeakSTWLock)
	extents := freelist.NewManager(cfg.PoolSize)
	heapA := heap.New(oracle, extents, log)
	roots := rootset.New(cfg.PoolSize)
	satb := handle.NewShardedSATB(cfg.PoolSize, cfg.DistinctSATB)
	tracer := handle.NewTracer()
	reg := prometheus.NewRegistry()
	metrics := collector.NewMetrics(reg)

	poolSize := cfg.PoolSize
	if !cfg.ParallelGC {
		poolSize = 1
	}
	worker, err := collector.New(collector.Config{
		Oracle:     oracle,
		Heap:       heapA,
		Roots:      roots,
		SATB:       satb,
		Tracer:     tracer,
		Log:        log,
		Metrics:    metrics,
		PoolSize:   poolSize,
		Relocation: cfg.Relocation,
	})
	if err != nil {
		extents.Shutdown()
		return nil, err
	}

	return &Collector{
		cfg:     cfg,
		oracle:  oracle,
		extents: extents,
		heapA:   heapA,
		roots:   roots,
		satb:    satb,
		tracer:  tracer,
		log:     log,
		metrics: metrics,
		worker:  worker,
		reg:     reg,
	}, nil
}

// Shutdown releases every OS-backed extent this collector ever
// acquired and flushes the logger. The Collector must not be used
// afterward.
func (c *Collector) Shutdown() error {
	err := c.extents.Shutdown()
	_ = c.log.Sync()
	return err
}

// TriggerGC requests one collection cycle and blocks until it
// completes, per spec.md §6's trigger_gc.
func (c *Collector) TriggerGC(ctx context.Context) error {
	return c.worker.TriggerGC(ctx)
}

// Registry exposes the collector's Prometheus registry so the host
// can serve it (e.g. via promhttp.HandlerFor) alongside its own
// metrics.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

// RegionCount reports how many regions are currently live.
func (c *Collector) RegionCount() int { return c.worker.RegionCount() }

// Handle is the opaque managed-pointer the host embeds in its own
// stack frames or structs, per spec.md §6's Handle<T>. It embeds
// handle.HandleBase by value rather than holding a pointer to one, so
// the *same* generic type works uniformly as a root (when a *Handle[T]
// is returned to the host and lives in ordinary Go memory) and as an
// interior edge inside another managed object's fields (when a
// Handle[SomeT] field is itself part of a T handed to New, its bytes
// land inside collector-managed region memory along with the rest of
// T, and internal/handle.Tracer recognizes the embedded HandleBase at
// its exact offset the same way it would for a bare handle.HandleBase
// field). Raw/Destroy/Clear/RegionOf/IsRoot are promoted straight from
// the embedded HandleBase.
type Handle[T any] struct {
	handle.HandleBase
	c *Collector
}

// New implements spec.md §6's make_managed<T>: allocate room for value
// in the collector's heap, copy it in, register its type so the
// tracer can discover any Handle[T] fields T embeds, bind every
// interior handle T contains to this collector's worker, and
// optionally register destructor to run once the object becomes
// unreachable (per the "destructor support" knob).
func New[T any](c *Collector, value T, destructor func(*T)) (*Handle[T], error) {
	return newHandle(c, value, destructor)
}

// NewStatic implements spec.md §6's make_static<T>. In this port every
// top-level *Handle[T] already lives in the host's own Go-managed
// memory (never inside a collector region), so it is always
// registered as a root — there is no separate "explicit root" storage
// class to opt into, and NewStatic is provided only for API parity
// with the original's two named constructors.
func NewStatic[T any](c *Collector, value T, destructor func(*T)) (*Handle[T], error) {
	return newHandle(c, value, destructor)
}

func newHandle[T any](c *Collector, value T, destructor func(*T)) (*Handle[T], error) {
	size := unsafe.Sizeof(value)
	r, addr, err := c.heapA.Allocate(size)
	if err != nil {
		return nil, err
	}
	*(*T)(addr) = value
	r.RegisterType(addr, reflect.TypeOf(value))
	if destructor != nil && c.cfg.DestructorSupport {
		r.RegisterDestructor(addr, func(p unsafe.Pointer) { destructor((*T)(p)) })
	}
	// Bind every interior handle the freshly-copied value contains —
	// Go has no constructor chaining to do this automatically the way
	// a member GCPtr_ would self-initialize in the original's placement
	// new, so make_managed does the binding pass explicitly here.
	c.tracer.Trace(reflect.TypeOf(value), addr, func(hb *handle.HandleBase) {
		hb.Bind(c.worker, unsafe.Pointer(hb))
	})

	h := &Handle[T]{c: c}
	h.Bind(c.worker, unsafe.Pointer(h))
	h.Set(addr, size, r)
	return h, nil
}

// IsNull reports whether the handle currently has no target, per
// spec.md §6's "compare to null" operation.
func (h *Handle[T]) IsNull() bool {
	return h.Raw() == nil
}

// Deref guards a dereference of the handle's target: the returned
// Guard pins the owning region against relocation until Release is
// called, per spec.md §4.F's pin semantics ("the read barrier
// increments the target region's use_count ... on guard release the
// count is decremented").
func (h *Handle[T]) Deref() (*Guard[T], bool) {
	target := h.Raw()
	if target == nil {
		return nil, false
	}
	r := h.RegionOf()
	if r == nil {
		return nil, false
	}
	r.IncPin()
	return &Guard[T]{ptr: (*T)(target), r: r}, true
}

// Guard is a scoped pin on a Handle[T]'s target: while held, the
// target's region will not be relocated out from under the raw *T.
type Guard[T any] struct {
	ptr      *T
	r        *region.Region
	released bool
}

// Get returns the guarded pointer. Valid only until Release.
func (g *Guard[T]) Get() *T { return g.ptr }

// Release unpins the target's region. Safe to call more than once.
func (g *Guard[T]) Release() {
	if g.released {
		return
	}
	g.r.DecPin()
	g.released = true
}

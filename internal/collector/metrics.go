package collector

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the collector's Prometheus instrumentation. Adopted
// from the wider retrieval pack's third-party stack (go.mod wires
// prometheus/client_golang) rather than a hand-rolled exporter; the
// teacher's own `internal/runtime/metrics_exporter.go` models the
// complementary concern of exposing a scrape endpoint, which
// `cmd/regiongc-demo` wires this registry into via promhttp.
//
// Worker.TriggerGC updates CyclesTotal, CycleDuration, SATBDrained and
// LiveRegions after each cycle. BytesReclaimed, RegionsRetired and
// RegionsEvacuated are registered, but nothing in this module
// increments them, so they stay at zero.
type Metrics struct {
	CyclesTotal      prometheus.Counter
	BytesReclaimed   prometheus.Counter
	RegionsRetired   prometheus.Counter
	RegionsEvacuated prometheus.Counter
	SATBDrained      prometheus.Counter
	CycleDuration    prometheus.Histogram
	LiveRegions      prometheus.Gauge
}

// NewMetrics constructs and registers a fresh Metrics set against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "regiongc",
			Name:      "cycles_total",
			Help:      "Total number of completed collection cycles.",
		}),
		BytesReclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "regiongc",
			Name:      "bytes_reclaimed_total",
			Help:      "Total bytes reclaimed by sweep across all cycles.",
		}),
		RegionsRetired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "regiongc",
			Name:      "regions_retired_total",
			Help:      "Total regions returned to the free-list manager.",
		}),
		RegionsEvacuated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "regiongc",
			Name:      "regions_evacuated_total",
			Help:      "Total regions that underwent evacuation.",
		}),
		SATBDrained: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "regiongc",
			Name:      "satb_entries_drained_total",
			Help:      "Total SATB entries drained at remark.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "regiongc",
			Name:      "cycle_duration_seconds",
			Help:      "Wall-clock duration of a full collection cycle.",
			Buckets:   prometheus.DefBuckets,
		}),
		LiveRegions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "regiongc",
			Name:      "live_regions",
			Help:      "Number of regions currently registered in the heap.",
		}),
	}
	reg.MustRegister(m.CyclesTotal, m.BytesReclaimed, m.RegionsRetired,
		m.RegionsEvacuated, m.SATBDrained, m.CycleDuration, m.LiveRegions)
	return m
}

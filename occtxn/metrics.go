package occtxn

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics realizes spec §6's observability surface: commit/abort
// counters by reason, max set sizes, insert-path fast/slow hits, and
// local-search hits per set. A Store owns one Metrics and threads it
// into every Txn it creates.
type Metrics struct {
	commits prometheus.Counter
	aborts  *prometheus.CounterVec

	maxReadSetSize      prometheus.Gauge
	maxAbsentSetSize    prometheus.Gauge
	maxWriteSetSize     prometheus.Gauge
	maxNodeScanSize     prometheus.Gauge
	maxAbsentRangeSize  prometheus.Gauge
	largeSetInstances   *prometheus.CounterVec
	insertFastPathHits  prometheus.Counter
	insertSlowPathHits  prometheus.Counter
	localSearchLookups  prometheus.Counter
	localWriteSetHits   prometheus.Counter
	localAbsentSetHits  prometheus.Counter

	// Running maxima backing the gauges above; prometheus.Gauge has no
	// "set if greater" primitive, so we track the high-water mark
	// ourselves and only push it to the gauge when it moves.
	curMaxRead, curMaxAbsent, curMaxWrite, curMaxNodeScan, curMaxAbsentRange int64
}

// NewMetrics registers a fresh set of collectors against reg. Pass
// prometheus.NewRegistry() for an isolated registry per Store, or
// prometheus.DefaultRegisterer to publish process-wide.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		commits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "occtxn_commits_total",
			Help: "Number of committed transactions.",
		}),
		aborts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "occtxn_aborts_total",
			Help: "Number of aborted transactions, by reason.",
		}, []string{"reason"}),
		maxReadSetSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "occtxn_max_read_set_size",
			Help: "Largest read set observed across any single index context.",
		}),
		maxAbsentSetSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "occtxn_max_absent_set_size",
			Help: "Largest absent set observed across any single index context.",
		}),
		maxWriteSetSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "occtxn_max_write_set_size",
			Help: "Largest write set observed across any single index context.",
		}),
		maxNodeScanSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "occtxn_max_node_scan_size",
			Help: "Largest node-scan set observed across any single index context.",
		}),
		maxAbsentRangeSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "occtxn_max_absent_range_set_size",
			Help: "Largest absent-range set observed across any single index context.",
		}),
		largeSetInstances: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "occtxn_large_set_instances_total",
			Help: "Count of per-index sets that spilled past their inline capacity, by set.",
		}, []string{"set"}),
		insertFastPathHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "occtxn_insert_fast_path_hits_total",
			Help: "insert_if_absent calls that succeeded on the first try.",
		}),
		insertSlowPathHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "occtxn_insert_slow_path_hits_total",
			Help: "insert_if_absent calls that lost the race and fell back to search.",
		}),
		localSearchLookups: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "occtxn_local_search_lookups_total",
			Help: "Get calls that attempted a local-set lookup before touching the index.",
		}),
		localWriteSetHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "occtxn_local_write_set_hits_total",
			Help: "Get calls satisfied from this transaction's own write set.",
		}),
		localAbsentSetHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "occtxn_local_absent_set_hits_total",
			Help: "Get calls satisfied from this transaction's own absent set.",
		}),
	}
	for _, c := range []prometheus.Collector{
		m.commits, m.aborts, m.maxReadSetSize, m.maxAbsentSetSize,
		m.maxWriteSetSize, m.maxNodeScanSize, m.maxAbsentRangeSize,
		m.largeSetInstances, m.insertFastPathHits, m.insertSlowPathHits,
		m.localSearchLookups, m.localWriteSetHits, m.localAbsentSetHits,
	} {
		if reg != nil {
			reg.MustRegister(c)
		}
	}
	return m
}

func (m *Metrics) observeCommit() { m.commits.Inc() }

func (m *Metrics) observeAbort(reason AbortReason) {
	m.aborts.WithLabelValues(reason.String()).Inc()
}

func (m *Metrics) observeContext(c *txnContext) {
	bumpMax(&m.curMaxRead, m.maxReadSetSize, int64(c.readSet.Len()))
	bumpMax(&m.curMaxAbsent, m.maxAbsentSetSize, int64(c.absentSet.Len()))
	bumpMax(&m.curMaxWrite, m.maxWriteSetSize, int64(c.writeSet.Len()))
	bumpMax(&m.curMaxNodeScan, m.maxNodeScanSize, int64(c.nodeScan.Len()))
	bumpMax(&m.curMaxAbsentRange, m.maxAbsentRangeSize, int64(len(c.absentRanges.Ranges())))

	if c.readSet.Large() {
		m.largeSetInstances.WithLabelValues("read_set").Inc()
	}
	if c.absentSet.Large() {
		m.largeSetInstances.WithLabelValues("absent_set").Inc()
	}
	if c.writeSet.Large() {
		m.largeSetInstances.WithLabelValues("write_set").Inc()
	}
	if c.nodeScan.Large() {
		m.largeSetInstances.WithLabelValues("node_scan").Inc()
	}
}

// bumpMax atomically raises *cur to v if v is larger, pushing the new
// high-water mark to the gauge.
func bumpMax(cur *int64, g prometheus.Gauge, v int64) {
	for {
		old := atomic.LoadInt64(cur)
		if v <= old {
			return
		}
		if atomic.CompareAndSwapInt64(cur, old, v) {
			g.Set(float64(v))
			return
		}
	}
}

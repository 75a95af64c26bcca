// Package metrics exposes Prometheus collectors for sqlstore's store, load
// and write-back paths, following the teacher's package-level-collectors
// convention (see gazette-core's metrics package): callers register
// Collectors() once at process startup with prometheus.MustRegister.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// StoreInsertTotal counts atom stores that performed the one-time
	// INSERT for their EID, split by node/link.
	StoreInsertTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "atomspace_store_insert_total",
		Help: "Cumulative number of atom INSERTs, by kind.",
	}, []string{"kind"})

	// StoreUpdateTotal counts atom stores that found an existing row and
	// performed an UPDATE instead.
	StoreUpdateTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "atomspace_store_update_total",
		Help: "Cumulative number of atom UPDATEs, by kind.",
	}, []string{"kind"})

	// StoreFailureTotal counts store attempts abandoned after a non-space
	// error.
	StoreFailureTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "atomspace_store_failure_total",
		Help: "Cumulative number of atom store failures.",
	})

	// LoadTotal counts getAtomByEID / getNode / getLink calls.
	LoadTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "atomspace_load_total",
		Help: "Cumulative number of single-atom loads.",
	})

	// IncomingSetFetchTotal counts getIncomingSet calls.
	IncomingSetFetchTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "atomspace_incoming_set_fetch_total",
		Help: "Cumulative number of incoming-set fetches.",
	})

	// IDBOccupancy tracks the identifier buffer's resident handle<->EID
	// pair count.
	IDBOccupancy = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "atomspace_idb_occupancy",
		Help: "Number of handle<->EID pairs currently resident in the identifier buffer.",
	})

	// QueueDepth tracks the number of items waiting in the write-back
	// queue; items a worker has already taken are not counted.
	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "atomspace_writeback_queue_depth",
		Help: "Number of store requests currently queued and not yet taken by a worker.",
	})

	// QueueBarrierDurationSeconds observes how long Barrier() blocked.
	QueueBarrierDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "atomspace_writeback_barrier_duration_seconds",
		Help:    "Time spent blocked inside Queue.Barrier.",
		Buckets: prometheus.DefBuckets,
	})
)

// Collectors returns every collector this package defines, for a single
// prometheus.MustRegister(metrics.Collectors()...) call at startup.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		StoreInsertTotal,
		StoreUpdateTotal,
		StoreFailureTotal,
		LoadTotal,
		IncomingSetFetchTotal,
		IDBOccupancy,
		QueueDepth,
		QueueBarrierDurationSeconds,
	}
}

package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Outcomes per run unit, partitioned by outcome code
	runOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fixturecast_run_outcomes_total",
			Help: "Total per-fixture outcomes emitted by scheduler runs",
		},
		[]string{"run", "outcome"},
	)

	// Remote platform calls, partitioned by operation and result
	remoteCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fixturecast_remote_calls_total",
			Help: "Total remote platform calls",
		},
		[]string{"operation", "result"},
	)

	// Lock acquisition attempts per run unit
	lockAcquisitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fixturecast_lock_acquisitions_total",
			Help: "Lock acquisition attempts partitioned by result",
		},
		[]string{"run", "result"},
	)
)

func observeRemoteCall(operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	remoteCallsTotal.WithLabelValues(operation, result).Inc()
}

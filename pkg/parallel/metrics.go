package parallel

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operation kinds used as the "kind" label and group label.
const (
	kindFetch = "fetch"
	kindTasks = "tasks"
)

var (
	operationsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "c8y_parallel_operations_total",
			Help: "Total number of started executor operations",
		},
		[]string{"kind"}, // "fetch", "tasks"
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "c8y_parallel_operation_duration_seconds",
			Help:    "Time from submission until the last task of an operation finished",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 300},
		},
		[]string{"kind"},
	)
)

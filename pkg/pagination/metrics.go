package pagination

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

var (
	pagesPlanned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "c8y_parallel_pages_planned_total",
			Help: "Total number of page tasks derived from collection counts",
		},
	)

	pagesRead = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "c8y_parallel_pages_read_total",
			Help: "Total number of page reads by outcome",
		},
		[]string{"outcome"}, // "success", "failure"
	)

	itemsRead = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "c8y_parallel_items_read_total",
			Help: "Total number of items pushed by page tasks",
		},
	)

	pageReadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "c8y_parallel_page_read_duration_seconds",
			Help:    "Duration of a single page read in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

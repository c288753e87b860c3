package pool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Task outcomes used as the "outcome" label.
const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
	outcomePanic   = "panic"
)

var (
	tasksSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "c8y_parallel_tasks_submitted_total",
			Help: "Total number of tasks submitted to a worker pool",
		},
		[]string{"pool"},
	)

	tasksCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "c8y_parallel_tasks_completed_total",
			Help: "Total number of finished tasks by outcome",
		},
		[]string{"pool", "outcome"}, // "success", "failure", "panic"
	)

	taskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "c8y_parallel_task_duration_seconds",
			Help:    "Task execution time in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"pool"},
	)

	workersBusy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "c8y_parallel_workers_busy",
			Help: "Number of workers currently executing a task",
		},
		[]string{"pool"},
	)
)

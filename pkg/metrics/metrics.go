// Package metrics exposes the Prometheus series of this module.
// All metrics are defined in their respective packages (pool, pagination,
// parallel, client, cache) to keep those packages self-contained.
//
// Pool Metrics (pkg/pool):
//   - c8y_parallel_tasks_submitted_total{pool} (Counter): Tasks accepted by a pool
//   - c8y_parallel_tasks_completed_total{pool, outcome} (Counter): Finished tasks by outcome (success, failure, panic)
//   - c8y_parallel_task_duration_seconds{pool} (Histogram): Task run time
//   - c8y_parallel_workers_busy{pool} (Gauge): Workers currently running a task
//
// Pagination Metrics (pkg/pagination):
//   - c8y_parallel_pages_planned_total (Counter): Pages derived from counts
//   - c8y_parallel_pages_read_total{outcome} (Counter): Page reads by outcome
//   - c8y_parallel_items_read_total (Counter): Items pushed to result channels
//   - c8y_parallel_page_read_duration_seconds (Histogram): Page read duration
//
// Executor Metrics (pkg/parallel):
//   - c8y_parallel_operations_total{kind} (Counter): Started fetch and task operations
//   - c8y_parallel_operation_duration_seconds{kind} (Histogram): Submission to last task
//
// Request Metrics (pkg/client):
//   - c8y_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - c8y_request_duration_seconds{endpoint} (Histogram): Request duration, retries included
//   - c8y_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//   - c8y_retries_total{error_class} (Counter): Retry attempts by error class
//   - c8y_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - c8y_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//   - c8y_count_lookups_total{source} (Counter): Collection counts served from cache or remote
//
// Cache Metrics (pkg/cache):
//   - c8y_cache_hits_total (Counter): Count cache hits
//   - c8y_cache_misses_total (Counter): Count cache misses
//   - c8y_cache_stored_bytes_total (Counter): Bytes written to the cache
//   - c8y_cache_errors_total{operation} (Counter): Cache operation errors
//
// Example Prometheus Queries:
//
//	# Page failure rate
//	rate(c8y_parallel_pages_read_total{outcome="failure"}[5m])
//	  / rate(c8y_parallel_pages_read_total[5m])
//
//	# Pool saturation
//	c8y_parallel_workers_busy / on(pool) group_left max_over_time(c8y_parallel_workers_busy[1h])
//
//	# P95 Request Latency
//	histogram_quantile(0.95, rate(c8y_request_duration_seconds_bucket[5m]))
//
//	# Count cache hit rate
//	sum(rate(c8y_cache_hits_total[5m])) /
//	(sum(rate(c8y_cache_hits_total[5m])) + sum(rate(c8y_cache_misses_total[5m])))
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/Sternrassler/c8y-parallel/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer every package registers its series with via
// promauto.
var Registry = prometheus.DefaultRegisterer

// Gatherer collects the series registered with Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the /metrics handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Server serves /metrics and /health until stopped.
type Server struct {
	srv      *http.Server
	listener net.Listener
	done     chan error
}

// Serve starts a metrics server on addr. Use ":0" for a random port.
func Serve(addr string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})

	s := &Server{
		srv:      &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		listener: ln,
		done:     make(chan error, 1),
	}

	logger := logging.NewLogger("metrics")
	logger.Info().Str("addr", ln.Addr().String()).Msg("Serving metrics")

	go func() {
		err := s.srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.done <- err
	}()
	return s, nil
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown metrics server: %w", err)
	}
	return <-s.done
}

package parallel

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/c8y-parallel/pkg/document"
	"github.com/Sternrassler/c8y-parallel/pkg/pagination"
	"github.com/Sternrassler/c8y-parallel/pkg/sink"
	"github.com/Sternrassler/c8y-parallel/pkg/stream"
)

// Strategy names how a collection is split into tasks.
type Strategy string

// StrategyPages splits a collection into fixed-size pages. It is the only
// supported strategy; any name starting with "page" ("page", "pages",
// "paged") selects it.
const StrategyPages Strategy = "pages"

// FetchOptions configures a paginated fetch.
type FetchOptions struct {
	// Strategy defaults to StrategyPages.
	Strategy Strategy

	// PageSize defaults to pagination.DefaultPageSize.
	PageSize int

	// Mode selects streaming (default) or batched pushes.
	Mode pagination.Mode

	// Filters are passed to Count and every page read.
	Filters pagination.Filters

	// Capacity overrides the channel bound in chunks; see
	// pagination.Config.Capacity.
	Capacity int

	// PageTimeout bounds a single page read (default: 60s).
	PageTimeout time.Duration
}

func (o FetchOptions) dispatcherConfig() pagination.Config {
	return pagination.Config{
		PageSize: o.PageSize,
		Mode:     o.Mode,
		Filters:  o.Filters,
		Timeout:  o.PageTimeout,
		Capacity: o.Capacity,
	}
}

// FetchPaginated counts source once, submits one read task per page and
// returns the live result channel without waiting for any page. The channel
// receives its sentinel after the last page task has finished.
//
// source must implement pagination.Counter and pagination.PageReader[T];
// otherwise a *pagination.CapabilityError is returned and nothing runs.
// Count errors are also returned synchronously.
func FetchPaginated[T any](ctx context.Context, e *Executor, source any, opts FetchOptions) (*stream.Channel[T], error) {
	d, err := prepare[T](source, opts)
	if err != nil {
		return nil, err
	}
	return fetch(ctx, e, d, nil)
}

// prepare validates the strategy and the capabilities of source.
func prepare[T any](source any, opts FetchOptions) (*pagination.Dispatcher[T], error) {
	if opts.Strategy != "" && !strings.HasPrefix(string(opts.Strategy), "page") {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedStrategy, opts.Strategy)
	}
	return pagination.NewDispatcher[T](source, opts.dispatcherConfig())
}

func fetch[T any](ctx context.Context, e *Executor, d *pagination.Dispatcher[T], onDone func()) (*stream.Channel[T], error) {
	p, err := e.openPool()
	if err != nil {
		return nil, err
	}

	plan, err := d.Plan(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	operationsStarted.WithLabelValues(kindFetch).Inc()

	out := stream.New[T](d.Capacity(plan))
	group := p.NewGroup(kindFetch)
	dispatchErr := d.Dispatch(ctx, group, out, plan)

	group.Supervise(func() {
		out.Close()
		operationDuration.WithLabelValues(kindFetch).Observe(time.Since(start).Seconds())

		chunks, items := out.Pushed()
		group.Logger().Info().
			Int("expected_total", plan.ExpectedTotal).
			Int("expected_pages", plan.ExpectedPages).
			Int("chunks", chunks).
			Int("items", items).
			Int("failed_pages", group.Failures()).
			Dur("duration", time.Since(start)).
			Msg("Fetch complete")

		if onDone != nil {
			onDone()
		}
	})

	if dispatchErr != nil {
		return nil, dispatchErr
	}
	return out, nil
}

// oneShot runs a batched fetch on a private executor that is released as
// soon as the last page task has finished. Capability errors are reported
// before the executor starts any worker.
func oneShot[T any](ctx context.Context, source any, workers int, opts FetchOptions) (*stream.Channel[T], error) {
	opts.Mode = pagination.ModeBatched
	d, err := prepare[T](source, opts)
	if err != nil {
		return nil, err
	}

	e := NewExecutor(Config{Name: "oneshot", Workers: workers})
	if err := e.Open(); err != nil {
		return nil, err
	}

	ch, err := fetch(ctx, e, d, e.release)
	if err != nil {
		e.Close()
		return nil, err
	}
	return ch, nil
}

// FetchAsList fetches the whole collection and returns every item.
func FetchAsList[T any](ctx context.Context, source any, workers int, opts FetchOptions) ([]T, error) {
	ch, err := oneShot[T](ctx, source, workers, opts)
	if err != nil {
		return nil, err
	}
	return sink.AsList(ctx, ch)
}

// FetchAsRecords fetches the whole collection and projects every item
// through mapping.
func FetchAsRecords[T any](ctx context.Context, source any, workers int, mapping document.Mapping, opts FetchOptions) ([]map[string]any, error) {
	ch, err := oneShot[T](ctx, source, workers, opts)
	if err != nil {
		return nil, err
	}
	return sink.AsRecords(ctx, ch, mapping)
}

// FetchAsTable fetches the whole collection and arranges it as a table.
func FetchAsTable[T any](ctx context.Context, source any, workers int, table sink.TableOptions, opts FetchOptions) (*sink.Table, error) {
	ch, err := oneShot[T](ctx, source, workers, opts)
	if err != nil {
		return nil, err
	}
	return sink.AsTable(ctx, ch, table)
}

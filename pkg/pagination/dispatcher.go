package pagination

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/c8y-parallel/pkg/logging"
	"github.com/Sternrassler/c8y-parallel/pkg/pool"
	"github.com/Sternrassler/c8y-parallel/pkg/stream"
	"github.com/rs/zerolog"
)

// DefaultPageSize is the number of items requested per page.
const DefaultPageSize = 1000

// Unbounded disables the channel capacity bound when used as Config.Capacity.
const Unbounded = -1

// progressEvery controls how often page progress is logged at info level.
const progressEvery = 50

// Mode selects how page results are pushed to the channel.
type Mode int

const (
	// ModeStreaming pushes every item individually, in page order.
	ModeStreaming Mode = iota

	// ModeBatched pushes each page as a single chunk.
	ModeBatched
)

func (m Mode) String() string {
	switch m {
	case ModeStreaming:
		return "streaming"
	case ModeBatched:
		return "batched"
	default:
		return "unknown"
	}
}

// ParseMode parses "streaming" or "batched". The empty string is streaming.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "streaming":
		return ModeStreaming, nil
	case "batched":
		return ModeBatched, nil
	default:
		return ModeStreaming, fmt.Errorf("unknown mode %q", s)
	}
}

// Config holds dispatcher configuration.
type Config struct {
	// PageSize is the number of items requested per page (default: 1000).
	PageSize int

	// Mode selects streaming or batched pushes.
	Mode Mode

	// Filters are passed to Count and, cloned, to every ReadPage.
	Filters Filters

	// Timeout bounds a single page read (default: 60s).
	Timeout time.Duration

	// Capacity overrides the derived channel bound, in chunks.
	// 0 derives it from the plan; Unbounded disables it.
	Capacity int
}

// DefaultConfig returns the default dispatcher configuration.
func DefaultConfig() Config {
	return Config{
		PageSize: DefaultPageSize,
		Mode:     ModeStreaming,
		Timeout:  60 * time.Second,
	}
}

// Plan is the outcome of the single count call of a fetch.
type Plan struct {
	ExpectedTotal int
	ExpectedPages int
	PageSize      int
	Filters       Filters
}

// ExpectedPages returns ceil(total/pageSize), or 0 when there is nothing to
// read.
func ExpectedPages(total, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

// Dispatcher fans the page reads of one collection out to a worker pool.
type Dispatcher[T any] struct {
	counter Counter
	reader  PageReader[T]
	source  string
	config  Config
	logger  zerolog.Logger
}

// NewDispatcher checks that source implements Counter and PageReader[T] and
// returns a dispatcher for it. A missing capability yields a
// *CapabilityError.
func NewDispatcher[T any](source any, config Config) (*Dispatcher[T], error) {
	name := fmt.Sprintf("%T", source)

	counter, ok := source.(Counter)
	if !ok {
		return nil, &CapabilityError{Operation: "Count", Source: name}
	}
	reader, ok := source.(PageReader[T])
	if !ok {
		return nil, &CapabilityError{Operation: "ReadPage", Source: name}
	}

	def := DefaultConfig()
	if config.PageSize <= 0 {
		config.PageSize = def.PageSize
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.Capacity < Unbounded {
		return nil, fmt.Errorf("invalid capacity %d", config.Capacity)
	}

	return &Dispatcher[T]{
		counter: counter,
		reader:  reader,
		source:  name,
		config:  config,
		logger:  logging.NewLogger("pagination").With().Str("source", name).Logger(),
	}, nil
}

// Config returns the effective configuration.
func (d *Dispatcher[T]) Config() Config {
	return d.config
}

// Plan calls Count once and derives the page count.
func (d *Dispatcher[T]) Plan(ctx context.Context) (Plan, error) {
	total, err := d.counter.Count(ctx, d.config.Filters.Clone())
	if err != nil {
		return Plan{}, fmt.Errorf("count %s: %w", d.source, err)
	}

	plan := Plan{
		ExpectedTotal: total,
		ExpectedPages: ExpectedPages(total, d.config.PageSize),
		PageSize:      d.config.PageSize,
		Filters:       d.config.Filters.Clone(),
	}
	pagesPlanned.Add(float64(plan.ExpectedPages))
	return plan, nil
}

// Capacity returns the channel bound for plan in chunks, or 0 for an
// unbounded channel. Streaming mode needs room for every expected item,
// batched mode for every expected page.
func (d *Dispatcher[T]) Capacity(plan Plan) int {
	switch {
	case d.config.Capacity == Unbounded:
		return 0
	case d.config.Capacity > 0:
		return d.config.Capacity
	case d.config.Mode == ModeBatched:
		return max(plan.ExpectedPages, 1)
	default:
		return max(plan.ExpectedTotal, 1)
	}
}

// Dispatch submits one read task per page of plan to group. It does not
// block on the reads; pair it with group.Supervise to close out.
func (d *Dispatcher[T]) Dispatch(ctx context.Context, group *pool.Group, out *stream.Channel[T], plan Plan) error {
	logger := group.Logger().With().
		Str("component", "pagination").
		Str("source", d.source).
		Logger()

	logger.Info().
		Int("expected_total", plan.ExpectedTotal).
		Int("expected_pages", plan.ExpectedPages).
		Int("page_size", plan.PageSize).
		Str("mode", d.config.Mode.String()).
		Msg("Starting parallel page fetch")

	var fetched atomic.Int64
	for page := 1; page <= plan.ExpectedPages; page++ {
		err := group.Go(func() error {
			err := d.fetchPage(ctx, out, plan, page, logger)
			if err == nil {
				if n := fetched.Add(1); n%progressEvery == 0 {
					logger.Info().
						Int64("fetched", n).
						Int("total", plan.ExpectedPages).
						Float64("progress_pct", float64(n)/float64(plan.ExpectedPages)*100).
						Msg("Fetch progress")
				}
			}
			return err
		})
		if err != nil {
			return fmt.Errorf("submit page %d: %w", page, err)
		}
	}
	return nil
}

// fetchPage reads one page and pushes its items. Errors are logged here and
// returned so the group counts the task as failed.
func (d *Dispatcher[T]) fetchPage(ctx context.Context, out *stream.Channel[T], plan Plan, page int, logger zerolog.Logger) error {
	start := time.Now()

	pageCtx, cancel := context.WithTimeout(ctx, d.config.Timeout)
	items, err := d.reader.ReadPage(pageCtx, page, plan.PageSize, plan.Filters.Clone())
	cancel()
	pageReadDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		pagesRead.WithLabelValues(outcomeFailure).Inc()
		logger.Warn().
			Err(err).
			Int("page", page).
			Int("page_size", plan.PageSize).
			Msg("Page fetch failed")
		return fmt.Errorf("page %d: %w", page, err)
	}

	if d.config.Mode == ModeBatched {
		err = out.PutBatch(ctx, items)
	} else {
		for _, item := range items {
			if err = out.Put(ctx, item); err != nil {
				break
			}
		}
	}
	if err != nil {
		pagesRead.WithLabelValues(outcomeFailure).Inc()
		logger.Warn().
			Err(err).
			Int("page", page).
			Msg("Page results dropped")
		return fmt.Errorf("page %d: push: %w", page, err)
	}

	pagesRead.WithLabelValues(outcomeSuccess).Inc()
	itemsRead.Add(float64(len(items)))
	logger.Debug().
		Int("page", page).
		Int("items", len(items)).
		Dur("duration", time.Since(start)).
		Msg("Page fetched")
	return nil
}

// Command c8y-fetch reads a paged platform collection in parallel and writes
// it as JSON lines or CSV.
//
// Usage:
//
//	c8y-fetch -config c8y.yaml -resource measurements -filter source=12345 \
//	    -field time=time -field temp=c8y_Temperature.T.value -format csv
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/Sternrassler/c8y-parallel/pkg/cache"
	"github.com/Sternrassler/c8y-parallel/pkg/client"
	"github.com/Sternrassler/c8y-parallel/pkg/config"
	"github.com/Sternrassler/c8y-parallel/pkg/document"
	"github.com/Sternrassler/c8y-parallel/pkg/logging"
	"github.com/Sternrassler/c8y-parallel/pkg/metrics"
	"github.com/Sternrassler/c8y-parallel/pkg/pagination"
	"github.com/Sternrassler/c8y-parallel/pkg/parallel"
	"github.com/Sternrassler/c8y-parallel/pkg/sink"
	"github.com/Sternrassler/c8y-parallel/pkg/stream"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type doc = map[string]any

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "c8y-fetch: %v\n", err)
		os.Exit(1)
	}
}

// pairs is a repeatable key=value flag.
type pairs [][2]string

func (p *pairs) String() string {
	parts := make([]string, len(*p))
	for i, kv := range *p {
		parts[i] = kv[0] + "=" + kv[1]
	}
	return strings.Join(parts, ",")
}

func (p *pairs) Set(v string) error {
	key, value, ok := strings.Cut(v, "=")
	if !ok || key == "" {
		return fmt.Errorf("expected key=value, got %q", v)
	}
	*p = append(*p, [2]string{key, value})
	return nil
}

// filters groups repeated keys into one multi-valued filter.
func (p pairs) filters() pagination.Filters {
	grouped := map[string][]string{}
	var order []string
	for _, kv := range p {
		if _, seen := grouped[kv[0]]; !seen {
			order = append(order, kv[0])
		}
		grouped[kv[0]] = append(grouped[kv[0]], kv[1])
	}

	f := pagination.Filters{}
	for _, key := range order {
		if vs := grouped[key]; len(vs) == 1 {
			f[key] = vs[0]
		} else {
			f[key] = vs
		}
	}
	return f
}

func (p pairs) mapping() document.Mapping {
	var m document.Mapping
	for _, kv := range p {
		m = m.With(kv[0], kv[1], nil)
	}
	return m
}

// options are the per-invocation settings that do not belong in a config file.
type options struct {
	configPath   string
	resource     string
	path         string
	itemsKey     string
	format       string
	refreshCount bool
	filters      pairs
	fields       pairs
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("c8y-fetch", flag.ContinueOnError)

	var opts options
	fs.StringVar(&opts.configPath, "config", os.Getenv("C8Y_CONFIG"), "Config file (.yaml, .toml or .json)")
	fs.StringVar(&opts.resource, "resource", "managedObjects", "Collection name: "+resourceNames())
	fs.StringVar(&opts.path, "path", "", "Collection path, overrides -resource")
	fs.StringVar(&opts.itemsKey, "items-key", "", "JSON key of the page items (with -path)")
	fs.StringVar(&opts.format, "format", "jsonl", "Output format: jsonl or csv")
	fs.BoolVar(&opts.refreshCount, "refresh-count", false, "Drop cached counts of the collection first")
	fs.Var(&opts.filters, "filter", "Query filter key=value (repeatable)")
	fs.Var(&opts.fields, "field", "Output field name=path (repeatable, required for csv)")
	workers := fs.Int("workers", 0, "Worker count (overrides config)")
	pageSize := fs.Int("page-size", 0, "Page size (overrides config)")
	mode := fs.String("mode", "", "streaming or batched (overrides config)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(opts.configPath, *workers, *pageSize, *mode)
	if err != nil {
		return err
	}
	if opts.format != "jsonl" && opts.format != "csv" {
		return fmt.Errorf("unknown format %q", opts.format)
	}
	if opts.format == "csv" && len(opts.fields) == 0 {
		return errors.New("csv output needs at least one -field")
	}

	logging.Setup(cfg.LoggingConfig())

	if cfg.MetricsAddr != "" {
		srv, err := metrics.Serve(cfg.MetricsAddr)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("Metrics server shutdown failed")
			}
		}()
	}

	clientCfg := cfg.ClientConfig()
	if rdb := connectRedis(ctx, cfg.Redis); rdb != nil {
		defer rdb.Close()
		clientCfg.Redis = rdb
	}

	c, err := client.New(clientCfg)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	defer c.Close()

	col, err := collection(c, opts)
	if err != nil {
		return err
	}

	if opts.refreshCount && c.Cache() != nil {
		n, err := c.Cache().Invalidate(ctx, cache.Key{Kind: cache.KindCount, Tenant: c.Tenant(), Endpoint: col.Path()})
		if err != nil {
			log.Warn().Err(err).Msg("Count cache invalidation failed")
		} else {
			log.Info().Int("keys", n).Msg("Dropped cached counts")
		}
	}

	fetchOpts := cfg.FetchOptions(opts.filters.filters())
	start := time.Now()
	var written int

	err = parallel.Run(ctx, cfg.ExecutorConfig(), func(ctx context.Context, e *parallel.Executor) error {
		ch, err := parallel.FetchPaginated[doc](ctx, e, col, fetchOpts)
		if err != nil {
			return err
		}

		switch opts.format {
		case "csv":
			table, err := sink.AsTable(ctx, ch, sink.TableOptions{Mapping: opts.fields.mapping()})
			if err != nil {
				return err
			}
			written = table.Rows()
			return table.WriteCSV(stdout)
		default:
			written, err = writeJSONLines(ctx, ch, opts.fields.mapping(), stdout)
			return err
		}
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("path", col.Path()).
		Int("items", written).
		Dur("duration", time.Since(start)).
		Msg("Fetch finished")
	return nil
}

func loadConfig(path string, workers, pageSize int, mode string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if workers > 0 {
		cfg.Fetch.Workers = workers
	}
	if pageSize > 0 {
		cfg.Fetch.PageSize = pageSize
	}
	if mode != "" {
		cfg.Fetch.Mode = mode
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// connectRedis returns nil when no address is configured or the server is
// unreachable; counts are then always fetched remotely.
func connectRedis(ctx context.Context, cfg config.RedisConfig) *redis.Client {
	if cfg.Addr == "" {
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", cfg.Addr).Msg("Redis unavailable, count cache disabled")
		rdb.Close()
		return nil
	}
	log.Debug().Str("addr", cfg.Addr).Msg("Connected to Redis")
	return rdb
}

func collection(c *client.Client, opts options) (*client.Collection, error) {
	if opts.path == "" {
		return c.Resource(opts.resource)
	}
	itemsKey := opts.itemsKey
	if itemsKey == "" {
		// "/inventory/managedObjects" carries "managedObjects"
		itemsKey = opts.path[strings.LastIndex(opts.path, "/")+1:]
	}
	return c.Collection(opts.path, itemsKey), nil
}

// writeJSONLines writes items as they arrive, projected through mapping when
// it is non-empty.
func writeJSONLines(ctx context.Context, ch *stream.Channel[doc], mapping document.Mapping, w io.Writer) (int, error) {
	enc := json.NewEncoder(w)
	n := 0
	var writeErr error

	err := ch.Drain(ctx, func(chunk []doc) {
		for _, item := range chunk {
			if writeErr != nil {
				return
			}
			var v any = item
			if len(mapping) > 0 {
				v = mapping.Record(item)
			}
			if writeErr = enc.Encode(v); writeErr == nil {
				n++
			}
		}
	})
	if writeErr != nil {
		return n, fmt.Errorf("write: %w", writeErr)
	}
	return n, err
}

func resourceNames() string {
	names := make([]string, 0, len(client.Endpoints))
	for name := range client.Endpoints {
		names = append(names, name)
	}
	slices.Sort(names)
	return strings.Join(names, ", ")
}

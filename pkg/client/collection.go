package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/Sternrassler/c8y-parallel/pkg/cache"
	"github.com/Sternrassler/c8y-parallel/pkg/pagination"
)

// Endpoint describes a well-known collection: its path and the JSON key that
// holds the page items.
type Endpoint struct {
	Path     string
	ItemsKey string
}

// Endpoints lists the standard platform collections by resource name.
var Endpoints = map[string]Endpoint{
	"managedObjects": {Path: "/inventory/managedObjects", ItemsKey: "managedObjects"},
	"measurements":   {Path: "/measurement/measurements", ItemsKey: "measurements"},
	"events":         {Path: "/event/events", ItemsKey: "events"},
	"alarms":         {Path: "/alarm/alarms", ItemsKey: "alarms"},
	"operations":     {Path: "/devicecontrol/operations", ItemsKey: "operations"},
	"auditRecords":   {Path: "/audit/auditRecords", ItemsKey: "auditRecords"},
}

// ErrUnknownResource is returned by Resource for names not in Endpoints.
var ErrUnknownResource = errors.New("unknown resource")

// Collection is a paged REST collection. It satisfies
// pagination.Collection[map[string]any].
type Collection struct {
	client   *Client
	path     string
	itemsKey string
}

var _ pagination.Collection[map[string]any] = (*Collection)(nil)

// Collection returns the collection at path whose pages carry their items
// under itemsKey.
func (c *Client) Collection(path, itemsKey string) *Collection {
	return &Collection{client: c, path: path, itemsKey: itemsKey}
}

// Resource returns a standard collection by name, e.g. "measurements".
func (c *Client) Resource(name string) (*Collection, error) {
	ep, ok := Endpoints[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownResource, name)
	}
	return c.Collection(ep.Path, ep.ItemsKey), nil
}

// Path returns the collection path.
func (col *Collection) Path() string { return col.path }

// String names the collection in logs and capability errors.
func (col *Collection) String() string { return col.path }

type statistics struct {
	TotalPages *int `json:"totalPages"`
}

type countPage struct {
	Statistics *statistics `json:"statistics"`
}

// Count returns the number of items matching filters. With a page size of
// one the platform's totalPages equals the item count.
//
// Counts are served from the cache when one is configured; cache failures
// only cost the shortcut.
func (col *Collection) Count(ctx context.Context, filters pagination.Filters) (int, error) {
	query := filters.Values()
	key := cache.Key{Tenant: col.client.Tenant(), Endpoint: col.path, Query: query}

	if mgr := col.client.Cache(); mgr != nil {
		n, err := mgr.GetCount(ctx, key)
		if err == nil {
			countCacheTotal.WithLabelValues("cache").Inc()
			return n, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			col.client.logger.Warn().Err(err).Str("endpoint", col.path).Msg("Count cache get error")
		}
	}

	remote := cloneValues(query)
	remote.Set("pageSize", "1")
	remote.Set("withTotalPages", "true")

	var page countPage
	headers, err := col.client.GetJSON(ctx, col.path, remote, &page)
	if err != nil {
		return 0, err
	}
	if page.Statistics == nil || page.Statistics.TotalPages == nil {
		return 0, fmt.Errorf("%s: %w", col.path, ErrNoStatistics)
	}
	n := *page.Statistics.TotalPages
	countCacheTotal.WithLabelValues("remote").Inc()

	if mgr := col.client.Cache(); mgr != nil {
		ttl := cache.TTLFromHeaders(headers, col.client.config.CountTTL)
		if err := mgr.SetCount(ctx, key, n, ttl); err != nil {
			col.client.logger.Warn().Err(err).Str("endpoint", col.path).Msg("Failed to cache count")
		}
	}
	return n, nil
}

// ReadPage returns the items of the 1-based page pageNumber.
func (col *Collection) ReadPage(ctx context.Context, pageNumber, pageSize int, filters pagination.Filters) ([]map[string]any, error) {
	query := filters.Values()
	query.Set("pageSize", strconv.Itoa(pageSize))
	query.Set("currentPage", strconv.Itoa(pageNumber))

	var page map[string]json.RawMessage
	if _, err := col.client.GetJSON(ctx, col.path, query, &page); err != nil {
		return nil, err
	}

	raw, ok := page[col.itemsKey]
	if !ok {
		return nil, fmt.Errorf("%s page %d: missing %q", col.path, pageNumber, col.itemsKey)
	}
	var items []map[string]any
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%s page %d: decode %q: %w", col.path, pageNumber, col.itemsKey, err)
	}
	if items == nil {
		items = []map[string]any{}
	}
	return items, nil
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}

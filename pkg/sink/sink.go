// Package sink drains result channels into lists, path-mapped records or
// tables.
//
// Every sink consumes its channel up to the end-of-stream sentinel before it
// returns. Item order reflects arrival order, not page order.
package sink

import (
	"context"
	"fmt"

	"github.com/Sternrassler/c8y-parallel/pkg/document"
	"github.com/Sternrassler/c8y-parallel/pkg/stream"
)

// AsList flattens every chunk of ch into one slice.
func AsList[T any](ctx context.Context, ch *stream.Channel[T]) ([]T, error) {
	var items []T
	err := ch.Drain(ctx, func(chunk []T) {
		items = append(items, chunk...)
	})
	if err != nil {
		return items, fmt.Errorf("drain: %w", err)
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// AsRecords drains ch and projects every item through mapping.
func AsRecords[T any](ctx context.Context, ch *stream.Channel[T], mapping document.Mapping) ([]map[string]any, error) {
	items, err := AsList(ctx, ch)
	if err != nil {
		return nil, err
	}
	return Records(items, mapping), nil
}

// AsTable drains ch and arranges the items as a table. See NewTable.
func AsTable[T any](ctx context.Context, ch *stream.Channel[T], opts TableOptions) (*Table, error) {
	items, err := AsList(ctx, ch)
	if err != nil {
		return nil, err
	}
	return NewTable(items, opts)
}

// Records projects every item through mapping. Paths missing from an item
// yield the field's default.
func Records[T any](items []T, mapping document.Mapping) []map[string]any {
	records := make([]map[string]any, len(items))
	for i, item := range items {
		records[i] = mapping.Record(any(item))
	}
	return records
}

// Package testutil provides fakes and a mock REST server for tests.
package testutil

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/c8y-parallel/pkg/pagination"
)

// Document is a raw collection item.
type Document = map[string]any

// Documents returns n synthetic managed-object documents with ids 0..n-1.
func Documents(n int) []Document {
	docs := make([]Document, n)
	for i := range n {
		docs[i] = NewDocument(i)
	}
	return docs
}

// NewDocument returns a synthetic document with a flat id, a camelCase
// timestamp and a nested measurement fragment.
func NewDocument(id int) Document {
	return Document{
		"id":          id,
		"name":        fmt.Sprintf("device-%d", id),
		"lastUpdated": fmt.Sprintf("2024-01-01T00:00:%02dZ", id%60),
		"c8y_Temperature": map[string]any{
			"T": map[string]any{"value": float64(id) / 2, "unit": "C"},
		},
	}
}

// FakeCollection is an in-memory paged collection implementing
// pagination.Collection[Document].
type FakeCollection struct {
	// Docs backs Count and ReadPage.
	Docs []Document

	// Total overrides the count when positive.
	Total int

	// FullPages makes every page return exactly pageSize synthetic items,
	// regardless of how many documents remain.
	FullPages bool

	// FailPages maps page numbers to the error their read returns.
	FailPages map[int]error

	// CountErr is returned by Count when set.
	CountErr error

	// Delay is applied to every page read; it honours ctx.
	Delay time.Duration

	countCalls atomic.Int32
	mu         sync.Mutex
	pages      []int
	filters    []pagination.Filters
}

var _ pagination.Collection[Document] = (*FakeCollection)(nil)

// Count returns Total, or the number of documents.
func (c *FakeCollection) Count(_ context.Context, filters pagination.Filters) (int, error) {
	c.countCalls.Add(1)
	if c.CountErr != nil {
		return 0, c.CountErr
	}
	if c.Total > 0 {
		return c.Total, nil
	}
	return len(c.Docs), nil
}

// ReadPage returns one page of documents.
func (c *FakeCollection) ReadPage(ctx context.Context, pageNumber, pageSize int, filters pagination.Filters) ([]Document, error) {
	c.mu.Lock()
	c.pages = append(c.pages, pageNumber)
	c.filters = append(c.filters, filters)
	c.mu.Unlock()

	if c.Delay > 0 {
		select {
		case <-time.After(c.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err, ok := c.FailPages[pageNumber]; ok {
		return nil, err
	}

	first := (pageNumber - 1) * pageSize
	if c.FullPages {
		page := make([]Document, pageSize)
		for i := range page {
			page[i] = NewDocument(first + i)
		}
		return page, nil
	}

	if first >= len(c.Docs) {
		return []Document{}, nil
	}
	last := min(first+pageSize, len(c.Docs))
	return slices.Clone(c.Docs[first:last]), nil
}

// CountCalls returns how often Count was called.
func (c *FakeCollection) CountCalls() int {
	return int(c.countCalls.Load())
}

// PagesRead returns the requested page numbers in ascending order.
func (c *FakeCollection) PagesRead() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	pages := slices.Clone(c.pages)
	slices.Sort(pages)
	return pages
}

// FiltersSeen returns the filter maps handed to ReadPage.
func (c *FakeCollection) FiltersSeen() []pagination.Filters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.filters)
}

// CountOnly implements Counter but not PageReader.
type CountOnly struct{ N int }

// Count returns N.
func (c CountOnly) Count(context.Context, pagination.Filters) (int, error) {
	return c.N, nil
}

// IDs extracts the "id" field of every document.
func IDs(docs []Document) []int {
	ids := make([]int, 0, len(docs))
	for _, d := range docs {
		switch id := d["id"].(type) {
		case int:
			ids = append(ids, id)
		case float64:
			// decoded JSON
			ids = append(ids, int(id))
		}
	}
	return ids
}

package pagination

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/url"
	"time"
)

// ErrUnsupported is the sentinel wrapped by CapabilityError.
var ErrUnsupported = errors.New("operation not supported")

// Filters are the query parameters shared by the count and every page read.
// Page size and page number are never part of the filters.
type Filters map[string]any

// Clone returns a shallow copy so page tasks never share one mutable map.
func (f Filters) Clone() Filters {
	if f == nil {
		return Filters{}
	}
	return maps.Clone(f)
}

// Values renders the filters as URL query values. Slices become repeated
// parameters, times are formatted as RFC 3339 and nil values are skipped.
func (f Filters) Values() url.Values {
	v := url.Values{}
	for key, raw := range f {
		switch val := raw.(type) {
		case nil:
		case string:
			v.Add(key, val)
		case []string:
			for _, s := range val {
				v.Add(key, s)
			}
		case []any:
			for _, item := range val {
				v.Add(key, fmt.Sprint(item))
			}
		case time.Time:
			v.Add(key, val.UTC().Format(time.RFC3339Nano))
		default:
			v.Add(key, fmt.Sprint(val))
		}
	}
	return v
}

// Counter reports the number of items matching filters. The result may be
// stale relative to subsequent page reads.
type Counter interface {
	Count(ctx context.Context, filters Filters) (int, error)
}

// PageReader returns up to pageSize items of the 1-based page pageNumber.
type PageReader[T any] interface {
	ReadPage(ctx context.Context, pageNumber, pageSize int, filters Filters) ([]T, error)
}

// Collection is a source exposing both capabilities.
type Collection[T any] interface {
	Counter
	PageReader[T]
}

// CapabilityError reports that a source lacks an operation required for a
// paginated fetch. It is returned before anything is dispatched.
type CapabilityError struct {
	Operation string // "Count" or "ReadPage"
	Source    string // dynamic type of the source
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%s does not support %s", e.Source, e.Operation)
}

// Unwrap returns ErrUnsupported.
func (e *CapabilityError) Unwrap() error {
	return ErrUnsupported
}

// IsCapabilityError reports whether err is or wraps a CapabilityError.
func IsCapabilityError(err error) bool {
	var capErr *CapabilityError
	return errors.As(err, &capErr)
}

// Package document resolves dotted paths against nested JSON documents.
//
// Documents are the decoded form of platform JSON (map[string]any). A path
// such as "c8y_Position.lat" is resolved segment by segment. For every segment
// the exact key is tried first, then its camelCase form, so callers may write
// Go-style snake_case names ("last_updated") for platform fields
// ("lastUpdated").
package document

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrPathNotFound is returned by MustGet when a path does not resolve.
var ErrPathNotFound = errors.New("path not found")

// Document is a decoded JSON object.
type Document = map[string]any

// Lookup resolves path against doc. The second return value reports whether
// every segment matched.
func Lookup(doc any, path string) (any, bool) {
	current := doc
	for _, key := range strings.Split(path, ".") {
		v, ok := field(current, key)
		if !ok {
			v, ok = field(current, CamelCase(key))
		}
		if !ok {
			return nil, false
		}
		current = v
	}
	return current, true
}

// field looks key up in obj. Besides map[string]any it accepts any map with
// a string key kind, such as named document types.
func field(obj any, key string) (any, bool) {
	if m, ok := obj.(map[string]any); ok {
		v, ok := m[key]
		return v, ok
	}
	if obj == nil {
		return nil, false
	}
	rv := reflect.ValueOf(obj)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	v := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
	if !v.IsValid() {
		return nil, false
	}
	return v.Interface(), true
}

// Get resolves path against doc and returns def if it does not resolve.
func Get(doc any, path string, def any) any {
	if v, ok := Lookup(doc, path); ok {
		return v
	}
	return def
}

// MustGet resolves path against doc and fails with ErrPathNotFound if it
// does not resolve.
func MustGet(doc any, path string) (any, error) {
	v, ok := Lookup(doc, path)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPathNotFound, path)
	}
	return v, nil
}

// CamelCase converts a snake_case name to the camelCase form used by the
// platform ("last_updated" -> "lastUpdated"). Names without an inner
// underscore are returned unchanged.
func CamelCase(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool { return r == '_' })
	if len(parts) <= 1 {
		return name
	}
	// cases.Caser is stateful, one per call.
	title := cases.Title(language.Und)
	var b strings.Builder
	b.WriteString(parts[0])
	for _, p := range parts[1:] {
		b.WriteString(title.String(p))
	}
	return b.String()
}

package document

// Field is one named projection of a document: the dotted path to read and
// the value to use when the path is absent.
type Field struct {
	Name    string
	Path    string
	Default any
}

// Mapping is an ordered list of fields. The order defines the column order of
// tables and tuples built from it.
type Mapping []Field

// MapPaths builds a Mapping from alternating name/path pairs with nil
// defaults. A trailing unpaired name is ignored.
func MapPaths(pairs ...string) Mapping {
	m := make(Mapping, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		m = append(m, Field{Name: pairs[i], Path: pairs[i+1]})
	}
	return m
}

// With returns a copy of m with one more field appended.
func (m Mapping) With(name, path string, def any) Mapping {
	out := make(Mapping, len(m), len(m)+1)
	copy(out, m)
	return append(out, Field{Name: name, Path: path, Default: def})
}

// Names returns the field names in order.
func (m Mapping) Names() []string {
	names := make([]string, len(m))
	for i, f := range m {
		names[i] = f.Name
	}
	return names
}

// Record projects doc into a map keyed by field name.
func (m Mapping) Record(doc any) map[string]any {
	rec := make(map[string]any, len(m))
	for _, f := range m {
		rec[f.Name] = Get(doc, f.Path, f.Default)
	}
	return rec
}

// Tuple projects doc into a slice ordered like m.
func (m Mapping) Tuple(doc any) []any {
	tuple := make([]any, len(m))
	for i, f := range m {
		tuple[i] = Get(doc, f.Path, f.Default)
	}
	return tuple
}

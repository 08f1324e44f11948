package table

import "sort"

// DataRow is a named view on a set of values, such as the current result row
// or the report parameters.
type DataRow interface {
	// Names returns the names known to this row.
	Names() []string
	// Get returns the value for name and whether the name is known.
	Get(name string) (any, bool)
}

// StaticDataRow is a DataRow backed by a map. Names are reported in sorted order.
type StaticDataRow struct {
	values map[string]any
	names  []string
}

// NewStaticDataRow copies values into a new row.
func NewStaticDataRow(values map[string]any) *StaticDataRow {
	r := &StaticDataRow{values: make(map[string]any, len(values))}
	for k, v := range values {
		r.values[k] = v
		r.names = append(r.names, k)
	}
	sort.Strings(r.names)
	return r
}

func (r *StaticDataRow) Names() []string {
	return append([]string(nil), r.names...)
}

func (r *StaticDataRow) Get(name string) (any, bool) {
	v, ok := r.values[name]
	return v, ok
}

// Map returns a copy of the row's values.
func (r *StaticDataRow) Map() map[string]any {
	out := make(map[string]any, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// EmptyDataRow has no names.
var EmptyDataRow DataRow = NewStaticDataRow(nil)

// Merge returns a row holding the values of all rows; later rows win.
func Merge(rows ...DataRow) *StaticDataRow {
	values := make(map[string]any)
	for _, row := range rows {
		if row == nil {
			continue
		}
		for _, name := range row.Names() {
			if v, ok := row.Get(name); ok {
				values[name] = v
			}
		}
	}
	return NewStaticDataRow(values)
}

// ToMap copies a DataRow into a map.
func ToMap(row DataRow) map[string]any {
	out := make(map[string]any)
	if row == nil {
		return out
	}
	for _, name := range row.Names() {
		if v, ok := row.Get(name); ok {
			out[name] = v
		}
	}
	return out
}

// Copyright 2024 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

// Package table holds the tabular values exchanged between data factories,
// parameters and the binding engine.
package table

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ColumnType is the declared type of a column.
type ColumnType string

const (
	TypeAny    ColumnType = "any"
	TypeString ColumnType = "string"
	TypeInt    ColumnType = "int"
	TypeFloat  ColumnType = "float"
	TypeBool   ColumnType = "bool"
	TypeTime   ColumnType = "time"
)

// TableModel is an immutable-by-convention result set. Rows are stored
// row-major and always have ColumnCount values.
type TableModel struct {
	columns []string
	types   []ColumnType
	index   map[string]int
	rows    [][]any
}

// NewTableModel creates an empty table. Missing types default to TypeAny.
func NewTableModel(columns []string, types []ColumnType) *TableModel {
	t := &TableModel{
		columns: append([]string(nil), columns...),
		types:   make([]ColumnType, len(columns)),
		index:   make(map[string]int, len(columns)),
	}
	for i, name := range columns {
		t.types[i] = TypeAny
		if i < len(types) && types[i] != "" {
			t.types[i] = types[i]
		}
		if _, dup := t.index[name]; !dup {
			t.index[name] = i
		}
	}
	return t
}

// AddRow appends a row. The number of values must match the column count.
func (t *TableModel) AddRow(values ...any) error {
	if len(values) != len(t.columns) {
		return fmt.Errorf("row has %d values, table has %d columns", len(values), len(t.columns))
	}
	t.rows = append(t.rows, append([]any(nil), values...))
	return nil
}

// AddColumn appends a column. values must hold one value per existing row.
func (t *TableModel) AddColumn(name string, typ ColumnType, values []any) error {
	if _, exists := t.index[name]; exists {
		return fmt.Errorf("column %q already exists", name)
	}
	if len(values) != len(t.rows) {
		return fmt.Errorf("column %q has %d values, table has %d rows", name, len(values), len(t.rows))
	}
	if typ == "" {
		typ = TypeAny
	}
	t.index[name] = len(t.columns)
	t.columns = append(t.columns, name)
	t.types = append(t.types, typ)
	for i := range t.rows {
		t.rows[i] = append(t.rows[i], values[i])
	}
	return nil
}

func (t *TableModel) RowCount() int { return len(t.rows) }
func (t *TableModel) ColumnCount() int { return len(t.columns) }

// Columns returns a copy of the column names.
func (t *TableModel) Columns() []string {
	return append([]string(nil), t.columns...)
}

func (t *TableModel) ColumnName(col int) string { return t.columns[col] }
func (t *TableModel) ColumnType(col int) ColumnType { return t.types[col] }

// ColumnIndex returns the index of the named column or -1.
func (t *TableModel) ColumnIndex(name string) int {
	if i, ok := t.index[name]; ok {
		return i
	}
	return -1
}

// ValueAt returns the value at row/col.
func (t *TableModel) ValueAt(row, col int) any {
	return t.rows[row][col]
}

// Value returns the value of the named column in a row.
func (t *TableModel) Value(row int, column string) (any, bool) {
	i, ok := t.index[column]
	if !ok || row < 0 || row >= len(t.rows) {
		return nil, false
	}
	return t.rows[row][i], true
}

// Row returns a DataRow view on one row.
func (t *TableModel) Row(row int) DataRow {
	return &tableRow{table: t, row: row}
}

// Copy returns a table that shares no rows with t.
func (t *TableModel) Copy() *TableModel {
	return t.Limit(0)
}

// Limit returns a copy holding at most n rows. n <= 0 copies every row.
func (t *TableModel) Limit(n int) *TableModel {
	out := NewTableModel(t.columns, t.types)
	rows := t.rows
	if n > 0 && n < len(rows) {
		rows = rows[:n]
	}
	out.rows = make([][]any, len(rows))
	for i, r := range rows {
		out.rows[i] = append([]any(nil), r...)
	}
	return out
}

type tableRow struct {
	table *TableModel
	row   int
}

func (r *tableRow) Names() []string { return r.table.Columns() }

func (r *tableRow) Get(name string) (any, bool) {
	return r.table.Value(r.row, name)
}

// InferColumnType guesses the narrowest type that fits every non-empty value.
func InferColumnType(values []string) ColumnType {
	typ := ColumnType("")
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		vt := inferValueType(v)
		switch {
		case typ == "":
			typ = vt
		case typ == vt:
		case (typ == TypeInt && vt == TypeFloat) || (typ == TypeFloat && vt == TypeInt):
			typ = TypeFloat
		default:
			return TypeString
		}
	}
	if typ == "" {
		return TypeString
	}
	return typ
}

func inferValueType(v string) ColumnType {
	if _, err := strconv.ParseInt(v, 10, 64); err == nil {
		return TypeInt
	}
	if _, err := strconv.ParseFloat(v, 64); err == nil {
		return TypeFloat
	}
	if _, err := strconv.ParseBool(v); err == nil {
		return TypeBool
	}
	if _, err := ParseTime(v); err == nil {
		return TypeTime
	}
	return TypeString
}

// ConvertString converts a raw cell value to typ. Empty strings become nil.
func ConvertString(v string, typ ColumnType) (any, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	switch typ {
	case TypeInt:
		return strconv.ParseInt(v, 10, 64)
	case TypeFloat:
		return strconv.ParseFloat(v, 64)
	case TypeBool:
		return strconv.ParseBool(v)
	case TypeTime:
		return ParseTime(v)
	default:
		return v, nil
	}
}

// WidenNumber returns integer values as int64 and floating point values as
// float64. Other values are returned unchanged.
func WidenNumber(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		if n > math.MaxInt64 {
			return float64(n)
		}
		return int64(n)
	case float32:
		return float64(n)
	}
	return v
}

var timeLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

// ParseTime accepts RFC 3339, "2006-01-02 15:04:05" and "2006-01-02".
func ParseTime(v string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as time", v)
}

package engine

import (
	"reflect"
	"time"

	"github.com/pingcap/report-engine/pkg/model"
	"github.com/pingcap/report-engine/pkg/reporterr"
	"github.com/pingcap/report-engine/pkg/table"
)

// GroupInstance is one occurrence of a group: a run of consecutive rows
// sharing the values of the group's effective fields.
type GroupInstance struct {
	Group string `json:"group"`
	// Fields are the effective fields of the group and Key their values.
	Fields []string `json:"fields"`
	Key    []any    `json:"key"`
	// Start and End delimit the rows of the instance, End exclusive.
	Start    int              `json:"start"`
	End      int              `json:"end"`
	Children []*GroupInstance `json:"children,omitempty"`
}

// Rows returns the number of rows in the instance.
func (g *GroupInstance) Rows() int { return g.End - g.Start }

// BuildGroups partitions the rows of data by groups, outermost first. A new
// instance starts whenever one of the effective field values changes from
// the previous row; rows are not sorted.
func BuildGroups(groups []*model.Group, data *table.TableModel) ([]*GroupInstance, error) {
	if len(groups) == 0 {
		return nil, nil
	}
	cols := make([][]int, len(groups))
	for i, g := range groups {
		for _, f := range g.EffectiveFields() {
			idx := data.ColumnIndex(f)
			if idx < 0 {
				return nil, reporterr.Newf(reporterr.KindInvalidState, "group "+g.Name(), "field %s is not a column of the query", f)
			}
			cols[i] = append(cols[i], idx)
		}
	}
	return partition(groups, cols, data, 0, 0, data.RowCount()), nil
}

func partition(groups []*model.Group, cols [][]int, data *table.TableModel, level, start, end int) []*GroupInstance {
	if level >= len(groups) || start >= end {
		return nil
	}
	g := groups[level]
	fields := g.EffectiveFields()
	var out []*GroupInstance
	var cur *GroupInstance
	for row := start; row < end; row++ {
		if cur == nil || !sameKey(data, cols[level], cur.Start, row) {
			cur = &GroupInstance{Group: g.Name(), Fields: fields, Key: key(data, cols[level], row), Start: row}
			out = append(out, cur)
		}
		cur.End = row + 1
	}
	for _, inst := range out {
		inst.Children = partition(groups, cols, data, level+1, inst.Start, inst.End)
	}
	return out
}

func key(data *table.TableModel, cols []int, row int) []any {
	k := make([]any, len(cols))
	for i, c := range cols {
		k[i] = data.ValueAt(row, c)
	}
	return k
}

func sameKey(data *table.TableModel, cols []int, a, b int) bool {
	for _, c := range cols {
		if !equalValue(data.ValueAt(a, c), data.ValueAt(b, c)) {
			return false
		}
	}
	return true
}

func equalValue(a, b any) bool {
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}

package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/pingcap/report-engine/pkg/model"
	"github.com/pingcap/report-engine/pkg/reporterr"
	"github.com/pingcap/report-engine/pkg/table"
)

// Pivot is a crosstab evaluated over a table.
type Pivot struct {
	Name         string   `json:"name"`
	RowFields    []string `json:"row_fields"`
	ColumnFields []string `json:"column_fields"`
	Measures     []string `json:"measures"`
	// RowKeys and ColumnKeys are the distinct dimension values in encounter
	// order.
	RowKeys    [][]any `json:"row_keys"`
	ColumnKeys [][]any `json:"column_keys"`
	// Cells is indexed by row key, column key and measure. Cells without
	// rows hold nil.
	Cells [][][]any `json:"cells"`
}

// Value returns a cell value.
func (p *Pivot) Value(rowKey, colKey, measure int) any {
	return p.Cells[rowKey][colKey][measure]
}

// BuildPivot aggregates data into the cells of ct.
func BuildPivot(ct *model.CrosstabElement, data *table.TableModel) (*Pivot, error) {
	op := "crosstab " + ct.Name()
	p := &Pivot{Name: ct.Name()}
	rowCols, err := dimensionColumns(data, ct.RowDimensions, &p.RowFields)
	if err != nil {
		return nil, reporterr.New(reporterr.KindInvalidState, op, err)
	}
	colCols, err := dimensionColumns(data, ct.ColumnDimensions, &p.ColumnFields)
	if err != nil {
		return nil, reporterr.New(reporterr.KindInvalidState, op, err)
	}
	measureCols := make([]int, len(ct.Measures))
	for i, m := range ct.Measures {
		measureCols[i] = -1
		if m.Field != "" {
			if measureCols[i] = data.ColumnIndex(m.Field); measureCols[i] < 0 {
				return nil, reporterr.Newf(reporterr.KindInvalidState, op, "measure field %s is not a column", m.Field)
			}
		} else if m.Aggregation != model.AggregateCount {
			return nil, reporterr.Newf(reporterr.KindInvalidState, op, "measure %s needs a field", m.Label())
		}
		p.Measures = append(p.Measures, m.Label())
	}

	rowIndex := make(map[string]int)
	colIndex := make(map[string]int)
	type cellKey struct{ r, c int }
	cellRows := make(map[cellKey][]int)
	for row := 0; row < data.RowCount(); row++ {
		rk := key(data, rowCols, row)
		ck := key(data, colCols, row)
		ri := indexOf(rowIndex, &p.RowKeys, rk)
		ci := indexOf(colIndex, &p.ColumnKeys, ck)
		cellRows[cellKey{ri, ci}] = append(cellRows[cellKey{ri, ci}], row)
	}

	p.Cells = make([][][]any, len(p.RowKeys))
	for ri := range p.RowKeys {
		p.Cells[ri] = make([][]any, len(p.ColumnKeys))
		for ci := range p.ColumnKeys {
			values := make([]any, len(ct.Measures))
			rows, ok := cellRows[cellKey{ri, ci}]
			if ok {
				for mi, m := range ct.Measures {
					v, err := aggregate(m.Aggregation, data, measureCols[mi], rows)
					if err != nil {
						return nil, reporterr.New(reporterr.KindInvalidState, op, fmt.Errorf("measure %s: %w", m.Label(), err))
					}
					values[mi] = v
				}
			}
			p.Cells[ri][ci] = values
		}
	}
	return p, nil
}

func dimensionColumns(data *table.TableModel, dims []model.Dimension, fields *[]string) ([]int, error) {
	cols := make([]int, len(dims))
	for i, d := range dims {
		cols[i] = data.ColumnIndex(d.Field)
		if cols[i] < 0 {
			return nil, fmt.Errorf("dimension %s is not a column", d.Field)
		}
		*fields = append(*fields, d.Field)
	}
	return cols, nil
}

func indexOf(index map[string]int, keys *[][]any, k []any) int {
	s := keyString(k)
	if i, ok := index[s]; ok {
		return i
	}
	index[s] = len(*keys)
	*keys = append(*keys, k)
	return index[s]
}

func keyString(k []any) string {
	parts := make([]string, len(k))
	for i, v := range k {
		if t, ok := v.(time.Time); ok {
			v = t.UTC()
		}
		parts[i] = fmt.Sprintf("%T:%v", v, v)
	}
	return strings.Join(parts, "\x00")
}

func aggregate(agg model.Aggregation, data *table.TableModel, col int, rows []int) (any, error) {
	if agg == model.AggregateCount {
		if col < 0 {
			return int64(len(rows)), nil
		}
		var n int64
		for _, r := range rows {
			if data.ValueAt(r, col) != nil {
				n++
			}
		}
		return n, nil
	}

	var values []any
	for _, r := range rows {
		if v := data.ValueAt(r, col); v != nil {
			values = append(values, table.WidenNumber(v))
		}
	}
	if len(values) == 0 {
		return nil, nil
	}

	switch agg {
	case model.AggregateSum, "", model.AggregateAvg:
		var isum int64
		var fsum float64
		allInt := true
		for _, v := range values {
			switch n := v.(type) {
			case int64:
				isum += n
				fsum += float64(n)
			case float64:
				allInt = false
				fsum += n
			default:
				return nil, fmt.Errorf("%v is not numeric", v)
			}
		}
		if agg == model.AggregateAvg {
			return fsum / float64(len(values)), nil
		}
		if allInt {
			return isum, nil
		}
		return fsum, nil
	case model.AggregateMin, model.AggregateMax:
		best := values[0]
		for _, v := range values[1:] {
			c, err := compare(v, best)
			if err != nil {
				return nil, err
			}
			if (agg == model.AggregateMin && c < 0) || (agg == model.AggregateMax && c > 0) {
				best = v
			}
		}
		return best, nil
	default:
		return nil, fmt.Errorf("unknown aggregation %q", agg)
	}
}

func compare(a, b any) (int, error) {
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv), nil
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv), nil
		}
	default:
		af, aok := toFloat(a)
		bf, bok := toFloat(b)
		if aok && bok {
			switch {
			case af < bf:
				return -1, nil
			case af > bf:
				return 1, nil
			}
			return 0, nil
		}
	}
	return 0, fmt.Errorf("cannot compare %T with %T", a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := table.WidenNumber(v).(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

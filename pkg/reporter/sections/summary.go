// Package sections holds the summary sections shared by the text and
// markdown formats.
package sections

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pingcap/report-engine/pkg/engine"
	"github.com/pingcap/report-engine/pkg/model"
	"github.com/pingcap/report-engine/pkg/table"
)

// Summary is the serializable outline of an engine result.
type Summary struct {
	Report     string                  `json:"report"`
	Query      string                  `json:"query"`
	Parameters map[string]any          `json:"parameters"`
	Columns    []string                `json:"columns"`
	Rows       int                     `json:"rows"`
	Data       [][]any                 `json:"data,omitempty"`
	Empty      bool                    `json:"empty"`
	Warnings   []string                `json:"warnings,omitempty"`
	Steps      []engine.Step           `json:"steps"`
	Duration   time.Duration           `json:"duration"`
	Elements   []TreeLine              `json:"elements"`
	Groups     []*engine.GroupInstance `json:"groups,omitempty"`
	SubReports []SubReportSummary      `json:"subreports,omitempty"`
	Crosstabs  []*engine.Pivot         `json:"crosstabs,omitempty"`
	Exports    map[string]any          `json:"exports,omitempty"`
}

// SubReportSummary outlines one sub-report binding.
type SubReportSummary struct {
	Name       string         `json:"name"`
	Row        int            `json:"row"`
	Query      string         `json:"query"`
	Rows       int            `json:"rows"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Values     map[string]any `json:"values,omitempty"`
}

// TreeLine is one element of the processed definition.
type TreeLine struct {
	Depth int    `json:"depth"`
	Type  string `json:"type"`
	Name  string `json:"name"`
}

// Summarize builds the summary of result, listing at most maxRows data rows.
func Summarize(result *engine.Result, maxRows int) *Summary {
	s := &Summary{
		Report:     result.Report.Name(),
		Query:      result.Report.Query,
		Parameters: table.ToMap(result.Parameters),
		Columns:    result.Data.Columns(),
		Rows:       result.Data.RowCount(),
		Data:       rows(result.Data, maxRows),
		Empty:      result.Empty,
		Warnings:   append(Warnings(result), result.Warnings...),
		Steps:      result.Steps,
		Duration:   result.Duration(),
		Elements:   Tree(result.Report),
		Groups:     result.Groups,
		Crosstabs:  result.Crosstabs,
		Exports:    result.Exports,
	}
	for _, sb := range result.SubReports {
		s.SubReports = append(s.SubReports, SubReportSummary{
			Name:       sb.Name,
			Row:        sb.Row,
			Query:      sb.Report.Query,
			Rows:       sb.Data.RowCount(),
			Parameters: table.ToMap(sb.Parameters),
			Values:     sb.Values,
		})
	}
	return s
}

// Warnings returns the parameter validation warnings of result.
func Warnings(result *engine.Result) []string {
	if result.Validation == nil {
		return nil
	}
	var out []string
	for _, m := range result.Validation.Messages() {
		out = append(out, m.Message)
	}
	for _, name := range result.Validation.ParameterNames() {
		for _, m := range result.Validation.ParameterMessages(name) {
			out = append(out, name+": "+m.Message)
		}
	}
	return out
}

// Tree lists the elements of root in walk order with their nesting depth.
// Bands without elements are left out.
func Tree(root model.Element) []TreeLine {
	var out []TreeLine
	model.Walk(root, func(e model.Element) error {
		if b, ok := e.(*model.Band); ok && b.Len() == 0 {
			return nil
		}
		depth := 0
		for p := e.Parent(); p != nil; p = p.Parent() {
			depth++
		}
		out = append(out, TreeLine{Depth: depth, Type: string(e.Type()), Name: e.Name()})
		return nil
	})
	return out
}

// ParameterNames returns the names of the parameters, sorted.
func ParameterNames(result *engine.Result) []string {
	if result.Parameters == nil {
		return nil
	}
	names := result.Parameters.Names()
	sort.Strings(names)
	return names
}

func rows(tm *table.TableModel, n int) [][]any {
	if n > tm.RowCount() {
		n = tm.RowCount()
	}
	var out [][]any
	for r := 0; r < n; r++ {
		row := make([]any, tm.ColumnCount())
		for c := range row {
			row[c] = tm.ValueAt(r, c)
		}
		out = append(out, row)
	}
	return out
}

// FormatValue renders a cell or parameter value.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "(null)"
	case time.Time:
		return t.Format(time.RFC3339)
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = FormatValue(e)
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(v)
	}
}

func formatKey(k []any) string {
	parts := make([]string, len(k))
	for i, v := range k {
		parts[i] = FormatValue(v)
	}
	return strings.Join(parts, " / ")
}

package datafactory

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/pingcap/report-engine/pkg/reporterr"
	"github.com/pingcap/report-engine/pkg/table"
)

// SpreadsheetDataFactory serves the sheets of an xlsx workbook. The query is
// the sheet name, the first row holds the column names and column types are
// inferred from the cell values.
type SpreadsheetDataFactory struct {
	resource string

	// mu serializes reads of file; sub-reports may query concurrently.
	mu     sync.Mutex
	file   *excelize.File
	sheets []string
}

// NewSpreadsheetDataFactory creates a factory for the workbook at path,
// resolved against the report's context key.
func NewSpreadsheetDataFactory(path string) *SpreadsheetDataFactory {
	return &SpreadsheetDataFactory{resource: path}
}

func (f *SpreadsheetDataFactory) Initialize(ctx context.Context, dfc DataFactoryContext) error {
	op := "open workbook " + f.resource
	if dfc == nil {
		return reporterr.Newf(reporterr.KindDataFactory, op, "no data factory context")
	}
	rm := dfc.ResourceManager()
	key, err := rm.Resolve(dfc.ContextKey(), f.resource)
	if err != nil {
		return reporterr.New(reporterr.KindDataFactory, op, err)
	}
	data, err := rm.Load(ctx, key)
	if err != nil {
		return reporterr.New(reporterr.KindDataFactory, op, err)
	}
	file, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return reporterr.New(reporterr.KindDataFactory, op, err)
	}
	f.file = file
	f.sheets = file.GetSheetList()
	dfc.Logger().WithField("factory", "spreadsheet").WithField("resource", string(key)).
		WithField("sheets", len(f.sheets)).Debug("workbook opened")
	return nil
}

func (f *SpreadsheetDataFactory) QueryNames() []string {
	return append([]string(nil), f.sheets...)
}

func (f *SpreadsheetDataFactory) IsQueryExecutable(query string, _ table.DataRow) bool {
	for _, s := range f.sheets {
		if s == query {
			return true
		}
	}
	return false
}

func (f *SpreadsheetDataFactory) QueryData(ctx context.Context, query string, params table.DataRow) (*table.TableModel, error) {
	op := "query " + query
	if err := ctx.Err(); err != nil {
		return nil, reporterr.Interrupted(op, err)
	}
	if f.file == nil {
		return nil, reporterr.Newf(reporterr.KindDataFactory, op, "workbook is not open")
	}
	if !f.IsQueryExecutable(query, params) {
		return nil, reporterr.Newf(reporterr.KindDataFactory, op, "no such sheet")
	}
	f.mu.Lock()
	rows, err := f.file.GetRows(query)
	f.mu.Unlock()
	if err != nil {
		return nil, reporterr.New(reporterr.KindDataFactory, op, err)
	}
	tm, err := SheetTable(rows, QueryLimit(params))
	if err != nil {
		return nil, reporterr.New(reporterr.KindDataFactory, op, err)
	}
	return tm, nil
}

// SheetTable converts raw sheet rows into a table. Short rows are padded,
// cells beyond the header are dropped and blank header cells are named
// after their column letter.
func SheetTable(rows [][]string, limit int) (*table.TableModel, error) {
	if len(rows) == 0 {
		return table.NewTableModel(nil, nil), nil
	}
	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		h = strings.TrimSpace(h)
		if h == "" {
			name, err := excelize.ColumnNumberToName(i + 1)
			if err != nil {
				return nil, err
			}
			h = name
		}
		header[i] = h
	}
	body := rows[1:]
	if limit > 0 && len(body) > limit {
		body = body[:limit]
	}

	types := make([]table.ColumnType, len(header))
	for col := range header {
		values := make([]string, 0, len(body))
		for _, r := range body {
			if col < len(r) {
				values = append(values, r[col])
			}
		}
		types[col] = table.InferColumnType(values)
	}

	tm := table.NewTableModel(header, types)
	for i, r := range body {
		values := make([]any, len(header))
		for col := range header {
			if col >= len(r) {
				continue
			}
			v, err := table.ConvertString(r[col], types[col])
			if err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", i+2, header[col], err)
			}
			values[col] = v
		}
		if err := tm.AddRow(values...); err != nil {
			return nil, err
		}
	}
	return tm, nil
}

func (f *SpreadsheetDataFactory) Derive() DataFactory {
	return NewSpreadsheetDataFactory(f.resource)
}

func (f *SpreadsheetDataFactory) Close() error {
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	f.sheets = nil
	return err
}

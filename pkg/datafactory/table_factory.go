package datafactory

import (
	"context"
	"sort"

	"github.com/pingcap/report-engine/pkg/reporterr"
	"github.com/pingcap/report-engine/pkg/table"
)

// TableDataFactory serves named in-memory tables.
type TableDataFactory struct {
	tables map[string]*table.TableModel
}

// NewTableDataFactory creates an empty factory.
func NewTableDataFactory() *TableDataFactory {
	return &TableDataFactory{tables: make(map[string]*table.TableModel)}
}

// AddTable registers tm under name, replacing any previous table.
func (f *TableDataFactory) AddTable(name string, tm *table.TableModel) {
	f.tables[name] = tm
}

// RemoveTable unregisters a table.
func (f *TableDataFactory) RemoveTable(name string) {
	delete(f.tables, name)
}

func (f *TableDataFactory) Initialize(context.Context, DataFactoryContext) error { return nil }

func (f *TableDataFactory) QueryNames() []string {
	names := make([]string, 0, len(f.tables))
	for name := range f.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (f *TableDataFactory) IsQueryExecutable(query string, _ table.DataRow) bool {
	_, ok := f.tables[query]
	return ok
}

func (f *TableDataFactory) QueryData(ctx context.Context, query string, params table.DataRow) (*table.TableModel, error) {
	if err := ctx.Err(); err != nil {
		return nil, reporterr.Interrupted("query "+query, err)
	}
	tm, ok := f.tables[query]
	if !ok {
		return nil, reporterr.Newf(reporterr.KindDataFactory, "query "+query, "no such table")
	}
	return tm.Limit(QueryLimit(params)), nil
}

// Derive shares the tables; they are never modified through the factory.
func (f *TableDataFactory) Derive() DataFactory {
	d := NewTableDataFactory()
	for k, v := range f.tables {
		d.tables[k] = v
	}
	return d
}

func (f *TableDataFactory) Close() error { return nil }

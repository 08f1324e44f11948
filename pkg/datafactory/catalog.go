package datafactory

import (
	"fmt"

	"github.com/pingcap/report-engine/pkg/config"
	"github.com/pingcap/report-engine/pkg/table"
)

// NamedFactory pairs a catalog entry with the factory built for it.
type NamedFactory struct {
	Name    string
	Kind    string
	Factory DataFactory
}

// FromDataSources builds one factory per catalog entry. Spreadsheet resources
// are resolved through the resource manager of the DataFactoryContext, so the
// caller should root it at ds.BaseDir.
func FromDataSources(ds *config.DataSources) ([]NamedFactory, error) {
	var out []NamedFactory
	for _, c := range ds.Connections {
		f := NewSQLDataFactory(&DriverConnectionProvider{Driver: c.Driver, DSN: c.DSN})
		for name, q := range c.Queries {
			f.SetQuery(name, q)
		}
		f.SetFreeForm(c.FreeForm)
		out = append(out, NamedFactory{Name: c.Name, Kind: "sql", Factory: f})
	}
	for _, s := range ds.Spreadsheets {
		out = append(out, NamedFactory{Name: s.Name, Kind: "spreadsheet", Factory: NewSpreadsheetDataFactory(s.Resource)})
	}
	for _, t := range ds.Tables {
		tm, err := inlineTable(t)
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", t.Name, err)
		}
		f := NewTableDataFactory()
		f.AddTable(t.Name, tm)
		out = append(out, NamedFactory{Name: t.Name, Kind: "table", Factory: f})
	}
	return out, nil
}

// CatalogFactory combines every catalog entry into one compound factory,
// wrapped in a result cache when the catalog enables one.
func CatalogFactory(ds *config.DataSources) (DataFactory, error) {
	named, err := FromDataSources(ds)
	if err != nil {
		return nil, err
	}
	compound := NewCompoundDataFactory()
	for _, n := range named {
		compound.Add(n.Factory)
	}
	if ds.Cache.Size > 0 {
		cached, err := NewCachingDataFactory(compound, ds.Cache.Size)
		if err != nil {
			return nil, err
		}
		return cached, nil
	}
	return compound, nil
}

func inlineTable(t config.TableSource) (*table.TableModel, error) {
	rows := make([][]any, len(t.Rows))
	for i, r := range t.Rows {
		rows[i] = make([]any, len(r))
		for j, v := range r {
			if n, ok := v.(int); ok {
				v = int64(n)
			}
			rows[i][j] = v
		}
	}
	types := make([]table.ColumnType, len(t.Columns))
	for i := range t.Columns {
		types[i] = inferGoType(rows, i)
	}
	tm := table.NewTableModel(t.Columns, types)
	for _, r := range rows {
		if err := tm.AddRow(r...); err != nil {
			return nil, err
		}
	}
	return tm, nil
}

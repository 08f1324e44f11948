package datafactory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/pingcap/report-engine/pkg/config"
	"github.com/pingcap/report-engine/pkg/reporterr"
	"github.com/pingcap/report-engine/pkg/resource"
	"github.com/pingcap/report-engine/pkg/table"
)

func regionsTable(t *testing.T) *table.TableModel {
	tm := table.NewTableModel([]string{"id", "name"}, []table.ColumnType{table.TypeInt, table.TypeString})
	require.NoError(t, tm.AddRow(int64(1), "North"))
	require.NoError(t, tm.AddRow(int64(2), "South"))
	require.NoError(t, tm.AddRow(int64(3), "East"))
	return tm
}

func TestQueryOptions(t *testing.T) {
	params := table.NewStaticDataRow(map[string]any{ParamQueryLimit: "25", ParamQueryTimeout: 3})
	assert.Equal(t, 25, QueryLimit(params))
	assert.Equal(t, 3*time.Second, QueryTimeout(params))

	params = table.NewStaticDataRow(map[string]any{ParamQueryLimit: -1, ParamQueryTimeout: "250ms"})
	assert.Equal(t, 0, QueryLimit(params))
	assert.Equal(t, 250*time.Millisecond, QueryTimeout(params))

	assert.Equal(t, 0, QueryLimit(nil))
	assert.Equal(t, time.Duration(0), QueryTimeout(table.EmptyDataRow))

	ctx, cancel := WithQueryTimeout(context.Background(), table.NewStaticDataRow(map[string]any{ParamQueryTimeout: time.Minute}))
	defer cancel()
	_, hasDeadline := ctx.Deadline()
	assert.True(t, hasDeadline)
}

func TestTableDataFactory(t *testing.T) {
	f := NewTableDataFactory()
	f.AddTable("regions", regionsTable(t))
	f.AddTable("empty", table.NewTableModel([]string{"x"}, nil))

	assert.Equal(t, []string{"empty", "regions"}, f.QueryNames())
	assert.True(t, f.IsQueryExecutable("regions", nil))
	assert.False(t, f.IsQueryExecutable("orders", nil))

	tm, err := f.QueryData(context.Background(), "regions", table.NewStaticDataRow(map[string]any{ParamQueryLimit: 2}))
	require.NoError(t, err)
	assert.Equal(t, 2, tm.RowCount())

	_, err = f.QueryData(context.Background(), "orders", nil)
	assert.True(t, errors.Is(err, reporterr.ErrDataFactory))

	d := f.Derive()
	f.RemoveTable("regions")
	assert.True(t, d.IsQueryExecutable("regions", nil))
}

type recordingFactory struct {
	*TableDataFactory
	initErr error
	inits   int
	closes  int
}

func (r *recordingFactory) Initialize(ctx context.Context, dfc DataFactoryContext) error {
	r.inits++
	return r.initErr
}

func (r *recordingFactory) Close() error {
	r.closes++
	return nil
}

func TestCompoundDataFactoryRouting(t *testing.T) {
	first := NewTableDataFactory()
	first.AddTable("regions", regionsTable(t))
	free := NewExternalQueryDataFactory(nil)
	second := NewTableDataFactory()
	second.AddTable("regions", table.NewTableModel([]string{"other"}, nil))
	second.AddTable("products", table.NewTableModel([]string{"sku"}, nil))

	c := NewCompoundDataFactory(first, NewCompoundDataFactory(free, second))
	assert.Equal(t, 3, c.Size())
	assert.Same(t, free, c.Get(1))
	assert.Equal(t, []string{"regions", "products"}, c.QueryNames())

	tm, err := c.QueryData(context.Background(), "regions", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, tm.Columns())
	assert.Same(t, second, c.DataFactoryForQuery("products", nil, false))

	ext := regionsTable(t)
	params := table.NewStaticDataRow(map[string]any{"lookup": ext})
	assert.False(t, c.IsStaticQueryExecutable("lookup", params))
	assert.True(t, c.IsFreeFormQueryExecutable("lookup", params))
	tm, err = c.QueryData(context.Background(), "lookup", params)
	require.NoError(t, err)
	assert.Equal(t, 3, tm.RowCount())

	_, err = c.QueryData(context.Background(), "unknown", nil)
	assert.True(t, errors.Is(err, reporterr.ErrDataFactory))
}

func TestCompoundDataFactoryLifecycle(t *testing.T) {
	ok := &recordingFactory{TableDataFactory: NewTableDataFactory()}
	failing := &recordingFactory{TableDataFactory: NewTableDataFactory(), initErr: errors.New("no connection")}
	never := &recordingFactory{TableDataFactory: NewTableDataFactory()}

	c := NewCompoundDataFactory(ok, failing, never)
	err := c.Initialize(context.Background(), testContext())
	assert.ErrorContains(t, err, "no connection")
	assert.Equal(t, 1, ok.closes)
	assert.Equal(t, 0, never.inits)

	require.NoError(t, NewCompoundDataFactory(ok, never).Close())
	assert.Equal(t, 2, ok.closes)
	assert.Equal(t, 1, never.closes)

	d := c.Derive().(*CompoundDataFactory)
	assert.Equal(t, 3, d.Size())
}

func TestExternalQueryDataFactory(t *testing.T) {
	delegate := NewTableDataFactory()
	delegate.AddTable("regions", regionsTable(t))
	f := NewExternalQueryDataFactory(delegate)

	var _ ExternalDataFactory = f
	params := table.NewStaticDataRow(map[string]any{
		"direct":        regionsTable(t),
		"indirect":      "regions",
		"bogus":         42,
		"dangling":      "missing",
		ParamQueryLimit: 1,
	})

	assert.True(t, f.IsQueryExecutable("direct", params))
	assert.True(t, f.IsQueryExecutable("indirect", params))
	assert.False(t, f.IsQueryExecutable("bogus", params))
	assert.False(t, f.IsQueryExecutable("dangling", params))
	assert.False(t, f.IsQueryExecutable("direct", nil))
	assert.Empty(t, f.QueryNames())

	tm, err := f.QueryData(context.Background(), "direct", params)
	require.NoError(t, err)
	assert.Equal(t, 1, tm.RowCount())

	tm, err = f.QueryData(context.Background(), "indirect", params)
	require.NoError(t, err)
	assert.Equal(t, 1, tm.RowCount())

	_, err = f.QueryData(context.Background(), "bogus", params)
	assert.True(t, errors.Is(err, reporterr.ErrDataFactory))

	_, err = NewExternalQueryDataFactory(nil).QueryData(context.Background(), "indirect", params)
	assert.True(t, errors.Is(err, reporterr.ErrDataFactory))
}

type countingFactory struct {
	*TableDataFactory
	calls int
}

func (c *countingFactory) QueryData(ctx context.Context, query string, params table.DataRow) (*table.TableModel, error) {
	c.calls++
	return c.TableDataFactory.QueryData(ctx, query, params)
}

func TestCachingDataFactory(t *testing.T) {
	parent := &countingFactory{TableDataFactory: NewTableDataFactory()}
	parent.AddTable("regions", regionsTable(t))

	f, err := NewCachingDataFactory(parent, 2)
	require.NoError(t, err)
	require.NoError(t, f.Initialize(context.Background(), testContext()))

	a := table.NewStaticDataRow(map[string]any{"region": "north"})
	b := table.NewStaticDataRow(map[string]any{"region": "south"})

	first, err := f.QueryData(context.Background(), "regions", a)
	require.NoError(t, err)
	require.NoError(t, first.AddRow(int64(9), "mutated"))

	second, err := f.QueryData(context.Background(), "regions", a)
	require.NoError(t, err)
	assert.Equal(t, 1, parent.calls)
	assert.Equal(t, 3, second.RowCount())

	_, err = f.QueryData(context.Background(), "regions", b)
	require.NoError(t, err)
	assert.Equal(t, 2, parent.calls)
	assert.Equal(t, 2, f.Len())

	_, err = f.QueryData(context.Background(), "missing", a)
	assert.Error(t, err)
	assert.Equal(t, 2, f.Len())

	d := f.Derive().(*CachingDataFactory)
	assert.Equal(t, 0, d.Len())
	require.NoError(t, f.Close())
	assert.Equal(t, 0, f.Len())

	_, err = NewCachingDataFactory(parent, 0)
	assert.Error(t, err)
}

func TestCachingDataFactoryUsesReferencedFields(t *testing.T) {
	newStubDB("cache", []string{"n"})
	sqlFactory := NewSQLDataFactory(&DriverConnectionProvider{Driver: "stubsql", DSN: "cache"})
	sqlFactory.SetQuery("q", "SELECT n FROM t WHERE a = ${a}")

	f, err := NewCachingDataFactory(sqlFactory, 4)
	require.NoError(t, err)

	k1 := f.cacheKey("q", table.NewStaticDataRow(map[string]any{"a": 1, "unrelated": "x"}))
	k2 := f.cacheKey("q", table.NewStaticDataRow(map[string]any{"a": 1, "unrelated": "y"}))
	k3 := f.cacheKey("q", table.NewStaticDataRow(map[string]any{"a": 2}))
	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
}

func workbook(t *testing.T) []byte {
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetName("Sheet1", "budget"))
	require.NoError(t, f.SetSheetRow("budget", "A1", &[]any{"region", "", "amount"}))
	require.NoError(t, f.SetSheetRow("budget", "A2", &[]any{"north", "x", 10}))
	require.NoError(t, f.SetSheetRow("budget", "A3", &[]any{"south", "", 2.5}))
	require.NoError(t, f.SetSheetRow("budget", "A4", &[]any{"east", "", 7}))
	_, err := f.NewSheet("notes")
	require.NoError(t, err)

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestSpreadsheetDataFactory(t *testing.T) {
	rm := resource.MapManager{"data/budget.xlsx": workbook(t)}
	dfc := testContext()
	dfc.Resources = rm
	dfc.Key = "reports/budget.report"

	f := NewSpreadsheetDataFactory("../data/budget.xlsx")
	require.NoError(t, f.Initialize(context.Background(), dfc))
	defer f.Close()

	assert.Equal(t, []string{"budget", "notes"}, f.QueryNames())
	assert.True(t, f.IsQueryExecutable("budget", nil))

	tm, err := f.QueryData(context.Background(), "budget", table.NewStaticDataRow(map[string]any{ParamQueryLimit: 2}))
	require.NoError(t, err)
	assert.Equal(t, []string{"region", "B", "amount"}, tm.Columns())
	assert.Equal(t, 2, tm.RowCount())
	assert.Equal(t, table.TypeFloat, tm.ColumnType(2))
	assert.Equal(t, 2.5, tm.ValueAt(1, 2))
	assert.Equal(t, "x", tm.ValueAt(0, 1))
	assert.Nil(t, tm.ValueAt(1, 1))

	_, err = f.QueryData(context.Background(), "missing", nil)
	assert.True(t, errors.Is(err, reporterr.ErrDataFactory))
}

func TestSpreadsheetDataFactoryMissingWorkbook(t *testing.T) {
	dfc := testContext()
	dfc.Resources = resource.MapManager{}

	err := NewSpreadsheetDataFactory("budget.xlsx").Initialize(context.Background(), dfc)
	assert.True(t, errors.Is(err, reporterr.ErrDataFactory))
	assert.True(t, errors.Is(err, reporterr.ErrResource))

	dfc.Resources = resource.MapManager{"bad.xlsx": []byte("not a workbook")}
	err = NewSpreadsheetDataFactory("bad.xlsx").Initialize(context.Background(), dfc)
	assert.True(t, errors.Is(err, reporterr.ErrDataFactory))

	_, err = NewSpreadsheetDataFactory("x.xlsx").QueryData(context.Background(), "s", nil)
	assert.True(t, errors.Is(err, reporterr.ErrDataFactory))
}

func TestSheetTable(t *testing.T) {
	tm, err := SheetTable(nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, tm.ColumnCount())

	tm, err = SheetTable([][]string{{"when", "n"}, {"2024-01-01", "1"}, {"2024-02-01"}}, 0)
	require.NoError(t, err)
	assert.Equal(t, table.TypeTime, tm.ColumnType(0))
	assert.Equal(t, table.TypeInt, tm.ColumnType(1))
	assert.Nil(t, tm.ValueAt(1, 1))
}

func TestCatalogFactory(t *testing.T) {
	ds, err := config.ParseDataSources([]byte(`
connections:
  - name: sales
    driver: stubsql
    dsn: catalog
    queries:
      orders: "SELECT * FROM orders"
spreadsheets:
  - name: budget
    resource: budget.xlsx
tables:
  - name: regions
    columns: [id, name]
    rows:
      - [1, North]
      - [2, South]
cache:
  size: 8
`))
	require.NoError(t, err)

	named, err := FromDataSources(ds)
	require.NoError(t, err)
	require.Len(t, named, 3)
	assert.Equal(t, "sql", named[0].Kind)
	assert.Equal(t, []string{"orders"}, named[0].Factory.QueryNames())

	f, err := CatalogFactory(ds)
	require.NoError(t, err)
	cached, ok := f.(*CachingDataFactory)
	require.True(t, ok)

	dfc := testContext()
	dfc.Resources = resource.MapManager{"budget.xlsx": workbook(t)}
	require.NoError(t, cached.Initialize(context.Background(), dfc))
	defer cached.Close()

	tm, err := cached.QueryData(context.Background(), "regions", nil)
	require.NoError(t, err)
	assert.Equal(t, table.TypeInt, tm.ColumnType(0))
	assert.Equal(t, int64(2), tm.ValueAt(1, 0))

	tm, err = cached.QueryData(context.Background(), "budget", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, tm.RowCount())
}

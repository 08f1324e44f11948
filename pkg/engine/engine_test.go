package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pingcap/report-engine/pkg/config"
	"github.com/pingcap/report-engine/pkg/datafactory"
	"github.com/pingcap/report-engine/pkg/formula"
	"github.com/pingcap/report-engine/pkg/logutil"
	"github.com/pingcap/report-engine/pkg/model"
	"github.com/pingcap/report-engine/pkg/parameters"
	"github.com/pingcap/report-engine/pkg/preprocess"
	"github.com/pingcap/report-engine/pkg/reporterr"
	"github.com/pingcap/report-engine/pkg/table"
)

func ordersTable(t *testing.T) *table.TableModel {
	tm := table.NewTableModel(
		[]string{"region", "city", "amount", "year"},
		[]table.ColumnType{table.TypeString, table.TypeString, table.TypeInt, table.TypeInt},
	)
	require.NoError(t, tm.AddRow("N", "A", int64(10), int64(2023)))
	require.NoError(t, tm.AddRow("N", "A", int64(5), int64(2024)))
	require.NoError(t, tm.AddRow("N", "B", int64(7), int64(2024)))
	require.NoError(t, tm.AddRow("S", "C", int64(3), int64(2023)))
	return tm
}

func testFactory(t *testing.T) *datafactory.TableDataFactory {
	f := datafactory.NewTableDataFactory()
	f.AddTable("orders", ordersTable(t))

	lines := table.NewTableModel([]string{"sku", "total"}, nil)
	require.NoError(t, lines.AddRow("x", int64(1)))
	require.NoError(t, lines.AddRow("y", int64(42)))
	f.AddTable("lines", lines)
	f.AddTable("empty", table.NewTableModel([]string{"region"}, nil))
	return f
}

func newProcessor(cfg map[string]string) *Processor {
	return NewProcessor(Options{
		Config: config.NewProperties(cfg),
		Logger: logutil.Discard(),
	})
}

func salesReport(t *testing.T) *model.MasterReport {
	r := model.NewMasterReport("sales")
	r.Query = "orders"
	r.DataFactory = testFactory(t)
	r.Parameters.Add(&parameters.Parameter{Name: "minYear", Type: parameters.TypeInt, DefaultValue: 2000})
	r.Expressions = []formula.Expression{{Name: "amount_copy", Formula: "=[amount]"}}

	r.RootGroup().SetName("region")
	r.RootGroup().SetFields("region")
	require.NoError(t, r.AddGroup(model.NewGroup("city", "city")))
	require.NoError(t, r.ItemBand().AddElement(model.NewTextField("amount")))

	lines := model.NewSubReport("lines")
	lines.Query = "lines"
	lines.AddImport("region", "r")
	lines.AddExport("total", "line_total")
	require.NoError(t, r.ItemBand().AddElement(lines))

	summary := model.NewSubReport("summary")
	summary.Query = "lines"
	summary.AddImport(model.ImportAll, "")
	summary.AddExport("minYear", "")
	require.NoError(t, r.ReportHeader().AddElement(summary))

	ct := model.NewCrosstab("by-year")
	ct.AddRowDimension("region")
	ct.AddColumnDimension("year")
	ct.AddMeasure("amount", model.AggregateSum)
	ct.AddMeasure("", model.AggregateCount)
	require.NoError(t, r.ReportFooter().AddElement(ct))
	return r
}

func TestProcess(t *testing.T) {
	report := salesReport(t)
	res, err := newProcessor(nil).Process(context.Background(), report, table.NewStaticDataRow(map[string]any{"minYear": "2020"}))
	require.NoError(t, err)

	assert.NotSame(t, report, res.Report)
	assert.Equal(t, 2, report.ItemBand().Len())
	assert.False(t, res.Empty)
	assert.Same(t, res.Report.ItemBand(), res.DataBand)

	minYear, _ := res.Parameters.Get("minYear")
	assert.Equal(t, int64(2020), minYear)

	assert.Equal(t, []string{"region", "city", "amount", "year", "amount_copy", "line_total"}, res.Data.Columns())
	v, _ := res.Data.Value(2, "amount_copy")
	assert.Equal(t, int64(7), v)
	v, _ = res.Data.Value(3, "line_total")
	assert.Equal(t, int64(42), v)

	require.Len(t, res.Groups, 2)
	north := res.Groups[0]
	assert.Equal(t, []any{"N"}, north.Key)
	assert.Equal(t, 3, north.Rows())
	require.Len(t, north.Children, 2)
	assert.Equal(t, []string{"region", "city"}, north.Children[0].Fields)
	assert.Equal(t, []any{"N", "B"}, north.Children[1].Key)
	assert.Equal(t, 2, north.Children[1].Start)
	assert.Equal(t, []any{"S"}, res.Groups[1].Key)

	require.Len(t, res.SubReports, 5)
	header := res.SubReports[0]
	assert.Equal(t, "summary", header.Name)
	assert.Equal(t, -1, header.Row)
	assert.Equal(t, map[string]any{"minYear": int64(2020)}, header.Values)
	assert.Equal(t, int64(2020), res.Exports["minYear"])
	region, _ := header.Parameters.Get("region")
	assert.Nil(t, region)

	for i, sb := range res.SubReports[1:] {
		assert.Equal(t, "lines", sb.Name)
		assert.Equal(t, i, sb.Row)
		assert.Equal(t, []string{"r"}, sb.Parameters.Names())
	}
	r, _ := res.SubReports[4].Parameters.Get("r")
	assert.Equal(t, "S", r)

	require.Len(t, res.Crosstabs, 1)
	p := res.Crosstabs[0]
	assert.Equal(t, [][]any{{"N"}, {"S"}}, p.RowKeys)
	assert.Equal(t, [][]any{{int64(2023)}, {int64(2024)}}, p.ColumnKeys)
	assert.Equal(t, []string{"sum(amount)", "count()"}, p.Measures)
	assert.Equal(t, int64(12), p.Value(0, 1, 0))
	assert.Equal(t, int64(2), p.Value(0, 1, 1))
	assert.Nil(t, p.Value(1, 1, 0))

	var steps []string
	for _, s := range res.Steps {
		steps = append(steps, s.Name)
	}
	assert.Equal(t, []string{"clone", "initialize", "parameters", "preprocess", "bind"}, steps)
	assert.False(t, res.FinishedAt.Before(res.StartedAt))
}

func TestProcessParameterValidation(t *testing.T) {
	report := salesReport(t)
	report.Parameters.Add(&parameters.Parameter{Name: "owner", Mandatory: true})

	_, err := newProcessor(nil).Process(context.Background(), report, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, reporterr.ErrParameterValidation))
	var verr *parameters.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"owner: parameter is mandatory"}, verr.Result.Errors())
}

func TestProcessEmpty(t *testing.T) {
	report := model.NewMasterReport("empty")
	report.Query = "empty"
	report.DataFactory = testFactory(t)

	res, err := newProcessor(nil).Process(context.Background(), report, nil)
	require.NoError(t, err)
	assert.True(t, res.Empty)
	assert.Same(t, res.Report.NoDataBand(), res.DataBand)
	assert.Empty(t, res.Groups)

	_, err = newProcessor(map[string]string{KeyFailOnEmpty: "true"}).Process(context.Background(), report, nil)
	assert.True(t, errors.Is(err, reporterr.ErrEmptyReport))
}

func TestProcessInvalidState(t *testing.T) {
	report := model.NewMasterReport("no-query")
	report.DataFactory = testFactory(t)
	_, err := newProcessor(nil).Process(context.Background(), report, nil)
	assert.True(t, errors.Is(err, reporterr.ErrInvalidState))

	report = model.NewMasterReport("no-factory")
	report.Query = "orders"
	_, err = newProcessor(nil).Process(context.Background(), report, nil)
	assert.True(t, errors.Is(err, reporterr.ErrInvalidState))

	report = salesReport(t)
	report.RootGroup().SetFields("country")
	_, err = newProcessor(nil).Process(context.Background(), report, nil)
	assert.True(t, errors.Is(err, reporterr.ErrInvalidState))
	assert.ErrorContains(t, err, "field country is not a column")

	report = salesReport(t)
	report.Expressions = append(report.Expressions, formula.Expression{Name: "bad", Formula: "=SUM([amount])"})
	_, err = newProcessor(nil).Process(context.Background(), report, nil)
	assert.True(t, errors.Is(err, reporterr.ErrEvent))
	assert.ErrorIs(t, err, formula.ErrUnsupportedExpression)
}

func TestProcessStructureErrors(t *testing.T) {
	report := salesReport(t)
	sub := model.FindByName(report, "lines").(*model.SubReport)
	sub.Query = ""
	_, err := newProcessor(nil).Process(context.Background(), report, nil)
	assert.True(t, errors.Is(err, reporterr.ErrDefinition))
}

func TestProcessCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newProcessor(nil).Process(ctx, salesReport(t), nil)
	assert.True(t, errors.Is(err, reporterr.ErrInterrupted))
}

func TestProcessGlobalPreProcessors(t *testing.T) {
	report := model.NewMasterReport("generated")
	report.Query = "orders"
	report.DataFactory = testFactory(t)
	report.RootGroup().SetFields("region", "country")

	p := newProcessor(map[string]string{KeyPreProcessors: "auto-generator, group-fields-normalizer"})
	res, err := p.Process(context.Background(), report, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Report.ItemBand().Len())
	assert.Equal(t, 0, report.ItemBand().Len())
	assert.Equal(t, []string{"group default: field country is not a column of query orders"}, res.Warnings)
	assert.Len(t, res.Groups, 2)

	report.PreProcessors = []string{"unknown"}
	_, err = p.Process(context.Background(), report, nil)
	assert.True(t, errors.Is(err, reporterr.ErrDefinition))
}

type slowFactory struct {
	*datafactory.TableDataFactory
}

func (f *slowFactory) QueryData(ctx context.Context, query string, params table.DataRow) (*table.TableModel, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *slowFactory) Derive() datafactory.DataFactory { return f }

func TestProcessQueryTimeout(t *testing.T) {
	report := model.NewMasterReport("slow")
	report.Query = "orders"
	report.QueryTimeout = 10 * time.Millisecond
	report.DataFactory = &slowFactory{datafactory.NewTableDataFactory()}

	_, err := newProcessor(nil).Process(context.Background(), report, nil)
	assert.True(t, errors.Is(err, reporterr.ErrQueryTimeout))

	report.QueryTimeout = 0
	_, err = newProcessor(map[string]string{KeyQueryTimeout: "10ms"}).Process(context.Background(), report, nil)
	assert.True(t, errors.Is(err, reporterr.ErrQueryTimeout))
}

type failingFactory struct {
	*datafactory.TableDataFactory
}

func (f *failingFactory) Initialize(context.Context, datafactory.DataFactoryContext) error {
	return errors.New("connection refused")
}

func (f *failingFactory) Derive() datafactory.DataFactory { return f }

func TestProcessInitializeFailure(t *testing.T) {
	report := model.NewMasterReport("down")
	report.Query = "orders"
	report.DataFactory = &failingFactory{datafactory.NewTableDataFactory()}
	_, err := newProcessor(nil).Process(context.Background(), report, nil)
	assert.True(t, errors.Is(err, reporterr.ErrDataFactory))
	assert.ErrorContains(t, err, "connection refused")
}

func TestSubReportDepthLimit(t *testing.T) {
	report := model.NewMasterReport("nested")
	report.Query = "empty"
	report.DataFactory = testFactory(t)
	outer := model.NewSubReport("outer")
	outer.Query = "lines"
	inner := model.NewSubReport("inner")
	inner.Query = "lines"
	require.NoError(t, outer.ReportHeader().AddElement(inner))
	require.NoError(t, report.ReportHeader().AddElement(outer))

	res, err := newProcessor(nil).Process(context.Background(), report, nil)
	require.NoError(t, err)
	require.Len(t, res.SubReports, 1)
	require.Len(t, res.SubReports[0].SubReports, 1)
	assert.Equal(t, "inner", res.SubReports[0].SubReports[0].Name)

	_, err = newProcessor(map[string]string{KeyMaxSubReportDepth: "1"}).Process(context.Background(), report, nil)
	assert.True(t, errors.Is(err, reporterr.ErrInvalidState))
	assert.ErrorContains(t, err, "nested deeper than 1")
}

func TestSubReportOwnFactory(t *testing.T) {
	report := model.NewMasterReport("own")
	report.Query = "empty"
	report.DataFactory = testFactory(t)

	own := datafactory.NewTableDataFactory()
	own.AddTable("private", table.NewTableModel([]string{"x"}, nil))
	sub := model.NewSubReport("private")
	sub.Query = "private"
	sub.DataFactory = own
	require.NoError(t, report.ReportFooter().AddElement(sub))

	res, err := newProcessor(nil).Process(context.Background(), report, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, res.SubReports[0].Data.Columns())
	assert.True(t, res.SubReports[0].Empty)
}

type trackedFactory struct {
	*datafactory.TableDataFactory
	initialized int
	closed      int
}

func (f *trackedFactory) Initialize(ctx context.Context, dfc datafactory.DataFactoryContext) error {
	f.initialized++
	return f.TableDataFactory.Initialize(ctx, dfc)
}

func (f *trackedFactory) Close() error {
	f.closed++
	return f.TableDataFactory.Close()
}

func (f *trackedFactory) Derive() datafactory.DataFactory { return f }

type swapFactory struct {
	*preprocess.BasePreProcessor
	factory datafactory.DataFactory
}

func (p *swapFactory) PerformPreProcessing(_ context.Context, report *model.MasterReport, _ preprocess.Flow) (*model.MasterReport, error) {
	report.DataFactory = p.factory
	return report, nil
}

func TestProcessClosesReplacedFactory(t *testing.T) {
	original := &trackedFactory{TableDataFactory: testFactory(t)}
	replacement := &trackedFactory{TableDataFactory: testFactory(t)}

	registry := preprocess.NewRegistry()
	registry.MustRegister("swap-factory", func() preprocess.ReportPreProcessor {
		return &swapFactory{
			BasePreProcessor: preprocess.NewBasePreProcessor("swap-factory", "replaces the data factory"),
			factory:          replacement,
		}
	})

	report := model.NewMasterReport("swapped")
	report.Query = "orders"
	report.DataFactory = original
	report.PreProcessors = []string{"swap-factory"}

	p := NewProcessor(Options{Registry: registry, PreProcessors: []string{}, Logger: logutil.Discard()})
	res, err := p.Process(context.Background(), report, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Data.RowCount())
	assert.Equal(t, 1, original.initialized)
	assert.Equal(t, 1, original.closed)
	assert.Equal(t, 1, replacement.initialized)
	assert.Equal(t, 1, replacement.closed)
}

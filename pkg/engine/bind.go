package engine

import (
	"context"
	"errors"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pingcap/report-engine/pkg/datafactory"
	"github.com/pingcap/report-engine/pkg/model"
	"github.com/pingcap/report-engine/pkg/preprocess"
	"github.com/pingcap/report-engine/pkg/reporterr"
	"github.com/pingcap/report-engine/pkg/table"
)

// SubReportBinding is a sub-report bound to its data.
type SubReportBinding struct {
	Binding
	Name string
	// Row is the master row the sub-report was bound for, -1 when it sits
	// outside the item band and was bound once.
	Row int
	// Report is the processed copy of the sub-report.
	Report     *model.SubReport
	Parameters *table.StaticDataRow
	// Values holds the exported values, keyed by master field.
	Values map[string]any
}

// query runs query on f honouring the limit and timeout in params.
func (r *run) query(ctx context.Context, f datafactory.DataFactory, query string, params table.DataRow) (*table.TableModel, error) {
	op := "query " + query
	qctx, cancel := datafactory.WithQueryTimeout(ctx, params)
	defer cancel()
	tm, err := f.QueryData(qctx, query, params)
	switch {
	case err == nil:
		return tm, nil
	case errors.Is(err, reporterr.ErrProcessing):
		return nil, err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, reporterr.Interrupted(op, err)
	default:
		return nil, reporterr.New(reporterr.KindDataFactory, op, err)
	}
}

// queryParams adds the limit and timeout of def to params unless params
// already carries them.
func (r *run) queryParams(def *model.ReportDefinition, params table.DataRow) *table.StaticDataRow {
	extra := make(map[string]any)
	if def.QueryLimit > 0 {
		extra[datafactory.ParamQueryLimit] = def.QueryLimit
	}
	switch {
	case def.QueryTimeout > 0:
		extra[datafactory.ParamQueryTimeout] = def.QueryTimeout
	case r.timeout > 0:
		extra[datafactory.ParamQueryTimeout] = r.timeout
	}
	return table.Merge(table.NewStaticDataRow(extra), params)
}

// bind runs the query of def and builds everything that depends on its rows.
func (r *run) bind(ctx context.Context, def *model.ReportDefinition, params table.DataRow, depth int) (*Binding, error) {
	if def.Query == "" {
		return nil, reporterr.Newf(reporterr.KindInvalidState, "bind "+def.Name(), "report has no query")
	}
	qparams := r.queryParams(def, params)
	start := time.Now()
	data, err := r.query(ctx, def.DataFactory, def.Query, qparams)
	if err != nil {
		return nil, err
	}
	r.log.WithField("query", def.Query).WithField("rows", data.RowCount()).
		WithField("elapsed", time.Since(start).String()).Debug("query executed")

	if err := r.evaluateExpressions(ctx, def, data, params); err != nil {
		return nil, err
	}

	b := &Binding{Data: data, Exports: make(map[string]any)}
	if b.Groups, err = BuildGroups(def.Groups(), data); err != nil {
		return nil, err
	}
	b.Empty = data.RowCount() == 0
	b.DataBand = def.ItemBand()
	if b.Empty {
		b.DataBand = def.NoDataBand()
	}

	if err := ctx.Err(); err != nil {
		return nil, reporterr.Interrupted("bind "+def.Name(), err)
	}
	if b.SubReports, err = r.bindSubReports(ctx, def, data, params, depth); err != nil {
		return nil, err
	}
	for _, sb := range b.SubReports {
		if sb.Row < 0 {
			for k, v := range sb.Values {
				b.Exports[k] = v
			}
		}
	}
	if err := exportColumns(data, b.SubReports); err != nil {
		return nil, err
	}

	for _, ct := range model.FindAll[*model.CrosstabElement](def.Self()) {
		src := data
		if ct.Query != "" && ct.Query != def.Query {
			if src, err = r.query(ctx, def.DataFactory, ct.Query, qparams); err != nil {
				return nil, err
			}
		}
		pivot, err := BuildPivot(ct, src)
		if err != nil {
			return nil, err
		}
		b.Crosstabs = append(b.Crosstabs, pivot)
	}
	return b, nil
}

func (r *run) evaluateExpressions(ctx context.Context, def *model.ReportDefinition, data *table.TableModel, params table.DataRow) error {
	for _, expr := range def.Expressions {
		if err := ctx.Err(); err != nil {
			return reporterr.Interrupted("expression "+expr.Name, err)
		}
		if data.ColumnIndex(expr.Name) >= 0 {
			return reporterr.Newf(reporterr.KindInvalidState, "expression "+expr.Name, "a column with this name already exists")
		}
		values := make([]any, data.RowCount())
		for i := range values {
			row := table.Merge(params, data.Row(i))
			v, err := expr.Evaluate(r.p.formula, row)
			if err != nil {
				return reporterr.New(reporterr.KindEvent, "evaluate row "+strconv.Itoa(i), err)
			}
			values[i] = v
		}
		if err := data.AddColumn(expr.Name, table.TypeAny, values); err != nil {
			return err
		}
	}
	return nil
}

type subReportJob struct {
	sub *model.SubReport
	row int
}

// bindSubReports binds the sub-reports of def. Sub-reports in the item band
// are bound once per row, all others once.
func (r *run) bindSubReports(ctx context.Context, def *model.ReportDefinition, data *table.TableModel, params table.DataRow, depth int) ([]*SubReportBinding, error) {
	perRow := make(map[*model.SubReport]bool)
	for _, s := range model.FindAll[*model.SubReport](def.ItemBand()) {
		perRow[s] = true
	}
	var jobs []subReportJob
	for _, s := range model.FindAll[*model.SubReport](def.Self()) {
		if !perRow[s] {
			jobs = append(jobs, subReportJob{sub: s, row: -1})
			continue
		}
		for i := 0; i < data.RowCount(); i++ {
			jobs = append(jobs, subReportJob{sub: s, row: i})
		}
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	if depth >= r.maxDepth {
		return nil, reporterr.Newf(reporterr.KindInvalidState, "bind "+def.Name(), "sub-reports nested deeper than %d levels", r.maxDepth)
	}

	bindings := make([]*SubReportBinding, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallelism)
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			masterRow := params
			if job.row >= 0 {
				masterRow = table.Merge(params, data.Row(job.row))
			}
			sb, err := r.bindSubReport(gctx, def, job.sub, masterRow, depth+1)
			if err != nil {
				return err
			}
			sb.Row = job.row
			bindings[i] = sb
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return bindings, nil
}

func (r *run) bindSubReport(ctx context.Context, parent *model.ReportDefinition, sub *model.SubReport, masterRow table.DataRow, depth int) (*SubReportBinding, error) {
	log := r.log.WithField("subreport", sub.Name())
	work, err := sub.Clone()
	if err != nil {
		return nil, reporterr.New(reporterr.KindDefinition, "clone "+sub.Name(), err)
	}
	if work.DataFactory == nil {
		work.DataFactory = parent.DataFactory
	} else {
		if err := initialize(ctx, work.DataFactory, r.dfc); err != nil {
			return nil, err
		}
		defer func() {
			if cerr := work.DataFactory.Close(); cerr != nil {
				log.WithError(cerr).Warn("failed to close data factory")
			}
		}()
	}
	factory := work.DataFactory

	params := ImportParameters(work, masterRow)
	procs, err := r.p.registry.Resolve(append(append([]string(nil), r.p.global...), work.PreProcessors...))
	if err != nil {
		return nil, err
	}
	work, err = preprocess.RunSubReport(ctx, work, r.newFlow(factory, params), procs)
	if err != nil {
		return nil, err
	}
	if work.DataFactory == nil {
		work.DataFactory = factory
	}

	b, err := r.bind(ctx, &work.ReportDefinition, params, depth)
	if err != nil {
		return nil, err
	}
	return &SubReportBinding{
		Binding:    *b,
		Name:       work.Name(),
		Report:     work,
		Parameters: params,
		Values:     ExportValues(work, b.Data, params),
	}, nil
}

// ImportParameters builds the parameters of sub from the master row.
func ImportParameters(sub *model.SubReport, masterRow table.DataRow) *table.StaticDataRow {
	values := make(map[string]any)
	if sub.ImportsAll() {
		for _, name := range masterRow.Names() {
			values[name], _ = masterRow.Get(name)
		}
	}
	for _, m := range sub.Imports {
		if m.Name == model.ImportAll {
			continue
		}
		if v, ok := masterRow.Get(m.Name); ok {
			values[m.Target()] = v
		}
	}
	return table.NewStaticDataRow(values)
}

// ExportValues returns the exported values of a bound sub-report, keyed by
// master field. Values come from the last row of data, or from the
// sub-report parameters when the field is not a column or there are no rows.
func ExportValues(sub *model.SubReport, data *table.TableModel, params table.DataRow) map[string]any {
	out := make(map[string]any, len(sub.Exports))
	last := data.RowCount() - 1
	for _, m := range sub.Exports {
		if col := data.ColumnIndex(m.Name); col >= 0 && last >= 0 {
			out[m.Target()] = data.ValueAt(last, col)
			continue
		}
		if v, ok := params.Get(m.Name); ok {
			out[m.Target()] = v
		}
	}
	return out
}

// exportColumns appends the values exported by per-row sub-reports to the
// master data as new columns.
func exportColumns(data *table.TableModel, bindings []*SubReportBinding) error {
	columns := make(map[string][]any)
	var order []string
	for _, sb := range bindings {
		if sb.Row < 0 {
			continue
		}
		for _, m := range sb.Report.Exports {
			name := m.Target()
			v, ok := sb.Values[name]
			if !ok || data.ColumnIndex(name) >= 0 {
				continue
			}
			if _, ok := columns[name]; !ok {
				columns[name] = make([]any, data.RowCount())
				order = append(order, name)
			}
			columns[name][sb.Row] = v
		}
	}
	for _, name := range order {
		if err := data.AddColumn(name, table.TypeAny, columns[name]); err != nil {
			return err
		}
	}
	return nil
}

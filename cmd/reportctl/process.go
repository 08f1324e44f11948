package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pingcap/report-engine/pkg/datafactory"
	"github.com/pingcap/report-engine/pkg/engine"
	"github.com/pingcap/report-engine/pkg/formula"
	"github.com/pingcap/report-engine/pkg/logutil"
	"github.com/pingcap/report-engine/pkg/model"
	"github.com/pingcap/report-engine/pkg/parameters"
	"github.com/pingcap/report-engine/pkg/preprocess"
	"github.com/pingcap/report-engine/pkg/reporter"
	"github.com/pingcap/report-engine/pkg/resource"
)

type processOptions struct {
	name          string
	groups        []string
	crosstabs     []string
	expressions   []string
	preprocessors []string
	sheet         string
	format        string
	maxRows       int
	limit         int
	compatibility string
}

func newProcessCmd(root *rootOptions) *cobra.Command {
	opts := &processOptions{}
	cmd := &cobra.Command{
		Use:   "process <query> [key=value ...]",
		Short: "Process a tabular report over a query and print its summary",
		Long: `Process a tabular report over a query and print its summary.

The report lists every column of the query. Groups, crosstabs and computed
columns can be added with flags:

  --group region --group city
  --crosstab "rows=region;columns=year;measures=sum(amount),count"
  --expression "amount_copy==[amount]"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseAssignments(args[1:])
			if err != nil {
				return err
			}
			format, err := reporter.ParseFormat(opts.format)
			if err != nil {
				return err
			}
			ds, cfg, err := root.loadCatalog()
			if err != nil {
				return err
			}
			factory, err := datafactory.CatalogFactory(ds)
			if err != nil {
				return err
			}
			report, err := opts.buildReport(args[0], factory)
			if err != nil {
				return err
			}

			p := engine.NewProcessor(engine.Options{
				Config:    cfg,
				Resources: resource.NewFileManager(ds.BaseDir),
				Logger:    logutil.Log.WithField("command", "process"),
			})
			result, err := p.Process(cmd.Context(), report, values)
			if err != nil {
				return err
			}
			return reporter.NewReporter(format).WithMaxRows(opts.maxRows).Write(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringVar(&opts.name, "name", "", "Report name (default: the query)")
	cmd.Flags().StringArrayVar(&opts.groups, "group", nil, "Group by comma separated fields, outermost first; repeatable")
	cmd.Flags().StringArrayVar(&opts.crosstabs, "crosstab", nil, `Crosstab as "rows=a,b;columns=c;measures=sum(x),count"; repeatable`)
	cmd.Flags().StringArrayVar(&opts.expressions, "expression", nil, `Computed column as "name=formula"; repeatable`)
	cmd.Flags().StringSliceVar(&opts.preprocessors, "preprocessor", []string{preprocess.AutoGeneratorName}, "Pre-processors to run")
	cmd.Flags().StringVar(&opts.sheet, "sheet", "", "Parameter sheet (YAML)")
	cmd.Flags().StringVar(&opts.format, "format", "text", "Summary format (text, markdown, json)")
	cmd.Flags().IntVar(&opts.maxRows, "max-rows", 10, "Data rows listed in the summary")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "Maximum number of rows queried (0 means all)")
	cmd.Flags().StringVar(&opts.compatibility, "compatibility", "", "Compatibility level of the report, e.g. v1.5.0")
	return cmd
}

func (o *processOptions) buildReport(query string, factory datafactory.DataFactory) (*model.MasterReport, error) {
	name := o.name
	if name == "" {
		name = query
	}
	r := model.NewMasterReport(name)
	r.Query = query
	r.QueryLimit = o.limit
	r.DataFactory = factory
	r.CompatibilityLevel = o.compatibility
	r.PreProcessors = o.preprocessors

	if o.sheet != "" {
		def, err := parameters.LoadDefinition(o.sheet)
		if err != nil {
			return nil, err
		}
		r.Parameters = def
	}

	for i, spec := range o.groups {
		fields := splitList(spec)
		if len(fields) == 0 {
			return nil, fmt.Errorf("group %d has no fields", i+1)
		}
		if i == 0 {
			r.RootGroup().SetName(strings.Join(fields, "+"))
			r.RootGroup().SetFields(fields...)
			continue
		}
		if err := r.AddGroup(model.NewGroup(strings.Join(fields, "+"), fields...)); err != nil {
			return nil, err
		}
	}

	for i, spec := range o.crosstabs {
		ct, err := parseCrosstab(fmt.Sprintf("crosstab-%d", i+1), spec)
		if err != nil {
			return nil, err
		}
		if err := r.ReportFooter().AddElement(ct); err != nil {
			return nil, err
		}
	}

	for _, spec := range o.expressions {
		name, f, ok := strings.Cut(spec, "=")
		if !ok || strings.TrimSpace(name) == "" || f == "" {
			return nil, fmt.Errorf("invalid expression %q, expected name=formula", spec)
		}
		r.Expressions = append(r.Expressions, formula.Expression{Name: strings.TrimSpace(name), Formula: f})
	}
	return r, nil
}

// parseCrosstab parses "rows=a,b;columns=c;measures=sum(x),count;query=q"
func parseCrosstab(name, spec string) (*model.CrosstabElement, error) {
	ct := model.NewCrosstab(name)
	for _, part := range strings.Split(spec, ";") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("crosstab %s: invalid part %q", name, part)
		}
		switch strings.TrimSpace(key) {
		case "rows":
			for _, f := range splitList(value) {
				ct.AddRowDimension(f)
			}
		case "columns":
			for _, f := range splitList(value) {
				ct.AddColumnDimension(f)
			}
		case "measures":
			for _, m := range splitList(value) {
				agg, field, err := parseMeasure(m)
				if err != nil {
					return nil, fmt.Errorf("crosstab %s: %w", name, err)
				}
				ct.AddMeasure(field, agg)
			}
		case "query":
			ct.Query = strings.TrimSpace(value)
		case "name":
			ct.SetName(strings.TrimSpace(value))
		default:
			return nil, fmt.Errorf("crosstab %s: unknown key %q", name, key)
		}
	}
	return ct, nil
}

// parseMeasure parses "agg(field)", "agg()" or "agg"
func parseMeasure(s string) (model.Aggregation, string, error) {
	name, rest, hasArgs := strings.Cut(s, "(")
	agg := model.Aggregation(strings.ToLower(strings.TrimSpace(name)))
	if !agg.Valid() {
		return "", "", fmt.Errorf("unknown aggregation %s", strconv.Quote(name))
	}
	if !hasArgs {
		return agg, "", nil
	}
	field, ok := strings.CutSuffix(strings.TrimSpace(rest), ")")
	if !ok {
		return "", "", fmt.Errorf("measure %s: missing )", s)
	}
	return agg, strings.TrimSpace(field), nil
}

func splitList(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

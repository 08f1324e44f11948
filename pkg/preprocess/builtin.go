package preprocess

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/pingcap/report-engine/pkg/model"
)

const (
	AutoGeneratorName         = "auto-generator"
	GroupFieldsNormalizerName = "group-fields-normalizer"
	CrosstabNormalizerName    = "crosstab-normalizer"
	CompatibilityName         = "compatibility"

	// LegacyVisibilityLevel is the first version that no longer honours the
	// legacy visibility attribute.
	LegacyVisibilityLevel = "v2.0.0"
)

// AutoGenerator fills an empty item band with one text field per query
// column and puts matching labels into the details header.
type AutoGenerator struct {
	*BasePreProcessor
}

func NewAutoGenerator() *AutoGenerator {
	return &AutoGenerator{NewBasePreProcessor(AutoGeneratorName, "generate fields for every query column when the item band is empty")}
}

func (p *AutoGenerator) PerformPreProcessing(ctx context.Context, report *model.MasterReport, flow Flow) (*model.MasterReport, error) {
	return report, p.generate(ctx, &report.ReportDefinition, flow)
}

func (p *AutoGenerator) PerformSubReportPreProcessing(ctx context.Context, report *model.SubReport, flow Flow) (*model.SubReport, error) {
	return report, p.generate(ctx, &report.ReportDefinition, flow)
}

func (p *AutoGenerator) generate(ctx context.Context, def *model.ReportDefinition, flow Flow) error {
	body := def.DataBody()
	if body.ItemBand().Len() > 0 || def.Query == "" {
		return nil
	}
	cols, err := flow.QueryColumns(ctx, def.Query)
	if err != nil {
		return err
	}
	for _, col := range cols {
		if err := body.ItemBand().AddElement(model.NewTextField(col)); err != nil {
			return err
		}
		if err := body.DetailsHeader().AddElement(model.NewLabel(col)); err != nil {
			return err
		}
	}
	flow.Logger().WithField("report", def.Name()).WithField("columns", len(cols)).Debug("item band generated")
	return nil
}

// GroupFieldsNormalizer drops group fields the report query does not
// produce.
type GroupFieldsNormalizer struct {
	*BasePreProcessor
}

func NewGroupFieldsNormalizer() *GroupFieldsNormalizer {
	return &GroupFieldsNormalizer{NewBasePreProcessor(GroupFieldsNormalizerName, "remove group fields that are not query columns")}
}

func (p *GroupFieldsNormalizer) PerformPreProcessing(ctx context.Context, report *model.MasterReport, flow Flow) (*model.MasterReport, error) {
	return report, p.normalize(ctx, &report.ReportDefinition, flow)
}

func (p *GroupFieldsNormalizer) PerformSubReportPreProcessing(ctx context.Context, report *model.SubReport, flow Flow) (*model.SubReport, error) {
	return report, p.normalize(ctx, &report.ReportDefinition, flow)
}

func (p *GroupFieldsNormalizer) normalize(ctx context.Context, def *model.ReportDefinition, flow Flow) error {
	if def.Query == "" {
		return nil
	}
	cols, err := flow.QueryColumns(ctx, def.Query)
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(cols))
	for _, c := range cols {
		known[c] = true
	}
	for _, g := range def.Groups() {
		var kept []string
		for _, f := range g.Fields() {
			if known[f] {
				kept = append(kept, f)
				continue
			}
			flow.Warn("group %s: field %s is not a column of query %s", g.Name(), f, def.Query)
		}
		g.SetFields(kept...)
	}
	return nil
}

// CrosstabNormalizer removes repeated dimensions and gives measures without
// an aggregation the sum aggregation.
type CrosstabNormalizer struct {
	*BasePreProcessor
}

func NewCrosstabNormalizer() *CrosstabNormalizer {
	return &CrosstabNormalizer{NewBasePreProcessor(CrosstabNormalizerName, "deduplicate crosstab dimensions and default measure aggregation")}
}

func (p *CrosstabNormalizer) PerformPreProcessing(_ context.Context, report *model.MasterReport, flow Flow) (*model.MasterReport, error) {
	normalizeCrosstabs(report, flow)
	return report, nil
}

func (p *CrosstabNormalizer) PerformSubReportPreProcessing(_ context.Context, report *model.SubReport, flow Flow) (*model.SubReport, error) {
	normalizeCrosstabs(report, flow)
	return report, nil
}

func normalizeCrosstabs(report model.Report, flow Flow) {
	for _, ct := range model.FindAll[*model.CrosstabElement](report) {
		seen := make(map[string]bool)
		ct.RowDimensions = dedupe(ct.RowDimensions, seen, func(field string) {
			flow.Warn("crosstab %s: row dimension %s is repeated", ct.Name(), field)
		})
		ct.ColumnDimensions = dedupe(ct.ColumnDimensions, seen, func(field string) {
			flow.Warn("crosstab %s: column dimension %s is already used", ct.Name(), field)
		})
		for i := range ct.Measures {
			if ct.Measures[i].Aggregation == "" {
				ct.Measures[i].Aggregation = model.AggregateSum
			}
		}
	}
}

func dedupe(dims []model.Dimension, seen map[string]bool, dropped func(string)) []model.Dimension {
	var out []model.Dimension
	for _, d := range dims {
		if seen[d.Field] {
			dropped(d.Field)
			continue
		}
		seen[d.Field] = true
		out = append(out, d)
	}
	return out
}

// CompatibilityPreProcessor rewrites reports written for engine versions
// below a threshold. Elements carrying the legacy visibility attribute set
// to false are removed.
type CompatibilityPreProcessor struct {
	*BasePreProcessor
	threshold string
}

func NewCompatibilityPreProcessor(threshold string) *CompatibilityPreProcessor {
	return &CompatibilityPreProcessor{
		BasePreProcessor: NewBasePreProcessor(CompatibilityName, "migrate reports written for older engine versions"),
		threshold:        ensureSemverPrefix(threshold),
	}
}

// Applies reports whether a report at level needs migration.
func (p *CompatibilityPreProcessor) Applies(level string, flow Flow) bool {
	level = strings.TrimSpace(level)
	if level == "" {
		return false
	}
	normalized := ensureSemverPrefix(level)
	if !semver.IsValid(normalized) {
		flow.Warn("invalid compatibility level %q, expected a version such as v1.2.0", level)
		return false
	}
	return semver.Compare(normalized, p.threshold) < 0
}

func (p *CompatibilityPreProcessor) PerformPreProcessing(_ context.Context, report *model.MasterReport, flow Flow) (*model.MasterReport, error) {
	if p.Applies(report.CompatibilityLevel, flow) {
		removeHidden(report, flow)
	}
	return report, nil
}

func (p *CompatibilityPreProcessor) PerformSubReportPreProcessing(_ context.Context, report *model.SubReport, flow Flow) (*model.SubReport, error) {
	if p.Applies(flow.CompatibilityLevel(), flow) {
		removeHidden(report, flow)
	}
	return report, nil
}

func removeHidden(report model.Report, flow Flow) {
	var hidden []model.Element
	model.Walk(report, func(e model.Element) error {
		if _, ok := e.(model.Report); ok && e.ID() != report.ID() {
			return model.SkipChildren
		}
		if legacyHidden(e) {
			hidden = append(hidden, e)
			return model.SkipChildren
		}
		return nil
	})
	for _, e := range hidden {
		e.SetAttribute(model.NamespaceLegacy, "visible", nil)
		if band, ok := e.Parent().(*model.Band); ok {
			band.RemoveElement(e)
			continue
		}
		// Structural bands cannot be removed; hide them instead.
		e.SetAttribute(model.NamespaceCore, "visible", false)
		flow.Warn("%s %s cannot be removed and was hidden", e.Type(), e.Name())
	}
}

func legacyHidden(e model.Element) bool {
	v, ok := e.Attribute(model.NamespaceLegacy, "visible")
	if !ok {
		return false
	}
	switch val := v.(type) {
	case bool:
		return !val
	case string:
		return strings.EqualFold(strings.TrimSpace(val), "false")
	}
	return false
}

func ensureSemverPrefix(v string) string {
	if v == "" || strings.HasPrefix(v, "v") {
		return v
	}
	return fmt.Sprintf("v%s", v)
}

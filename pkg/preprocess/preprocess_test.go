package preprocess

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pingcap/report-engine/pkg/logutil"
	"github.com/pingcap/report-engine/pkg/model"
	"github.com/pingcap/report-engine/pkg/reporterr"
)

func newFlow() *StaticFlow {
	return &StaticFlow{
		Columns: map[string][]string{"orders": {"id", "region", "amount"}},
		Log:     logutil.Discard(),
	}
}

func fieldNames(b *model.Band) []string {
	var names []string
	for _, e := range b.Elements() {
		switch el := e.(type) {
		case *model.TextField:
			names = append(names, el.Field)
		case *model.Label:
			names = append(names, el.Text)
		}
	}
	return names
}

func TestAutoGenerator(t *testing.T) {
	r := model.NewMasterReport("orders")
	r.Query = "orders"

	out, err := NewAutoGenerator().PerformPreProcessing(context.Background(), r, newFlow())
	require.NoError(t, err)
	assert.Same(t, r, out)
	assert.Equal(t, []string{"id", "region", "amount"}, fieldNames(r.ItemBand()))
	assert.Equal(t, []string{"id", "region", "amount"}, fieldNames(r.DataBody().DetailsHeader()))

	// A band that already has content is left alone.
	_, err = NewAutoGenerator().PerformPreProcessing(context.Background(), r, newFlow())
	require.NoError(t, err)
	assert.Equal(t, 3, r.ItemBand().Len())

	sub := model.NewSubReport("lines")
	sub.Query = "missing"
	_, err = NewAutoGenerator().PerformSubReportPreProcessing(context.Background(), sub, newFlow())
	assert.True(t, errors.Is(err, reporterr.ErrDataFactory))
}

func TestGroupFieldsNormalizer(t *testing.T) {
	r := model.NewMasterReport("orders")
	r.Query = "orders"
	r.RootGroup().SetFields("region", "country")
	flow := newFlow()

	_, err := NewGroupFieldsNormalizer().PerformPreProcessing(context.Background(), r, flow)
	require.NoError(t, err)
	assert.Equal(t, []string{"region"}, r.RootGroup().Fields())
	assert.Equal(t, []string{"group default: field country is not a column of query orders"}, flow.Warnings())
}

func TestCrosstabNormalizer(t *testing.T) {
	r := model.NewMasterReport("orders")
	ct := model.NewCrosstab("matrix")
	ct.AddRowDimension("region")
	ct.AddRowDimension("region")
	ct.AddColumnDimension("region")
	ct.AddColumnDimension("year")
	ct.AddMeasure("amount", "")
	ct.AddMeasure("id", model.AggregateCount)
	require.NoError(t, r.ReportFooter().AddElement(ct))
	flow := newFlow()

	_, err := NewCrosstabNormalizer().PerformPreProcessing(context.Background(), r, flow)
	require.NoError(t, err)
	assert.Equal(t, []model.Dimension{{Field: "region"}}, ct.RowDimensions)
	assert.Equal(t, []model.Dimension{{Field: "year"}}, ct.ColumnDimensions)
	assert.Equal(t, model.AggregateSum, ct.Measures[0].Aggregation)
	assert.Equal(t, model.AggregateCount, ct.Measures[1].Aggregation)
	assert.Len(t, flow.Warnings(), 2)
}

func TestCompatibilityPreProcessor(t *testing.T) {
	build := func(level string) (*model.MasterReport, *model.Label) {
		r := model.NewMasterReport("orders")
		r.CompatibilityLevel = level
		hidden := model.NewLabel("old")
		hidden.SetAttribute(model.NamespaceLegacy, "visible", "false")
		require.NoError(t, r.ReportHeader().AddElement(hidden))
		require.NoError(t, r.ReportHeader().AddElement(model.NewLabel("kept")))
		r.PageFooter().SetAttribute(model.NamespaceLegacy, "visible", false)
		return r, hidden
	}
	p := NewCompatibilityPreProcessor(LegacyVisibilityLevel)

	tests := []struct {
		level   string
		migrate bool
	}{
		{"1.4.2", true},
		{"v1.9", true},
		{"v2.0.0", false},
		{"", false},
		{"not-a-version", false},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			r, hidden := build(tt.level)
			flow := newFlow()
			_, err := p.PerformPreProcessing(context.Background(), r, flow)
			require.NoError(t, err)
			if !tt.migrate {
				assert.Equal(t, 2, r.ReportHeader().Len())
				return
			}
			assert.Equal(t, 1, r.ReportHeader().Len())
			assert.Nil(t, hidden.Parent())
			visible, _ := r.PageFooter().Attribute(model.NamespaceCore, "visible")
			assert.Equal(t, false, visible)
			assert.Len(t, flow.Warnings(), 1)
		})
	}

	sub := model.NewSubReport("lines")
	gone := model.NewLabel("gone")
	gone.SetAttribute(model.NamespaceLegacy, "visible", false)
	require.NoError(t, sub.ItemBand().AddElement(gone))
	flow := newFlow()
	flow.Level = "v1.0.0"
	_, err := p.PerformSubReportPreProcessing(context.Background(), sub, flow)
	require.NoError(t, err)
	assert.Equal(t, 0, sub.ItemBand().Len())
}

type replacing struct {
	*BasePreProcessor
	with *model.MasterReport
}

func (p *replacing) PerformPreProcessing(context.Context, *model.MasterReport, Flow) (*model.MasterReport, error) {
	return p.with, nil
}

func TestRegistryAndRun(t *testing.T) {
	reg := DefaultRegistry()
	assert.Equal(t, []string{AutoGeneratorName, CompatibilityName, CrosstabNormalizerName, GroupFieldsNormalizerName}, reg.Names())
	assert.Error(t, reg.Register(AutoGeneratorName, nil))

	replacement := model.NewMasterReport("replacement")
	require.NoError(t, reg.Register("replace", func() ReportPreProcessor {
		return &replacing{BasePreProcessor: NewBasePreProcessor("replace", "swap the report"), with: replacement}
	}))

	procs, err := reg.Resolve([]string{"replace", AutoGeneratorName})
	require.NoError(t, err)
	require.Len(t, procs, 2)

	out, err := Run(context.Background(), model.NewMasterReport("orders"), newFlow(), procs)
	require.NoError(t, err)
	assert.Same(t, replacement, out)

	_, err = reg.Resolve([]string{"unknown"})
	assert.True(t, errors.Is(err, reporterr.ErrDefinition))

	nilProc := &replacing{BasePreProcessor: NewBasePreProcessor("nil", "")}
	_, err = Run(context.Background(), model.NewMasterReport("orders"), newFlow(), []ReportPreProcessor{nilProc})
	assert.True(t, errors.Is(err, reporterr.ErrInvalidState))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Run(ctx, model.NewMasterReport("orders"), newFlow(), procs)
	assert.True(t, errors.Is(err, reporterr.ErrInterrupted))

	sub := model.NewSubReport("lines")
	sub.Query = "orders"
	out2, err := RunSubReport(context.Background(), sub, newFlow(), procs)
	require.NoError(t, err)
	assert.Same(t, sub, out2)
	assert.Equal(t, 3, sub.ItemBand().Len())
}

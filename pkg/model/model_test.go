package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pingcap/report-engine/pkg/datafactory"
	"github.com/pingcap/report-engine/pkg/parameters"
	"github.com/pingcap/report-engine/pkg/reporterr"
)

func TestNewMasterReportLayout(t *testing.T) {
	r := NewMasterReport("sales")
	assert.Equal(t, TypeMasterReport, r.Type())
	assert.NotEmpty(t, r.ID())
	assert.Nil(t, r.Parent())

	assert.Equal(t, TypeReportHeader, r.ReportHeader().Type())
	assert.Equal(t, TypeWatermark, r.Watermark().Type())
	assert.Same(t, r, r.ReportHeader().Parent())

	groups := r.Groups()
	require.Len(t, groups, 1)
	assert.Equal(t, DefaultGroupName, groups[0].Name())
	assert.Empty(t, groups[0].Fields())

	body := r.DataBody()
	require.NotNil(t, body)
	assert.Equal(t, TypeItemBand, body.ItemBand().Type())
	assert.Equal(t, TypeNoDataBand, r.NoDataBand().Type())
	assert.Same(t, body, r.ItemBand().Parent())
}

func TestBandAddElement(t *testing.T) {
	outer := NewItemBand()
	inner := NewBand(TypeBand)
	field := NewTextField("amount")

	require.NoError(t, outer.AddElement(inner))
	require.NoError(t, inner.AddElement(field))
	assert.Same(t, inner, field.Parent())

	assert.ErrorIs(t, NewItemBand().AddElement(field), ErrElementHasParent)
	assert.ErrorIs(t, inner.AddElement(inner), ErrCyclicStructure)
	assert.ErrorIs(t, inner.AddElement(outer), ErrCyclicStructure)

	elems := inner.Elements()
	elems[0] = nil
	assert.Equal(t, 1, inner.Len())

	assert.True(t, inner.RemoveElement(field))
	assert.Nil(t, field.Parent())
	assert.False(t, inner.RemoveElement(field))
	require.NoError(t, NewItemBand().AddElement(field))
}

func TestAttributes(t *testing.T) {
	l := NewLabel("Total")
	l.SetAttribute(NamespaceCore, "visible", true)
	v, ok := l.Attribute(NamespaceCore, "visible")
	assert.True(t, ok)
	assert.Equal(t, true, v)

	_, ok = l.Attribute(NamespaceLegacy, "visible")
	assert.False(t, ok)

	attrs := l.Attributes()
	delete(attrs, AttributeKey{Namespace: NamespaceCore, Name: "visible"})
	_, ok = l.Attribute(NamespaceCore, "visible")
	assert.True(t, ok)

	l.SetAttribute(NamespaceCore, "visible", nil)
	assert.Empty(t, l.Attributes())
}

func TestGroups(t *testing.T) {
	r := NewMasterReport("sales")
	r.RootGroup().SetName("region")
	r.RootGroup().SetFields("region")
	label := NewLabel("row")
	require.NoError(t, r.ItemBand().AddElement(label))

	city := NewGroup("city", "region", "city")
	require.NoError(t, r.AddGroup(city))
	store := NewGroup("store", "store")
	require.NoError(t, r.AddGroup(store))

	assert.Equal(t, []string{"region", "city", "store"}, groupNames(r.Groups()))
	assert.Same(t, store, r.InnermostGroup())
	assert.Equal(t, []string{"region", "city", "store"}, store.EffectiveFields())
	assert.Same(t, label, r.ItemBand().Elements()[0])
	assert.Same(t, store, r.DataBody().Parent())

	assert.ErrorIs(t, r.AddGroup(city), ErrElementHasParent)
	assert.ErrorContains(t, r.AddGroup(NewGroup("city")), "already exists")

	require.NoError(t, r.RemoveGroup("city"))
	assert.Equal(t, []string{"region", "store"}, groupNames(r.Groups()))
	assert.Nil(t, city.Parent())
	assert.Equal(t, []string{"region", "store"}, store.EffectiveFields())

	require.NoError(t, r.RemoveGroup("region"))
	assert.Same(t, store, r.RootGroup())
	assert.Same(t, r, store.Parent())
	assert.Same(t, label, r.ItemBand().Elements()[0])

	assert.ErrorContains(t, r.RemoveGroup("store"), "only group")
	assert.ErrorContains(t, r.RemoveGroup("nope"), "not found")
}

func groupNames(groups []*Group) []string {
	names := make([]string, len(groups))
	for i, g := range groups {
		names[i] = g.Name()
	}
	return names
}

func sampleReport(t *testing.T) (*MasterReport, *SubReport, *CrosstabElement) {
	r := NewMasterReport("orders")
	r.Query = "orders"
	r.DataFactory = datafactory.NewTableDataFactory()
	r.Parameters.Add(&parameters.Parameter{Name: "year", Type: parameters.TypeInt})
	r.ReportHeader().SetAttribute(NamespaceCore, "tags", []string{"a", "b"})
	require.NoError(t, r.ReportHeader().AddElement(NewLabel("Orders")))
	require.NoError(t, r.ItemBand().AddElement(NewTextField("id")))

	sub := NewSubReport("lines")
	sub.Query = "lines"
	sub.AddImport("id", "order_id")
	require.NoError(t, sub.ItemBand().AddElement(NewTextField("sku")))
	require.NoError(t, r.ItemBand().AddElement(sub))

	ct := NewCrosstab("matrix")
	ct.AddRowDimension("region")
	ct.AddColumnDimension("year")
	ct.AddMeasure("amount", AggregateSum)
	require.NoError(t, r.ReportFooter().AddElement(ct))
	return r, sub, ct
}

func TestWalkAndFind(t *testing.T) {
	r, sub, ct := sampleReport(t)

	var types []ElementType
	require.NoError(t, Walk(r, func(e Element) error {
		types = append(types, e.Type())
		if e.Type() == TypeSubReport {
			return SkipChildren
		}
		return nil
	}))
	assert.Equal(t, TypeMasterReport, types[0])
	assert.Contains(t, types, TypeSubReport)
	assert.Contains(t, types, TypeCrosstabCell)
	assert.Equal(t, 1, countType(types, TypeItemBand))

	var all []ElementType
	require.NoError(t, Walk(r, func(e Element) error {
		all = append(all, e.Type())
		return nil
	}))
	assert.Equal(t, 2, countType(all, TypeItemBand))

	stop := errors.New("stop")
	assert.ErrorIs(t, Walk(r, func(Element) error { return stop }), stop)

	assert.Same(t, sub, FindByName(r, "lines"))
	assert.Same(t, ct, FindByID(r, ct.ID()))
	assert.Nil(t, FindByName(r, "missing"))
	assert.Same(t, sub.ItemBand().Elements()[0], FindByName(r, "sku"))

	assert.Len(t, FindAll[*TextField](r), 1)
	assert.Len(t, FindAll[*TextField](sub), 1)
	assert.Equal(t, []*SubReport{sub}, FindAll[*SubReport](r))
	assert.Equal(t, []*CrosstabElement{ct}, FindAll[*CrosstabElement](r))

	assert.Same(t, r, ReportOf(sub))
	assert.Same(t, sub, ReportOf(sub.ItemBand()))
	assert.Nil(t, ReportOf(r))
}

func countType(types []ElementType, typ ElementType) int {
	n := 0
	for _, t := range types {
		if t == typ {
			n++
		}
	}
	return n
}

func TestClone(t *testing.T) {
	r, sub, _ := sampleReport(t)
	r.CompatibilityLevel = "v1.0.0"

	c, err := r.Clone()
	require.NoError(t, err)
	assert.NotEqual(t, r.ID(), c.ID())
	assert.Equal(t, "orders", c.Name())
	assert.Equal(t, "v1.0.0", c.CompatibilityLevel)
	assert.NotSame(t, r.DataFactory, c.DataFactory)
	assert.NotNil(t, c.DataFactory)

	tags, ok := c.ReportHeader().Attribute(NamespaceCore, "tags")
	require.True(t, ok)
	tags.([]string)[0] = "changed"
	orig, _ := r.ReportHeader().Attribute(NamespaceCore, "tags")
	assert.Equal(t, []string{"a", "b"}, orig)

	c.Parameters.Add(&parameters.Parameter{Name: "extra"})
	assert.Len(t, r.Parameters.Parameters, 1)

	csub, ok := FindByName(c, "lines").(*SubReport)
	require.True(t, ok)
	assert.NotSame(t, sub, csub)
	assert.Equal(t, sub.Imports, csub.Imports)
	assert.Same(t, c, ReportOf(csub))
	assert.Same(t, c, c.RootGroup().Parent())

	require.NoError(t, c.ItemBand().AddElement(NewLabel("extra")))
	assert.Equal(t, 2, r.ItemBand().Len())
	assert.Equal(t, 3, c.ItemBand().Len())

	sc, err := sub.Clone()
	require.NoError(t, err)
	assert.Nil(t, sc.Parent())
	assert.Equal(t, "lines", sc.Query)
}

func TestValidateStructure(t *testing.T) {
	r, sub, ct := sampleReport(t)
	assert.Empty(t, r.ValidateStructure())

	r.SetName("")
	sub.Query = ""
	ct.ColumnDimensions = nil
	ct.Measures = []Measure{{Field: "amount", Aggregation: "median"}}
	require.NoError(t, r.AddGroup(NewGroup("")))
	dup := NewGroup("dup")
	require.NoError(t, r.AddGroup(dup))
	dup.SetName(DefaultGroupName)

	errs := r.ValidateStructure()
	var msgs []string
	for _, err := range errs {
		assert.True(t, errors.Is(err, reporterr.ErrDefinition))
		msgs = append(msgs, err.Error())
	}
	assert.Contains(t, msgs, "definition: master-report: report has no name")
	assert.Contains(t, msgs, "definition: sub-report lines: sub-report has no query")
	assert.Contains(t, msgs, "definition: crosstab matrix: crosstab has no column dimension")
	assert.Contains(t, msgs, `definition: crosstab matrix: measure amount has unknown aggregation "median"`)
	assert.Contains(t, msgs, "definition: relational-group: group has no name")
	assert.Contains(t, msgs, `definition: relational-group default: duplicate group name "default"`)
	assert.Len(t, errs, 6)
}

func TestMeasureLabelAndMappings(t *testing.T) {
	assert.Equal(t, "sum(amount)", Measure{Field: "amount", Aggregation: AggregateSum}.Label())
	assert.Equal(t, "total", Measure{Field: "amount", Name: "total"}.Label())
	assert.False(t, Aggregation("median").Valid())

	s := NewSubReport("s")
	assert.False(t, s.ImportsAll())
	s.AddImport(ImportAll, "")
	assert.True(t, s.ImportsAll())
	assert.Equal(t, "id", ParameterMapping{Name: "id"}.Target())
	assert.Equal(t, "order_id", ParameterMapping{Name: "id", Alias: "order_id"}.Target())
}

package model

import "fmt"

// Aggregation computes a crosstab measure from the rows of a cell.
type Aggregation string

const (
	AggregateSum   Aggregation = "sum"
	AggregateCount Aggregation = "count"
	AggregateMin   Aggregation = "min"
	AggregateMax   Aggregation = "max"
	AggregateAvg   Aggregation = "avg"
)

// Valid reports whether a is a known aggregation.
func (a Aggregation) Valid() bool {
	switch a {
	case AggregateSum, AggregateCount, AggregateMin, AggregateMax, AggregateAvg:
		return true
	}
	return false
}

// Dimension is a row or column axis of a crosstab.
type Dimension struct {
	Field string
	// Title is shown in the header cell; defaults to Field.
	Title string
}

// Measure is a value aggregated into each crosstab cell.
type Measure struct {
	Field       string
	Aggregation Aggregation
	Name        string
}

// Label returns the name of the measure column.
func (m Measure) Label() string {
	if m.Name != "" {
		return m.Name
	}
	return fmt.Sprintf("%s(%s)", m.Aggregation, m.Field)
}

// CrosstabElement cross-tabulates rows by row and column dimensions.
type CrosstabElement struct {
	BaseElement
	RowDimensions    []Dimension
	ColumnDimensions []Dimension
	Measures         []Measure
	// Query optionally names a query of its own; the report query is used
	// when empty.
	Query string
	title *Band
}

// NewCrosstab creates an empty crosstab.
func NewCrosstab(name string) *CrosstabElement {
	c := &CrosstabElement{}
	c.init(c, TypeCrosstab)
	c.SetName(name)
	c.title = NewBand(TypeCrosstabCell)
	mustAdopt(c, c.title)
	return c
}

// Title is the band rendered above the crosstab.
func (c *CrosstabElement) Title() *Band { return c.title }

func (c *CrosstabElement) AddRowDimension(field string) {
	c.RowDimensions = append(c.RowDimensions, Dimension{Field: field})
}

func (c *CrosstabElement) AddColumnDimension(field string) {
	c.ColumnDimensions = append(c.ColumnDimensions, Dimension{Field: field})
}

func (c *CrosstabElement) AddMeasure(field string, agg Aggregation) {
	c.Measures = append(c.Measures, Measure{Field: field, Aggregation: agg})
}

func (c *CrosstabElement) children() []Element {
	return []Element{c.title}
}

package datafactory

import (
	"context"
	"errors"
	"fmt"

	"github.com/pingcap/report-engine/pkg/reporterr"
	"github.com/pingcap/report-engine/pkg/table"
)

// CompoundDataFactorySupport is implemented by factories composed of other
// factories. Static queries are names a child declares in QueryNames; free-form
// queries are anything else a child accepts.
type CompoundDataFactorySupport interface {
	DataFactory
	IsStaticQueryExecutable(query string, params table.DataRow) bool
	IsFreeFormQueryExecutable(query string, params table.DataRow) bool
	QueryStatic(ctx context.Context, query string, params table.DataRow) (*table.TableModel, error)
	QueryFreeForm(ctx context.Context, query string, params table.DataRow) (*table.TableModel, error)
	// DataFactoryForQuery returns the child that would run query, or nil.
	DataFactoryForQuery(query string, params table.DataRow, freeForm bool) DataFactory
	Size() int
	Get(i int) DataFactory
}

// CompoundDataFactory routes each query to the first child able to run it.
type CompoundDataFactory struct {
	factories []DataFactory
}

// NewCompoundDataFactory creates a compound factory. Nested compound factories
// are flattened.
func NewCompoundDataFactory(factories ...DataFactory) *CompoundDataFactory {
	c := &CompoundDataFactory{}
	for _, f := range factories {
		c.Add(f)
	}
	return c
}

// Add appends a child. Adding a compound factory appends its children.
func (c *CompoundDataFactory) Add(f DataFactory) {
	if f == nil {
		return
	}
	if nested, ok := f.(*CompoundDataFactory); ok {
		c.factories = append(c.factories, nested.factories...)
		return
	}
	c.factories = append(c.factories, f)
}

func (c *CompoundDataFactory) Size() int { return len(c.factories) }

func (c *CompoundDataFactory) Get(i int) DataFactory { return c.factories[i] }

// Initialize initializes every child. On failure the children initialized so
// far are closed again.
func (c *CompoundDataFactory) Initialize(ctx context.Context, dfc DataFactoryContext) error {
	for i, f := range c.factories {
		if err := f.Initialize(ctx, dfc); err != nil {
			for _, done := range c.factories[:i] {
				done.Close()
			}
			return fmt.Errorf("failed to initialize data factory %d: %w", i, err)
		}
	}
	return nil
}

func (c *CompoundDataFactory) QueryNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, f := range c.factories {
		for _, n := range f.QueryNames() {
			if !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	}
	return names
}

func (c *CompoundDataFactory) IsQueryExecutable(query string, params table.DataRow) bool {
	return c.IsStaticQueryExecutable(query, params) || c.IsFreeFormQueryExecutable(query, params)
}

func (c *CompoundDataFactory) IsStaticQueryExecutable(query string, params table.DataRow) bool {
	return c.DataFactoryForQuery(query, params, false) != nil
}

func (c *CompoundDataFactory) IsFreeFormQueryExecutable(query string, params table.DataRow) bool {
	return c.DataFactoryForQuery(query, params, true) != nil
}

func (c *CompoundDataFactory) DataFactoryForQuery(query string, params table.DataRow, freeForm bool) DataFactory {
	for _, f := range c.factories {
		if freeForm {
			if f.IsQueryExecutable(query, params) {
				return f
			}
			continue
		}
		if contains(f.QueryNames(), query) && f.IsQueryExecutable(query, params) {
			return f
		}
	}
	return nil
}

func (c *CompoundDataFactory) QueryStatic(ctx context.Context, query string, params table.DataRow) (*table.TableModel, error) {
	f := c.DataFactoryForQuery(query, params, false)
	if f == nil {
		return nil, reporterr.Newf(reporterr.KindDataFactory, "query "+query, "no data factory declares this query")
	}
	return f.QueryData(ctx, query, params)
}

func (c *CompoundDataFactory) QueryFreeForm(ctx context.Context, query string, params table.DataRow) (*table.TableModel, error) {
	f := c.DataFactoryForQuery(query, params, true)
	if f == nil {
		return nil, reporterr.Newf(reporterr.KindDataFactory, "query "+query, "no data factory accepts this query")
	}
	return f.QueryData(ctx, query, params)
}

// QueryData tries static queries before free-form ones.
func (c *CompoundDataFactory) QueryData(ctx context.Context, query string, params table.DataRow) (*table.TableModel, error) {
	if c.IsStaticQueryExecutable(query, params) {
		return c.QueryStatic(ctx, query, params)
	}
	return c.QueryFreeForm(ctx, query, params)
}

func (c *CompoundDataFactory) Derive() DataFactory {
	d := &CompoundDataFactory{factories: make([]DataFactory, len(c.factories))}
	for i, f := range c.factories {
		d.factories[i] = f.Derive()
	}
	return d
}

func (c *CompoundDataFactory) Close() error {
	var errs []error
	for _, f := range c.factories {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

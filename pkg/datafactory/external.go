package datafactory

import (
	"context"

	"github.com/pingcap/report-engine/pkg/reporterr"
	"github.com/pingcap/report-engine/pkg/table"
)

// ExternalDataFactory is implemented by factories whose data is supplied at
// run time through the parameters instead of being declared up front.
type ExternalDataFactory interface {
	DataFactory
	// ResolvesFromParameters marks the factory as external.
	ResolvesFromParameters()
}

// ExternalQueryDataFactory treats the query as a parameter name. A
// *table.TableModel parameter value is returned as the result; a string value
// is run as a query on the delegate factory.
type ExternalQueryDataFactory struct {
	delegate DataFactory
}

// NewExternalQueryDataFactory creates an external factory. delegate may be nil
// when only table values are expected.
func NewExternalQueryDataFactory(delegate DataFactory) *ExternalQueryDataFactory {
	return &ExternalQueryDataFactory{delegate: delegate}
}

func (f *ExternalQueryDataFactory) ResolvesFromParameters() {}

func (f *ExternalQueryDataFactory) Initialize(ctx context.Context, dfc DataFactoryContext) error {
	if f.delegate == nil {
		return nil
	}
	return f.delegate.Initialize(ctx, dfc)
}

func (f *ExternalQueryDataFactory) QueryNames() []string { return nil }

func (f *ExternalQueryDataFactory) IsQueryExecutable(query string, params table.DataRow) bool {
	if params == nil {
		return false
	}
	v, ok := params.Get(query)
	if !ok {
		return false
	}
	switch val := v.(type) {
	case *table.TableModel:
		return val != nil
	case string:
		return f.delegate != nil && f.delegate.IsQueryExecutable(val, params)
	default:
		return false
	}
}

func (f *ExternalQueryDataFactory) QueryData(ctx context.Context, query string, params table.DataRow) (*table.TableModel, error) {
	op := "query " + query
	if err := ctx.Err(); err != nil {
		return nil, reporterr.Interrupted(op, err)
	}
	var v any
	if params != nil {
		v, _ = params.Get(query)
	}
	switch val := v.(type) {
	case *table.TableModel:
		if val == nil {
			break
		}
		return val.Limit(QueryLimit(params)), nil
	case string:
		if f.delegate == nil {
			return nil, reporterr.Newf(reporterr.KindDataFactory, op, "no delegate factory for query %q", val)
		}
		return f.delegate.QueryData(ctx, val, params)
	}
	return nil, reporterr.Newf(reporterr.KindDataFactory, op, "parameter does not hold a table or query")
}

func (f *ExternalQueryDataFactory) Derive() DataFactory {
	if f.delegate == nil {
		return NewExternalQueryDataFactory(nil)
	}
	return NewExternalQueryDataFactory(f.delegate.Derive())
}

func (f *ExternalQueryDataFactory) Close() error {
	if f.delegate == nil {
		return nil
	}
	return f.delegate.Close()
}

package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/pingcap/report-engine/pkg/datafactory"
	"github.com/pingcap/report-engine/pkg/table"
)

// flow exposes the processing state to pre-processors.
type flow struct {
	run     *run
	factory datafactory.DataFactory
	params  table.DataRow

	mu      sync.Mutex
	columns map[string][]string
}

func (r *run) newFlow(factory datafactory.DataFactory, params table.DataRow) *flow {
	return &flow{run: r, factory: factory, params: params, columns: make(map[string][]string)}
}

func (f *flow) Parameters() table.DataRow { return f.params }

// QueryColumns runs query with a limit of one row and returns its columns.
func (f *flow) QueryColumns(ctx context.Context, query string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cols, ok := f.columns[query]; ok {
		return cols, nil
	}
	params := table.Merge(f.params, table.NewStaticDataRow(map[string]any{datafactory.ParamQueryLimit: 1}))
	tm, err := f.run.query(ctx, f.factory, query, params)
	if err != nil {
		return nil, err
	}
	f.columns[query] = tm.Columns()
	return f.columns[query], nil
}

func (f *flow) CompatibilityLevel() string { return f.run.master.CompatibilityLevel }

func (f *flow) Warn(format string, args ...any) {
	f.run.warn(fmt.Sprintf(format, args...))
}

func (f *flow) Logger() logrus.FieldLogger { return f.run.log }

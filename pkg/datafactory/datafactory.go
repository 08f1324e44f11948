// Copyright 2024 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

// Package datafactory defines how reports obtain tabular data. A DataFactory
// executes named (or free-form) queries against one data source; compound and
// external factories route queries to other factories.
package datafactory

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pingcap/report-engine/pkg/config"
	"github.com/pingcap/report-engine/pkg/formula"
	"github.com/pingcap/report-engine/pkg/logutil"
	"github.com/pingcap/report-engine/pkg/resource"
	"github.com/pingcap/report-engine/pkg/table"
)

// Reserved parameter names that carry query options.
const (
	ParamQueryLimit   = "::query-limit"
	ParamQueryTimeout = "::query-timeout"
)

// DataFactory executes queries against a data source.
//
// A factory must be initialized before it is queried and closed afterwards.
// Factories attached to a report definition are templates: the engine works
// on a derived copy so one definition can be processed concurrently.
type DataFactory interface {
	// Initialize connects the factory to its runtime environment.
	Initialize(ctx context.Context, dfc DataFactoryContext) error
	// QueryNames returns the named queries the factory knows.
	QueryNames() []string
	// IsQueryExecutable reports whether QueryData could run query.
	IsQueryExecutable(query string, params table.DataRow) bool
	// QueryData runs query with the given parameters.
	QueryData(ctx context.Context, query string, params table.DataRow) (*table.TableModel, error)
	// Derive returns an uninitialized copy sharing only immutable state.
	Derive() DataFactory
	// Close releases resources acquired by Initialize.
	Close() error
}

// DataFactoryContext is the runtime environment handed to Initialize.
type DataFactoryContext interface {
	Configuration() config.Configuration
	ResourceManager() resource.Manager
	// ContextKey is the key of the report the factory belongs to. Relative
	// resource paths are resolved against it.
	ContextKey() resource.Key
	FormulaContext() formula.Context
	Logger() logrus.FieldLogger
}

// FieldReferencer is implemented by factories that know which parameters a
// query reads. Caches use it to build narrow keys.
type FieldReferencer interface {
	ReferencedFields(query string, params table.DataRow) []string
}

// FactoryContext is the default DataFactoryContext.
type FactoryContext struct {
	Config    config.Configuration
	Resources resource.Manager
	Key       resource.Key
	Formula   formula.Context
	Log       logrus.FieldLogger
}

func (c *FactoryContext) Configuration() config.Configuration {
	if c.Config == nil {
		return config.NewProperties(nil)
	}
	return c.Config
}

func (c *FactoryContext) ResourceManager() resource.Manager {
	if c.Resources == nil {
		return resource.MapManager{}
	}
	return c.Resources
}

func (c *FactoryContext) ContextKey() resource.Key { return c.Key }

func (c *FactoryContext) FormulaContext() formula.Context {
	if c.Formula == nil {
		return formula.NewMapContext("", nil)
	}
	return c.Formula
}

func (c *FactoryContext) Logger() logrus.FieldLogger { return logutil.Or(c.Log) }

// QueryLimit returns the row limit requested through params; 0 means no limit.
func QueryLimit(params table.DataRow) int {
	if params == nil {
		return 0
	}
	v, ok := params.Get(ParamQueryLimit)
	if !ok {
		return 0
	}
	n, err := toInt(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// QueryTimeout returns the timeout requested through params; 0 means none.
// Numbers are seconds.
func QueryTimeout(params table.DataRow) time.Duration {
	if params == nil {
		return 0
	}
	v, ok := params.Get(ParamQueryTimeout)
	if !ok {
		return 0
	}
	switch t := v.(type) {
	case time.Duration:
		return t
	case string:
		if d, err := time.ParseDuration(t); err == nil {
			return d
		}
	}
	n, err := toInt(v)
	if err != nil || n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}

// WithQueryTimeout derives a context that expires after the query timeout.
func WithQueryTimeout(ctx context.Context, params table.DataRow) (context.Context, context.CancelFunc) {
	if d := QueryTimeout(params); d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		return strconv.Atoi(strings.TrimSpace(n))
	default:
		return 0, fmt.Errorf("not a number: %v", v)
	}
}

func logger(dfc DataFactoryContext) logrus.FieldLogger {
	if dfc == nil {
		return logutil.Log
	}
	return dfc.Logger()
}

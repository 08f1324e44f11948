package parameters

import (
	"github.com/pingcap/report-engine/pkg/config"
	"github.com/pingcap/report-engine/pkg/datafactory"
	"github.com/pingcap/report-engine/pkg/formula"
	"github.com/pingcap/report-engine/pkg/resource"
	"github.com/pingcap/report-engine/pkg/table"
)

// Context is the environment parameters are validated and defaulted in.
type Context interface {
	// DataFactory runs the queries of list parameters. It must be initialized.
	DataFactory() datafactory.DataFactory
	// ParameterData holds the values supplied so far.
	ParameterData() table.DataRow
	Configuration() config.Configuration
	ResourceManager() resource.Manager
	FormulaContext() formula.Context
}

// DefaultContext is a Context assembled from its parts. Nil parts get empty
// defaults.
type DefaultContext struct {
	Factory   datafactory.DataFactory
	Values    table.DataRow
	Config    config.Configuration
	Resources resource.Manager
	Formula   formula.Context
}

func (c *DefaultContext) DataFactory() datafactory.DataFactory {
	if c.Factory == nil {
		return datafactory.NewTableDataFactory()
	}
	return c.Factory
}

func (c *DefaultContext) ParameterData() table.DataRow {
	if c.Values == nil {
		return table.EmptyDataRow
	}
	return c.Values
}

func (c *DefaultContext) Configuration() config.Configuration {
	if c.Config == nil {
		return config.NewProperties(nil)
	}
	return c.Config
}

func (c *DefaultContext) ResourceManager() resource.Manager {
	if c.Resources == nil {
		return resource.MapManager{}
	}
	return c.Resources
}

func (c *DefaultContext) FormulaContext() formula.Context {
	if c.Formula == nil {
		return formula.NewMapContext("", nil)
	}
	return c.Formula
}

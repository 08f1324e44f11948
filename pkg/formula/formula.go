// Package formula is the boundary to the formula evaluator. Reports and
// parameters only ever talk to a Context; MapContext understands field
// references and literals, which is what default values and simple report
// expressions need.
package formula

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pingcap/report-engine/pkg/table"
)

// ErrUnsupportedExpression is returned for formulas MapContext cannot evaluate.
var ErrUnsupportedExpression = errors.New("unsupported formula expression")

// Context evaluates formulas against a data row.
type Context interface {
	// Resolve returns a value from the context itself, e.g. an environment value.
	Resolve(name string) (any, bool)
	// Evaluate evaluates expr. Field references are looked up in row first.
	Evaluate(expr string, row table.DataRow) (any, error)
	// Locale returns the locale formulas are evaluated in.
	Locale() string
}

// MapContext evaluates "=[field]" references and constant literals.
type MapContext struct {
	values map[string]any
	locale string
}

// NewMapContext creates a context with the given environment values.
func NewMapContext(locale string, values map[string]any) *MapContext {
	c := &MapContext{values: make(map[string]any, len(values)), locale: locale}
	for k, v := range values {
		c.values[k] = v
	}
	return c
}

func (c *MapContext) Resolve(name string) (any, bool) {
	v, ok := c.values[name]
	return v, ok
}

func (c *MapContext) Locale() string {
	if c.locale == "" {
		return "en_US"
	}
	return c.locale
}

func (c *MapContext) Evaluate(expr string, row table.DataRow) (any, error) {
	e := strings.TrimSpace(expr)
	e = strings.TrimSpace(strings.TrimPrefix(e, "="))
	switch {
	case e == "":
		return nil, fmt.Errorf("%w: empty formula", ErrUnsupportedExpression)
	case strings.HasPrefix(e, "[") && strings.HasSuffix(e, "]"):
		name := strings.TrimSpace(e[1 : len(e)-1])
		if row != nil {
			if v, ok := row.Get(name); ok {
				return v, nil
			}
		}
		if v, ok := c.Resolve(name); ok {
			return v, nil
		}
		return nil, fmt.Errorf("unknown field %q", name)
	case strings.HasPrefix(e, `"`):
		s, err := strconv.Unquote(e)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedExpression, expr)
		}
		return s, nil
	case strings.EqualFold(e, "TRUE()") || strings.EqualFold(e, "TRUE"):
		return true, nil
	case strings.EqualFold(e, "FALSE()") || strings.EqualFold(e, "FALSE"):
		return false, nil
	}
	if i, err := strconv.ParseInt(e, 10, 64); err == nil {
		return i, nil
	}
	if f, err := strconv.ParseFloat(e, 64); err == nil {
		return f, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedExpression, expr)
}

// Expression is a named formula computed for every row of a report.
type Expression struct {
	Name    string
	Formula string
}

// Evaluate computes the expression for one row.
func (e Expression) Evaluate(ctx Context, row table.DataRow) (any, error) {
	v, err := ctx.Evaluate(e.Formula, row)
	if err != nil {
		return nil, fmt.Errorf("expression %s: %w", e.Name, err)
	}
	return v, nil
}

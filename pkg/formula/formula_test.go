package formula

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pingcap/report-engine/pkg/table"
)

func TestMapContextEvaluate(t *testing.T) {
	ctx := NewMapContext("", map[string]any{"env::user": "alice"})
	row := table.NewStaticDataRow(map[string]any{"amount": 12.5})

	tests := []struct {
		expr string
		want any
	}{
		{"=[amount]", 12.5},
		{"[ env::user ]", "alice"},
		{`="north"`, "north"},
		{"=42", int64(42)},
		{"=1.5", 1.5},
		{"=TRUE()", true},
		{"false", false},
	}
	for _, tt := range tests {
		got, err := ctx.Evaluate(tt.expr, row)
		require.NoError(t, err, tt.expr)
		assert.Equal(t, tt.want, got, tt.expr)
	}
	assert.Equal(t, "en_US", ctx.Locale())
}

func TestMapContextRejectsUnsupported(t *testing.T) {
	ctx := NewMapContext("de_DE", nil)

	_, err := ctx.Evaluate("=SUM([a];[b])", nil)
	assert.True(t, errors.Is(err, ErrUnsupportedExpression))

	_, err = ctx.Evaluate("=", nil)
	assert.True(t, errors.Is(err, ErrUnsupportedExpression))

	_, err = ctx.Evaluate("=[missing]", table.EmptyDataRow)
	assert.Error(t, err)
	assert.Equal(t, "de_DE", ctx.Locale())
}

func TestExpressionEvaluate(t *testing.T) {
	ctx := NewMapContext("", nil)
	e := Expression{Name: "copy", Formula: "=[x]"}

	v, err := e.Evaluate(ctx, table.NewStaticDataRow(map[string]any{"x": 3}))
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	_, err = e.Evaluate(ctx, table.EmptyDataRow)
	assert.ErrorContains(t, err, "expression copy")
}

package parameters

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pingcap/report-engine/pkg/table"
)

// Convert converts a raw value to typ. Strings are parsed, numeric values are
// widened to int64 or float64. Slices are converted element by element and
// returned as []any.
func Convert(raw any, typ ValueType) (any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []any:
		return convertAll(v, typ)
	case []string:
		items := make([]any, len(v))
		for i, s := range v {
			items[i] = s
		}
		return convertAll(items, typ)
	}
	return convertScalar(raw, typ)
}

func convertAll(items []any, typ ValueType) ([]any, error) {
	out := make([]any, 0, len(items))
	for _, item := range items {
		c, err := convertScalar(item, typ)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func convertScalar(raw any, typ ValueType) (any, error) {
	if s, ok := raw.(string); ok {
		return parseString(strings.TrimSpace(s), typ)
	}
	switch typ {
	case TypeString, "":
		return fmt.Sprint(raw), nil
	case TypeInt:
		switch v := raw.(type) {
		case int:
			return int64(v), nil
		case int32:
			return int64(v), nil
		case int64:
			return v, nil
		case uint32:
			return int64(v), nil
		case float64:
			if v == math.Trunc(v) {
				return int64(v), nil
			}
		}
	case TypeFloat:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		}
	case TypeBool:
		if b, ok := raw.(bool); ok {
			return b, nil
		}
	case TypeDate:
		if t, ok := raw.(time.Time); ok {
			return t, nil
		}
	default:
		return nil, fmt.Errorf("unknown parameter type %q", typ)
	}
	return nil, fmt.Errorf("cannot use %T as %s", raw, typ)
}

func parseString(s string, typ ValueType) (any, error) {
	if s == "" && typ != TypeString && typ != "" {
		return nil, nil
	}
	switch typ {
	case TypeString, "":
		return s, nil
	case TypeInt:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", s)
		}
		return n, nil
	case TypeFloat:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", s)
		}
		return f, nil
	case TypeBool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("%q is not a boolean", s)
		}
		return b, nil
	case TypeDate:
		t, err := table.ParseTime(s)
		if err != nil {
			return nil, fmt.Errorf("%q is not a date", s)
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unknown parameter type %q", typ)
	}
}

// equalValues compares two converted values of the same parameter type.
func equalValues(a, b any) bool {
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return a == b
}

package model

import (
	"github.com/pingcap/report-engine/pkg/reporterr"
)

func validateStructure(r Report) []error {
	var errs []error
	add := func(e Element, format string, args ...any) {
		errs = append(errs, reporterr.Newf(reporterr.KindDefinition, describe(e), format, args...))
	}

	if r.Name() == "" {
		add(r, "report has no name")
	}
	if sub, ok := r.(*SubReport); ok && sub.Query == "" {
		add(r, "sub-report has no query")
	}

	groups := make(map[string]bool)
	Walk(r, func(e Element) error {
		switch el := e.(type) {
		case Report:
			if same(el, r) {
				return nil
			}
			errs = append(errs, validateStructure(el)...)
			return SkipChildren
		case *Group:
			switch {
			case el.Name() == "":
				add(el, "group has no name")
			case groups[el.Name()]:
				add(el, "duplicate group name %q", el.Name())
			}
			groups[el.Name()] = true
		case *CrosstabElement:
			if len(el.RowDimensions) == 0 {
				add(el, "crosstab has no row dimension")
			}
			if len(el.ColumnDimensions) == 0 {
				add(el, "crosstab has no column dimension")
			}
			if len(el.Measures) == 0 {
				add(el, "crosstab has no measure")
			}
			for _, m := range el.Measures {
				if m.Aggregation != "" && !m.Aggregation.Valid() {
					add(el, "measure %s has unknown aggregation %q", m.Field, m.Aggregation)
				}
			}
		}
		return nil
	})
	return errs
}

func describe(e Element) string {
	if e.Name() == "" {
		return string(e.Type())
	}
	return string(e.Type()) + " " + e.Name()
}

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

package model

import (
	"fmt"

	"github.com/tiendc/go-deepcopy"

	"github.com/pingcap/report-engine/pkg/formula"
)

// Clone returns a deep copy of the report. Elements get new IDs and data
// factories are derived, so the copy can be processed independently.
func (m *MasterReport) Clone() (*MasterReport, error) {
	c, err := cloneElement(m)
	if err != nil {
		return nil, err
	}
	return c.(*MasterReport), nil
}

// Clone returns a detached deep copy of the sub-report.
func (s *SubReport) Clone() (*SubReport, error) {
	c, err := cloneElement(s)
	if err != nil {
		return nil, err
	}
	return c.(*SubReport), nil
}

// CloneElement returns a detached deep copy of e.
func CloneElement(e Element) (Element, error) {
	return cloneElement(e)
}

func cloneElement(e Element) (Element, error) {
	switch src := e.(type) {
	case *Band:
		b := &Band{}
		if err := copyBase(&b.BaseElement, b, &src.BaseElement); err != nil {
			return nil, err
		}
		for _, child := range src.elements {
			c, err := cloneElement(child)
			if err != nil {
				return nil, err
			}
			mustAdopt(b, c)
			b.elements = append(b.elements, c)
		}
		return b, nil
	case *TextField:
		t := &TextField{Field: src.Field, Format: src.Format}
		return t, copyBase(&t.BaseElement, t, &src.BaseElement)
	case *Label:
		l := &Label{Text: src.Text}
		return l, copyBase(&l.BaseElement, l, &src.BaseElement)
	case *Group:
		g := &Group{fields: append([]string(nil), src.fields...)}
		if err := copyBase(&g.BaseElement, g, &src.BaseElement); err != nil {
			return nil, err
		}
		var err error
		if g.header, err = cloneBand(src.header); err != nil {
			return nil, err
		}
		if g.footer, err = cloneBand(src.footer); err != nil {
			return nil, err
		}
		body, err := cloneElement(src.body)
		if err != nil {
			return nil, err
		}
		g.body = body.(GroupBody)
		for _, c := range g.children() {
			mustAdopt(g, c)
		}
		return g, nil
	case *GroupDataBody:
		b := &GroupDataBody{}
		if err := copyBase(&b.BaseElement, b, &src.BaseElement); err != nil {
			return nil, err
		}
		var err error
		if b.detailsHeader, err = cloneBand(src.detailsHeader); err != nil {
			return nil, err
		}
		if b.itemBand, err = cloneBand(src.itemBand); err != nil {
			return nil, err
		}
		if b.noDataBand, err = cloneBand(src.noDataBand); err != nil {
			return nil, err
		}
		if b.detailsFooter, err = cloneBand(src.detailsFooter); err != nil {
			return nil, err
		}
		for _, c := range b.children() {
			mustAdopt(b, c)
		}
		return b, nil
	case *SubGroupBody:
		b := &SubGroupBody{}
		if err := copyBase(&b.BaseElement, b, &src.BaseElement); err != nil {
			return nil, err
		}
		g, err := cloneElement(src.group)
		if err != nil {
			return nil, err
		}
		b.group = g.(*Group)
		mustAdopt(b, b.group)
		return b, nil
	case *CrosstabElement:
		c := &CrosstabElement{
			RowDimensions:    append([]Dimension(nil), src.RowDimensions...),
			ColumnDimensions: append([]Dimension(nil), src.ColumnDimensions...),
			Measures:         append([]Measure(nil), src.Measures...),
			Query:            src.Query,
		}
		if err := copyBase(&c.BaseElement, c, &src.BaseElement); err != nil {
			return nil, err
		}
		title, err := cloneBand(src.title)
		if err != nil {
			return nil, err
		}
		c.title = title
		mustAdopt(c, title)
		return c, nil
	case *MasterReport:
		m := &MasterReport{Parameters: src.Parameters.Clone(), CompatibilityLevel: src.CompatibilityLevel}
		return m, cloneDefinition(&m.ReportDefinition, m, &src.ReportDefinition)
	case *SubReport:
		s := &SubReport{
			Imports: append([]ParameterMapping(nil), src.Imports...),
			Exports: append([]ParameterMapping(nil), src.Exports...),
		}
		return s, cloneDefinition(&s.ReportDefinition, s, &src.ReportDefinition)
	default:
		return nil, fmt.Errorf("cannot clone element of type %T", e)
	}
}

func cloneBand(b *Band) (*Band, error) {
	c, err := cloneElement(b)
	if err != nil {
		return nil, err
	}
	return c.(*Band), nil
}

func cloneDefinition(dst *ReportDefinition, self Element, src *ReportDefinition) error {
	if err := copyBase(&dst.BaseElement, self, &src.BaseElement); err != nil {
		return err
	}
	dst.Query = src.Query
	dst.QueryLimit = src.QueryLimit
	dst.QueryTimeout = src.QueryTimeout
	if src.DataFactory != nil {
		dst.DataFactory = src.DataFactory.Derive()
	}
	dst.PreProcessors = append([]string(nil), src.PreProcessors...)
	dst.Expressions = append([]formula.Expression(nil), src.Expressions...)

	bands := []struct {
		dst **Band
		src *Band
	}{
		{&dst.pageHeader, src.pageHeader},
		{&dst.pageFooter, src.pageFooter},
		{&dst.watermark, src.watermark},
		{&dst.reportHeader, src.reportHeader},
		{&dst.reportFooter, src.reportFooter},
	}
	for _, b := range bands {
		c, err := cloneBand(b.src)
		if err != nil {
			return err
		}
		*b.dst = c
		mustAdopt(self, c)
	}
	g, err := cloneElement(src.rootGroup)
	if err != nil {
		return err
	}
	dst.rootGroup = g.(*Group)
	mustAdopt(self, dst.rootGroup)
	return nil
}

func copyBase(dst *BaseElement, self Element, src *BaseElement) error {
	dst.init(self, src.typ)
	dst.name = src.name
	if err := deepcopy.Copy(&dst.attrs, src.attrs); err != nil {
		return fmt.Errorf("failed to copy attributes of %s: %w", src.typ, err)
	}
	if err := deepcopy.Copy(&dst.style, src.style); err != nil {
		return fmt.Errorf("failed to copy style of %s: %w", src.typ, err)
	}
	if dst.attrs == nil {
		dst.attrs = make(map[AttributeKey]any)
	}
	if dst.style == nil {
		dst.style = make(Style)
	}
	return nil
}

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
	"time"

	"github.com/pingcap/report-engine/pkg/datafactory"
	"github.com/pingcap/report-engine/pkg/formula"
	"github.com/pingcap/report-engine/pkg/parameters"
)

// DefaultGroupName is the name of the group every new report starts with.
const DefaultGroupName = "default"

// Report is implemented by MasterReport and SubReport.
type Report interface {
	Element
	Definition() *ReportDefinition
}

// ReportDefinition is the part shared by master reports and sub-reports.
type ReportDefinition struct {
	BaseElement

	// Query names the query run against DataFactory.
	Query string
	// QueryLimit caps the number of rows; 0 means no limit.
	QueryLimit int
	// QueryTimeout bounds the query; 0 means no timeout.
	QueryTimeout time.Duration
	DataFactory  datafactory.DataFactory
	// PreProcessors names the pre-processors run before binding, in order.
	PreProcessors []string
	// Expressions are computed for every row and appended as columns.
	Expressions []formula.Expression

	pageHeader   *Band
	pageFooter   *Band
	watermark    *Band
	reportHeader *Band
	reportFooter *Band
	rootGroup    *Group
}

func (r *ReportDefinition) initDefinition(self Element, typ ElementType, name string) {
	r.init(self, typ)
	r.SetName(name)
	r.pageHeader = NewPageHeader()
	r.pageFooter = NewPageFooter()
	r.watermark = NewWatermark()
	r.reportHeader = NewReportHeader()
	r.reportFooter = NewReportFooter()
	r.rootGroup = NewGroup(DefaultGroupName)
	for _, e := range []Element{r.pageHeader, r.pageFooter, r.watermark, r.reportHeader, r.reportFooter, r.rootGroup} {
		mustAdopt(self, e)
	}
}

func (r *ReportDefinition) Definition() *ReportDefinition { return r }

// Self returns the master report or sub-report this definition belongs to.
func (r *ReportDefinition) Self() Report { return r.self.(Report) }

func (r *ReportDefinition) PageHeader() *Band { return r.pageHeader }

func (r *ReportDefinition) PageFooter() *Band { return r.pageFooter }

func (r *ReportDefinition) Watermark() *Band { return r.watermark }

func (r *ReportDefinition) ReportHeader() *Band { return r.reportHeader }

func (r *ReportDefinition) ReportFooter() *Band { return r.reportFooter }

// RootGroup returns the outermost group.
func (r *ReportDefinition) RootGroup() *Group { return r.rootGroup }

// Groups returns the groups from the outermost to the innermost.
func (r *ReportDefinition) Groups() []*Group {
	var out []*Group
	for g := r.rootGroup; g != nil; {
		out = append(out, g)
		sub, ok := g.body.(*SubGroupBody)
		if !ok {
			break
		}
		g = sub.group
	}
	return out
}

// InnermostGroup returns the group holding the data body.
func (r *ReportDefinition) InnermostGroup() *Group {
	groups := r.Groups()
	return groups[len(groups)-1]
}

// DataBody returns the body of the innermost group.
func (r *ReportDefinition) DataBody() *GroupDataBody {
	body, _ := r.InnermostGroup().body.(*GroupDataBody)
	return body
}

// ItemBand returns the item band of the data body.
func (r *ReportDefinition) ItemBand() *Band { return r.DataBody().ItemBand() }

// NoDataBand returns the no-data band of the data body.
func (r *ReportDefinition) NoDataBand() *Band { return r.DataBody().NoDataBand() }

// Group returns the group called name.
func (r *ReportDefinition) Group(name string) (*Group, bool) {
	for _, g := range r.Groups() {
		if g.Name() == name {
			return g, true
		}
	}
	return nil, false
}

// AddGroup inserts g as the new innermost group. The data body of the
// previous innermost group moves into g, replacing g's own body.
func (r *ReportDefinition) AddGroup(g *Group) error {
	if g.Parent() != nil {
		return ErrElementHasParent
	}
	if _, exists := r.Group(g.Name()); exists {
		return fmt.Errorf("group %q already exists", g.Name())
	}
	inner := r.InnermostGroup()
	data := inner.body
	detach(data)
	sub, err := NewSubGroupBody(g)
	if err != nil {
		mustAdopt(inner, data)
		return err
	}
	detach(g.body)
	g.body = data
	mustAdopt(g, data)
	inner.body = sub
	mustAdopt(inner, sub)
	return nil
}

// RemoveGroup removes the group called name. Its header and footer are
// dropped; its body takes the group's place. The last group cannot be
// removed.
func (r *ReportDefinition) RemoveGroup(name string) error {
	groups := r.Groups()
	idx := -1
	for i, g := range groups {
		if g.Name() == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("group %q not found", name)
	}
	if len(groups) == 1 {
		return fmt.Errorf("group %q is the only group of the report", name)
	}

	g := groups[idx]
	body := g.body
	detach(body)
	g.body = NewGroupDataBody()
	mustAdopt(g, g.body)

	if idx == 0 {
		inner := body.(*SubGroupBody).group
		detach(inner)
		detach(g)
		r.rootGroup = inner
		mustAdopt(r.self, inner)
		return nil
	}
	outer := groups[idx-1]
	detach(outer.body)
	detach(g)
	outer.body = body
	mustAdopt(outer, body)
	return nil
}

func (r *ReportDefinition) children() []Element {
	return []Element{r.pageHeader, r.reportHeader, r.rootGroup, r.reportFooter, r.pageFooter, r.watermark}
}

// ValidateStructure returns every structural problem of the report and the
// sub-reports it contains.
func (r *ReportDefinition) ValidateStructure() []error {
	return validateStructure(r.Self())
}

// MasterReport is the top-level report definition.
type MasterReport struct {
	ReportDefinition
	Parameters *parameters.Definition
	// CompatibilityLevel is the engine version the report was written for,
	// e.g. "v1.2.0". Empty means current.
	CompatibilityLevel string
}

// NewMasterReport creates a report with the default group and empty bands.
func NewMasterReport(name string) *MasterReport {
	m := &MasterReport{Parameters: parameters.NewDefinition()}
	m.initDefinition(m, TypeMasterReport, name)
	return m
}

// ImportAll as a mapping name imports every field of the master row.
const ImportAll = "*"

// ParameterMapping maps a field of one report to a parameter of another.
// For imports Name is the master field and Alias the sub-report parameter;
// for exports Name is the sub-report field and Alias the master field.
type ParameterMapping struct {
	Name  string
	Alias string
}

// Target returns Alias, or Name when no alias is set.
func (m ParameterMapping) Target() string {
	if m.Alias == "" {
		return m.Name
	}
	return m.Alias
}

// SubReport is a report embedded in a band of another report.
type SubReport struct {
	ReportDefinition
	Imports []ParameterMapping
	Exports []ParameterMapping
}

// NewSubReport creates a sub-report with the default group and empty bands.
func NewSubReport(name string) *SubReport {
	s := &SubReport{}
	s.initDefinition(s, TypeSubReport, name)
	return s
}

// AddImport maps the master field name to the sub-report parameter alias.
func (s *SubReport) AddImport(name, alias string) {
	s.Imports = append(s.Imports, ParameterMapping{Name: name, Alias: alias})
}

// AddExport maps the sub-report field name to the master field alias.
func (s *SubReport) AddExport(name, alias string) {
	s.Exports = append(s.Exports, ParameterMapping{Name: name, Alias: alias})
}

// ImportsAll reports whether the sub-report imports every master field.
func (s *SubReport) ImportsAll() bool {
	for _, m := range s.Imports {
		if m.Name == ImportAll {
			return true
		}
	}
	return false
}

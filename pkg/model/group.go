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

import "fmt"

// Group is a relational group: rows sharing the values of the group fields
// are rendered between the group header and footer.
type Group struct {
	BaseElement
	fields []string
	header *Band
	footer *Band
	body   GroupBody
}

// NewGroup creates a group with a data body.
func NewGroup(name string, fields ...string) *Group {
	g := &Group{fields: append([]string(nil), fields...)}
	g.init(g, TypeRelationalGroup)
	g.SetName(name)
	g.header = NewGroupHeader()
	g.footer = NewGroupFooter()
	g.body = NewGroupDataBody()
	mustAdopt(g, g.header)
	mustAdopt(g, g.footer)
	mustAdopt(g, g.body)
	return g
}

// Fields returns the fields of this group only.
func (g *Group) Fields() []string {
	return append([]string(nil), g.fields...)
}

// SetFields replaces the group fields.
func (g *Group) SetFields(fields ...string) {
	g.fields = append([]string(nil), fields...)
}

func (g *Group) Header() *Band { return g.header }

func (g *Group) Footer() *Band { return g.footer }

func (g *Group) Body() GroupBody { return g.body }

// SetBody replaces the body. The previous body is detached.
func (g *Group) SetBody(body GroupBody) error {
	if body == nil {
		return fmt.Errorf("group %s: body must not be nil", g.Name())
	}
	if err := adopt(g, body); err != nil {
		return err
	}
	detach(g.body)
	g.body = body
	return nil
}

// EffectiveFields returns the fields of the enclosing groups followed by
// the fields of g, without duplicates.
func (g *Group) EffectiveFields() []string {
	var chain []*Group
	for p := Element(g); p != nil; p = p.Parent() {
		if pg, ok := p.(*Group); ok {
			chain = append(chain, pg)
		}
		if _, ok := p.(Report); ok {
			break
		}
	}
	seen := make(map[string]bool)
	var out []string
	for i := len(chain) - 1; i >= 0; i-- {
		for _, f := range chain[i].fields {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	return out
}

func (g *Group) children() []Element {
	return []Element{g.header, g.body, g.footer}
}

// GroupBody is the content of a group: either the data bands or a nested
// group.
type GroupBody interface {
	Element
	groupBody()
}

// GroupDataBody holds the bands rendered for the rows of the innermost group.
type GroupDataBody struct {
	BaseElement
	detailsHeader *Band
	itemBand      *Band
	noDataBand    *Band
	detailsFooter *Band
}

// NewGroupDataBody creates a body with all of its bands.
func NewGroupDataBody() *GroupDataBody {
	b := &GroupDataBody{}
	b.init(b, TypeGroupDataBody)
	b.detailsHeader = NewDetailsHeader()
	b.itemBand = NewItemBand()
	b.noDataBand = NewNoDataBand()
	b.detailsFooter = NewDetailsFooter()
	for _, band := range []*Band{b.detailsHeader, b.itemBand, b.noDataBand, b.detailsFooter} {
		mustAdopt(b, band)
	}
	return b
}

func (b *GroupDataBody) DetailsHeader() *Band { return b.detailsHeader }

func (b *GroupDataBody) ItemBand() *Band { return b.itemBand }

func (b *GroupDataBody) NoDataBand() *Band { return b.noDataBand }

func (b *GroupDataBody) DetailsFooter() *Band { return b.detailsFooter }

func (b *GroupDataBody) groupBody() {}

func (b *GroupDataBody) children() []Element {
	return []Element{b.detailsHeader, b.itemBand, b.noDataBand, b.detailsFooter}
}

// SubGroupBody wraps a nested group.
type SubGroupBody struct {
	BaseElement
	group *Group
}

// NewSubGroupBody wraps g, which must not be attached elsewhere.
func NewSubGroupBody(g *Group) (*SubGroupBody, error) {
	b := &SubGroupBody{}
	b.init(b, TypeSubGroupBody)
	if err := adopt(b, g); err != nil {
		return nil, err
	}
	b.group = g
	return b, nil
}

func (b *SubGroupBody) Group() *Group { return b.group }

func (b *SubGroupBody) groupBody() {}

func (b *SubGroupBody) children() []Element {
	return []Element{b.group}
}

// mustAdopt attaches freshly created children.
func mustAdopt(parent, child Element) {
	if err := adopt(parent, child); err != nil {
		panic(err)
	}
}

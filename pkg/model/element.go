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

// Package model holds the report definition tree: bands, groups, crosstabs
// and the master and sub-report definitions that own them.
package model

import (
	"errors"

	"github.com/google/uuid"
)

// ElementType tags the role of an element in the tree.
type ElementType string

const (
	TypeReportHeader    ElementType = "report-header"
	TypeReportFooter    ElementType = "report-footer"
	TypePageHeader      ElementType = "page-header"
	TypePageFooter      ElementType = "page-footer"
	TypeWatermark       ElementType = "watermark"
	TypeItemBand        ElementType = "itemband"
	TypeNoDataBand      ElementType = "no-data-band"
	TypeDetailsHeader   ElementType = "details-header"
	TypeDetailsFooter   ElementType = "details-footer"
	TypeGroupHeader     ElementType = "group-header"
	TypeGroupFooter     ElementType = "group-footer"
	TypeRelationalGroup ElementType = "relational-group"
	TypeGroupDataBody   ElementType = "group-data-body"
	TypeSubGroupBody    ElementType = "sub-group-body"
	TypeCrosstab        ElementType = "crosstab"
	TypeCrosstabCell    ElementType = "crosstab-cell"
	TypeBand            ElementType = "band"
	TypeTextField       ElementType = "text-field"
	TypeLabel           ElementType = "label"
	TypeSubReport       ElementType = "sub-report"
	TypeMasterReport    ElementType = "master-report"
)

// Attribute namespaces used by the engine.
const (
	NamespaceCore   = "core"
	NamespaceLegacy = "legacy"
)

var (
	// ErrElementHasParent is returned when adding an element that is already
	// part of a tree.
	ErrElementHasParent = errors.New("element already has a parent")
	// ErrCyclicStructure is returned when adding an element would make it its
	// own ancestor.
	ErrCyclicStructure = errors.New("element cannot contain itself")
)

// AttributeKey identifies an attribute by namespace and name.
type AttributeKey struct {
	Namespace string
	Name      string
}

// Style holds the visual properties of an element. They are carried through
// unchanged; layout is not part of this module.
type Style map[string]any

// Element is a node of the report definition tree.
type Element interface {
	ID() string
	Name() string
	SetName(name string)
	Type() ElementType
	// Parent returns the enclosing element, nil for a detached element or a
	// master report.
	Parent() Element
	Attribute(namespace, name string) (any, bool)
	SetAttribute(namespace, name string, value any)
	// Attributes returns a copy of all attributes.
	Attributes() map[AttributeKey]any
	Style() Style

	base() *BaseElement
	children() []Element
}

// BaseElement carries the state shared by all elements.
type BaseElement struct {
	id     string
	name   string
	typ    ElementType
	parent Element
	// self is the outermost value embedding this BaseElement.
	self  Element
	attrs map[AttributeKey]any
	style Style
}

func (b *BaseElement) init(self Element, typ ElementType) {
	b.id = uuid.NewString()
	b.typ = typ
	b.self = self
	b.attrs = make(map[AttributeKey]any)
	b.style = make(Style)
}

func (b *BaseElement) ID() string { return b.id }
func (b *BaseElement) Name() string { return b.name }
func (b *BaseElement) SetName(name string) { b.name = name }
func (b *BaseElement) Type() ElementType { return b.typ }
func (b *BaseElement) Parent() Element { return b.parent }
func (b *BaseElement) Style() Style { return b.style }

func (b *BaseElement) Attribute(namespace, name string) (any, bool) {
	v, ok := b.attrs[AttributeKey{Namespace: namespace, Name: name}]
	return v, ok
}

// SetAttribute sets an attribute. A nil value removes it.
func (b *BaseElement) SetAttribute(namespace, name string, value any) {
	key := AttributeKey{Namespace: namespace, Name: name}
	if value == nil {
		delete(b.attrs, key)
		return
	}
	b.attrs[key] = value
}

func (b *BaseElement) Attributes() map[AttributeKey]any {
	out := make(map[AttributeKey]any, len(b.attrs))
	for k, v := range b.attrs {
		out[k] = v
	}
	return out
}

func (b *BaseElement) base() *BaseElement { return b }
func (b *BaseElement) children() []Element { return nil }

// adopt makes parent the parent of child. It fails when child is attached
// elsewhere or is parent itself or one of its ancestors.
func adopt(parent, child Element) error {
	cb := child.base()
	for p := parent; p != nil; p = p.Parent() {
		if p.base() == cb {
			return ErrCyclicStructure
		}
	}
	if cb.parent != nil {
		return ErrElementHasParent
	}
	cb.parent = parent.base().self
	return nil
}

func detach(child Element) {
	if child != nil {
		child.base().parent = nil
	}
}

// same reports whether a and b are the same element.
func same(a, b Element) bool {
	return a != nil && b != nil && a.base() == b.base()
}

// ReportOf returns the report definition that contains e, or nil.
func ReportOf(e Element) Report {
	for p := e; p != nil; p = p.Parent() {
		if r, ok := p.base().self.(Report); ok && !same(r, e) {
			return r
		}
	}
	return nil
}

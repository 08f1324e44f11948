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

// Package parameters describes report parameters and validates the values a
// caller supplies for them before the report is bound to its data.
package parameters

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ValueType is the type a parameter value is converted to.
type ValueType string

const (
	TypeString ValueType = "string"
	TypeInt    ValueType = "int"
	TypeFloat  ValueType = "float"
	TypeBool   ValueType = "bool"
	TypeDate   ValueType = "date"
)

// Parameter describes one report parameter.
type Parameter struct {
	Name string    `yaml:"name" json:"name"`
	Type ValueType `yaml:"type" json:"type"`
	// Mandatory parameters must have a value after defaults are applied.
	Mandatory bool `yaml:"mandatory" json:"mandatory"`
	// DefaultValue is used when no value is supplied.
	DefaultValue any `yaml:"default,omitempty" json:"default,omitempty"`
	// DefaultFormula is evaluated when there is no DefaultValue.
	DefaultFormula string `yaml:"default-formula,omitempty" json:"default_formula,omitempty"`
	// Validation is a validator tag such as "min=1,max=10".
	Validation string      `yaml:"validate,omitempty" json:"validate,omitempty"`
	Label      string      `yaml:"label,omitempty" json:"label,omitempty"`
	Role       string      `yaml:"role,omitempty" json:"role,omitempty"`
	Hidden     bool        `yaml:"hidden,omitempty" json:"hidden,omitempty"`
	List       *ListSource `yaml:"list,omitempty" json:"list,omitempty"`
}

// ListSource makes a parameter a list parameter whose values come from a query.
type ListSource struct {
	Query      string `yaml:"query" json:"query"`
	KeyColumn  string `yaml:"key-column" json:"key_column"`
	TextColumn string `yaml:"text-column,omitempty" json:"text_column,omitempty"`
	// Strict rejects values that are not among the query keys.
	Strict bool `yaml:"strict,omitempty" json:"strict,omitempty"`
	// MultiSelect allows more than one value.
	MultiSelect bool `yaml:"multi-select,omitempty" json:"multi_select,omitempty"`
}

// IsList reports whether p takes its values from a query.
func (p *Parameter) IsList() bool {
	return p.List != nil
}

// ValueType returns the parameter type, string when unset.
func (p *Parameter) ValueType() ValueType {
	if p.Type == "" {
		return TypeString
	}
	return p.Type
}

// Definition is the ordered set of parameters of a report.
type Definition struct {
	Parameters []*Parameter `yaml:"parameters" json:"parameters"`
	// Validator checks supplied values. DefaultValidator is used when nil.
	Validator Validator `yaml:"-" json:"-"`
}

// NewDefinition creates a definition holding params in order.
func NewDefinition(params ...*Parameter) *Definition {
	return &Definition{Parameters: params}
}

// Add appends a parameter, replacing an existing one of the same name.
func (d *Definition) Add(p *Parameter) {
	for i, existing := range d.Parameters {
		if existing.Name == p.Name {
			d.Parameters[i] = p
			return
		}
	}
	d.Parameters = append(d.Parameters, p)
}

// Get returns the parameter called name.
func (d *Definition) Get(name string) (*Parameter, bool) {
	if d == nil {
		return nil, false
	}
	for _, p := range d.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// Names returns the parameter names in definition order.
func (d *Definition) Names() []string {
	if d == nil {
		return nil
	}
	names := make([]string, len(d.Parameters))
	for i, p := range d.Parameters {
		names[i] = p.Name
	}
	return names
}

// Clone returns a copy that can be modified independently. Default values are
// shared.
func (d *Definition) Clone() *Definition {
	if d == nil {
		return nil
	}
	c := &Definition{Validator: d.Validator, Parameters: make([]*Parameter, len(d.Parameters))}
	for i, p := range d.Parameters {
		cp := *p
		if p.List != nil {
			list := *p.List
			cp.List = &list
		}
		c.Parameters[i] = &cp
	}
	return c
}

// Check returns the problems of the definition itself.
func (d *Definition) Check() []error {
	var errs []error
	seen := make(map[string]bool)
	for i, p := range d.Parameters {
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("parameter %d has no name", i))
			continue
		}
		if seen[p.Name] {
			errs = append(errs, fmt.Errorf("parameter %s is defined twice", p.Name))
		}
		seen[p.Name] = true
		switch p.ValueType() {
		case TypeString, TypeInt, TypeFloat, TypeBool, TypeDate:
		default:
			errs = append(errs, fmt.Errorf("parameter %s has unknown type %q", p.Name, p.Type))
		}
		if p.List != nil && (p.List.Query == "" || p.List.KeyColumn == "") {
			errs = append(errs, fmt.Errorf("list parameter %s needs a query and a key column", p.Name))
		}
		if d.Validator == nil {
			if err := sharedValidator().CheckTag(p.ValueType(), p.Validation); err != nil {
				errs = append(errs, fmt.Errorf("parameter %s: %w", p.Name, err))
			}
		}
	}
	return errs
}

// LoadDefinition reads a parameter sheet in YAML.
func LoadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read parameter sheet %s: %w", path, err)
	}
	return ParseDefinition(data)
}

// ParseDefinition parses a parameter sheet in YAML.
func ParseDefinition(data []byte) (*Definition, error) {
	var d Definition
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse parameter sheet: %w", err)
	}
	if errs := d.Check(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid parameter sheet: %w", errs[0])
	}
	return &d, nil
}

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

package parameters

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/pingcap/report-engine/pkg/reporterr"
	"github.com/pingcap/report-engine/pkg/table"
)

// Severity of a validation message.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// ValidationMessage is one finding of a validation run.
type ValidationMessage struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// ValidationResult collects the findings of a validation run together with
// the converted parameter values.
type ValidationResult struct {
	global []ValidationMessage
	params map[string][]ValidationMessage
	values map[string]any
}

// NewValidationResult creates an empty result.
func NewValidationResult() *ValidationResult {
	return &ValidationResult{
		params: make(map[string][]ValidationMessage),
		values: make(map[string]any),
	}
}

// AddMessage records a message that is not tied to a parameter.
func (r *ValidationResult) AddMessage(sev Severity, format string, args ...any) {
	r.global = append(r.global, ValidationMessage{Severity: sev, Message: fmt.Sprintf(format, args...)})
}

// AddParameterMessage records a message for parameter name.
func (r *ValidationResult) AddParameterMessage(name string, sev Severity, format string, args ...any) {
	r.params[name] = append(r.params[name], ValidationMessage{Severity: sev, Message: fmt.Sprintf(format, args...)})
}

// IsEmpty reports whether the result holds no messages at all.
func (r *ValidationResult) IsEmpty() bool {
	return len(r.global) == 0 && len(r.params) == 0
}

// HasErrors reports whether any message has error severity.
func (r *ValidationResult) HasErrors() bool {
	for _, m := range r.global {
		if m.Severity == SeverityError {
			return true
		}
	}
	for _, msgs := range r.params {
		for _, m := range msgs {
			if m.Severity == SeverityError {
				return true
			}
		}
	}
	return false
}

// Messages returns the global messages.
func (r *ValidationResult) Messages() []ValidationMessage {
	return append([]ValidationMessage(nil), r.global...)
}

// ParameterMessages returns the messages recorded for name.
func (r *ValidationResult) ParameterMessages(name string) []ValidationMessage {
	return append([]ValidationMessage(nil), r.params[name]...)
}

// ParameterNames returns the sorted names of parameters with messages.
func (r *ValidationResult) ParameterNames() []string {
	names := make([]string, 0, len(r.params))
	for name := range r.params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetValue stores the converted value of a parameter.
func (r *ValidationResult) SetValue(name string, v any) {
	r.values[name] = v
}

// Parameters returns the converted values.
func (r *ValidationResult) Parameters() *table.StaticDataRow {
	return table.NewStaticDataRow(r.values)
}

// Errors returns every error message prefixed with its parameter name.
func (r *ValidationResult) Errors() []string {
	var out []string
	for _, m := range r.global {
		if m.Severity == SeverityError {
			out = append(out, m.Message)
		}
	}
	for _, name := range r.ParameterNames() {
		for _, m := range r.params[name] {
			if m.Severity == SeverityError {
				out = append(out, name+": "+m.Message)
			}
		}
	}
	return out
}

// ValidationError carries a failed ValidationResult.
type ValidationError struct {
	Result *ValidationResult
}

func (e *ValidationError) Error() string {
	return "invalid parameters: " + strings.Join(e.Result.Errors(), "; ")
}

// Unwrap makes errors.Is(err, reporterr.ErrParameterValidation) hold.
func (e *ValidationError) Unwrap() error {
	return reporterr.ErrParameterValidation
}

// Validator checks parameter values against a definition.
type Validator interface {
	Validate(ctx context.Context, pc Context, def *Definition, values table.DataRow) (*ValidationResult, error)
}

// DefaultValidator checks mandatory values, types, validator tags and list
// membership.
type DefaultValidator struct {
	validate *validator.Validate
}

// NewValidator creates a DefaultValidator with the report specific tags
// registered.
func NewValidator() *DefaultValidator {
	v := validator.New()
	v.RegisterValidation("identifier", isIdentifier)
	v.RegisterValidation("notfuture", isNotFuture)
	return &DefaultValidator{validate: v}
}

var (
	defaultValidatorOnce sync.Once
	defaultValidator     *DefaultValidator
)

// Validate validates values with def.Validator, or the default validator.
// The returned error reports infrastructure failures only; rejected values
// are reported in the result.
func Validate(ctx context.Context, pc Context, def *Definition, values table.DataRow) (*ValidationResult, error) {
	if def != nil && def.Validator != nil {
		return def.Validator.Validate(ctx, pc, def, values)
	}
	return sharedValidator().Validate(ctx, pc, def, values)
}

func sharedValidator() *DefaultValidator {
	defaultValidatorOnce.Do(func() { defaultValidator = NewValidator() })
	return defaultValidator
}

// CheckTag reports an error when tag cannot be applied to values of typ,
// e.g. an unknown validation function or "min" on a bool.
func (v *DefaultValidator) CheckTag(typ ValueType, tag string) error {
	if tag == "" {
		return nil
	}
	_, err := v.check(zeroValue(typ), tag)
	return err
}

// check runs tag against value. validator panics on malformed tags; that is
// returned as err, while rejected values are returned as verr.
func (v *DefaultValidator) check(value any, tag string) (verr error, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("invalid validation tag %q: %v", tag, r)
		}
	}()
	return v.validate.Var(value, tag), nil
}

func zeroValue(typ ValueType) any {
	switch typ {
	case TypeInt:
		return int64(0)
	case TypeFloat:
		return float64(0)
	case TypeBool:
		return false
	case TypeDate:
		return time.Time{}
	}
	return ""
}

func (v *DefaultValidator) Validate(ctx context.Context, pc Context, def *Definition, values table.DataRow) (*ValidationResult, error) {
	result := NewValidationResult()
	if values == nil {
		values = table.EmptyDataRow
	}
	if def == nil {
		def = &Definition{}
	}

	for _, name := range values.Names() {
		if _, ok := def.Get(name); ok {
			continue
		}
		raw, _ := values.Get(name)
		result.SetValue(name, raw)
		if !strings.HasPrefix(name, "::") {
			result.AddParameterMessage(name, SeverityWarning, "parameter is not defined by the report")
		}
	}

	lists := make(map[string][]any)
	for _, p := range def.Parameters {
		if err := ctx.Err(); err != nil {
			return nil, reporterr.Interrupted("validate parameters", err)
		}
		if err := v.validateParameter(ctx, pc, p, values, result, lists); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (v *DefaultValidator) validateParameter(ctx context.Context, pc Context, p *Parameter, values table.DataRow, result *ValidationResult, lists map[string][]any) error {
	raw, _ := values.Get(p.Name)
	value, err := Convert(raw, p.ValueType())
	if err != nil {
		result.AddParameterMessage(p.Name, SeverityError, "%v", err)
		return nil
	}

	if isBlank(value) {
		row := table.Merge(pc.ParameterData(), values, result.Parameters())
		def, err := defaultValue(pc, p, row)
		if err != nil {
			result.AddParameterMessage(p.Name, SeverityError, "%v", err)
			return nil
		}
		value = def
	}
	if isBlank(value) {
		if p.Mandatory {
			result.AddParameterMessage(p.Name, SeverityError, "parameter is mandatory")
		}
		result.SetValue(p.Name, nil)
		return nil
	}

	items, multi := value.([]any)
	if !multi {
		items = []any{value}
	} else if p.List == nil || !p.List.MultiSelect {
		result.AddParameterMessage(p.Name, SeverityError, "parameter accepts a single value, got %d", len(items))
		return nil
	}

	if p.Validation != "" {
		for _, item := range items {
			verr, err := v.check(item, p.Validation)
			if err != nil {
				result.AddParameterMessage(p.Name, SeverityError, "%v", err)
				break
			}
			if verr != nil {
				for _, msg := range validationMessages(verr) {
					result.AddParameterMessage(p.Name, SeverityError, "%v %s", item, msg)
				}
			}
		}
	}

	if p.List != nil && p.List.Strict {
		keys, err := listKeys(ctx, pc, p, table.Merge(pc.ParameterData(), values, result.Parameters()), lists)
		if err != nil {
			return err
		}
		for _, item := range items {
			if !containsValue(keys, item) {
				result.AddParameterMessage(p.Name, SeverityError, "%v is not an allowed value", item)
			}
		}
	}

	result.SetValue(p.Name, value)
	return nil
}

// DefaultValue returns the default of p: the static default value, else the
// result of its default formula, else nil.
func DefaultValue(pc Context, p *Parameter) (any, error) {
	return defaultValue(pc, p, pc.ParameterData())
}

func defaultValue(pc Context, p *Parameter, row table.DataRow) (any, error) {
	if p.DefaultValue != nil {
		v, err := Convert(p.DefaultValue, p.ValueType())
		if err != nil {
			return nil, fmt.Errorf("invalid default value: %w", err)
		}
		return v, nil
	}
	if p.DefaultFormula == "" {
		return nil, nil
	}
	raw, err := pc.FormulaContext().Evaluate(p.DefaultFormula, row)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate default formula: %w", err)
	}
	v, err := Convert(raw, p.ValueType())
	if err != nil {
		return nil, fmt.Errorf("invalid default formula result: %w", err)
	}
	return v, nil
}

// ComputeDefaults returns the default of every parameter that has one.
// Formulas see the defaults of the parameters defined before them.
func ComputeDefaults(pc Context, def *Definition) (*table.StaticDataRow, error) {
	values := make(map[string]any)
	if def == nil {
		return table.NewStaticDataRow(values), nil
	}
	for _, p := range def.Parameters {
		row := table.Merge(pc.ParameterData(), table.NewStaticDataRow(values))
		v, err := defaultValue(pc, p, row)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", p.Name, err)
		}
		if v != nil {
			values[p.Name] = v
		}
	}
	return table.NewStaticDataRow(values), nil
}

func listKeys(ctx context.Context, pc Context, p *Parameter, row table.DataRow, cache map[string][]any) ([]any, error) {
	if keys, ok := cache[p.Name]; ok {
		return keys, nil
	}
	op := "list values of " + p.Name
	tm, err := pc.DataFactory().QueryData(ctx, p.List.Query, row)
	if err != nil {
		return nil, reporterr.New(reporterr.KindParameterValidation, op, err)
	}
	col := tm.ColumnIndex(p.List.KeyColumn)
	if col < 0 {
		return nil, reporterr.Newf(reporterr.KindParameterValidation, op, "query %s has no column %s", p.List.Query, p.List.KeyColumn)
	}
	keys := make([]any, 0, tm.RowCount())
	for i := 0; i < tm.RowCount(); i++ {
		k, err := Convert(tm.ValueAt(i, col), p.ValueType())
		if err != nil {
			continue
		}
		keys = append(keys, k)
	}
	cache[p.Name] = keys
	return keys, nil
}

func containsValue(keys []any, v any) bool {
	for _, k := range keys {
		if equalValues(k, v) {
			return true
		}
	}
	return false
}

func isBlank(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case []any:
		return len(val) == 0
	}
	return false
}

func validationMessages(err error) []string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{err.Error()}
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, formatValidationError(fe))
	}
	return msgs
}

func formatValidationError(fe validator.FieldError) string {
	param := fe.Param()
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		return "must be at least " + param
	case "max", "lte":
		return "must be at most " + param
	case "gt":
		return "must be greater than " + param
	case "lt":
		return "must be less than " + param
	case "len":
		return "must have length " + param
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(param, " ", ", ")
	case "email":
		return "must be a valid email address"
	case "identifier":
		return "must be an identifier"
	case "notfuture":
		return "must not be in the future"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

func isIdentifier(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return false
	}
	for i, ch := range s {
		switch {
		case ch == '_', ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z':
		case i > 0 && ch >= '0' && ch <= '9':
		default:
			return false
		}
	}
	return true
}

func isNotFuture(fl validator.FieldLevel) bool {
	t, ok := fl.Field().Interface().(time.Time)
	if !ok {
		return false
	}
	return !t.After(time.Now())
}

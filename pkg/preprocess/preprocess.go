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

// Package preprocess holds the transforms applied to a report definition
// before it is bound to data.
package preprocess

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/pingcap/report-engine/pkg/logutil"
	"github.com/pingcap/report-engine/pkg/model"
	"github.com/pingcap/report-engine/pkg/reporterr"
	"github.com/pingcap/report-engine/pkg/table"
)

// ReportPreProcessor transforms a report definition before data binding.
// Implementations return the definition to continue with, which may be the
// one passed in. The caller owns the definition; it is never shared with
// the definition the user holds.
type ReportPreProcessor interface {
	// Name returns a unique identifier for this pre-processor
	Name() string
	// Description returns a human-readable description of the transform
	Description() string
	PerformPreProcessing(ctx context.Context, report *model.MasterReport, flow Flow) (*model.MasterReport, error)
	PerformSubReportPreProcessing(ctx context.Context, report *model.SubReport, flow Flow) (*model.SubReport, error)
}

// Flow is the processing state visible to pre-processors.
type Flow interface {
	// Parameters returns the validated parameter values.
	Parameters() table.DataRow
	// QueryColumns returns the column names query produces.
	QueryColumns(ctx context.Context, query string) ([]string, error)
	// CompatibilityLevel returns the compatibility level of the master report.
	CompatibilityLevel() string
	// Warn records a finding that does not stop processing.
	Warn(format string, args ...any)
	Logger() logrus.FieldLogger
}

// BasePreProcessor provides the name and description of a pre-processor and
// passes definitions through unchanged.
type BasePreProcessor struct {
	name        string
	description string
}

// NewBasePreProcessor creates a new base pre-processor
func NewBasePreProcessor(name, description string) *BasePreProcessor {
	return &BasePreProcessor{
		name:        name,
		description: description,
	}
}

// Name returns the pre-processor name
func (p *BasePreProcessor) Name() string {
	return p.name
}

// Description returns the pre-processor description
func (p *BasePreProcessor) Description() string {
	return p.description
}

func (p *BasePreProcessor) PerformPreProcessing(_ context.Context, report *model.MasterReport, _ Flow) (*model.MasterReport, error) {
	return report, nil
}

func (p *BasePreProcessor) PerformSubReportPreProcessing(_ context.Context, report *model.SubReport, _ Flow) (*model.SubReport, error) {
	return report, nil
}

// Factory creates a pre-processor instance.
type Factory func() ReportPreProcessor

// Registry maps pre-processor names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry holding the built-in pre-processors.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(AutoGeneratorName, func() ReportPreProcessor { return NewAutoGenerator() })
	r.MustRegister(GroupFieldsNormalizerName, func() ReportPreProcessor { return NewGroupFieldsNormalizer() })
	r.MustRegister(CrosstabNormalizerName, func() ReportPreProcessor { return NewCrosstabNormalizer() })
	r.MustRegister(CompatibilityName, func() ReportPreProcessor { return NewCompatibilityPreProcessor(LegacyVisibilityLevel) })
	return r
}

// Register adds a factory. Names must be unique.
func (r *Registry) Register(name string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("pre-processor %q is already registered", name)
	}
	r.factories[name] = f
	return nil
}

// MustRegister is like Register but panics on duplicates.
func (r *Registry) MustRegister(name string, f Factory) {
	if err := r.Register(name, f); err != nil {
		panic(err)
	}
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve creates the pre-processors named in names, in order.
func (r *Registry) Resolve(names []string) ([]ReportPreProcessor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ReportPreProcessor, 0, len(names))
	for _, name := range names {
		f, ok := r.factories[name]
		if !ok {
			return nil, reporterr.Newf(reporterr.KindDefinition, "pre-processor "+name, "not registered")
		}
		out = append(out, f())
	}
	return out, nil
}

// Run applies processors to report in order.
func Run(ctx context.Context, report *model.MasterReport, flow Flow, processors []ReportPreProcessor) (*model.MasterReport, error) {
	log := logutil.Or(flow.Logger())
	for _, p := range processors {
		if err := ctx.Err(); err != nil {
			return nil, reporterr.Interrupted("pre-process "+report.Name(), err)
		}
		next, err := p.PerformPreProcessing(ctx, report, flow)
		if err != nil {
			return nil, fmt.Errorf("pre-processor %s failed: %w", p.Name(), err)
		}
		if next == nil {
			return nil, reporterr.Newf(reporterr.KindInvalidState, "pre-processor "+p.Name(), "returned no report")
		}
		log.WithField("report", report.Name()).WithField("preprocessor", p.Name()).Debug("pre-processor applied")
		report = next
	}
	return report, nil
}

// RunSubReport applies processors to a sub-report in order.
func RunSubReport(ctx context.Context, report *model.SubReport, flow Flow, processors []ReportPreProcessor) (*model.SubReport, error) {
	log := logutil.Or(flow.Logger())
	for _, p := range processors {
		if err := ctx.Err(); err != nil {
			return nil, reporterr.Interrupted("pre-process "+report.Name(), err)
		}
		next, err := p.PerformSubReportPreProcessing(ctx, report, flow)
		if err != nil {
			return nil, fmt.Errorf("pre-processor %s failed: %w", p.Name(), err)
		}
		if next == nil {
			return nil, reporterr.Newf(reporterr.KindInvalidState, "pre-processor "+p.Name(), "returned no sub-report")
		}
		log.WithField("subreport", report.Name()).WithField("preprocessor", p.Name()).Debug("pre-processor applied")
		report = next
	}
	return report, nil
}

// StaticFlow is a Flow over fixed values.
type StaticFlow struct {
	Params  table.DataRow
	Columns map[string][]string
	Level   string
	Log     logrus.FieldLogger

	mu       sync.Mutex
	warnings []string
}

func (f *StaticFlow) Parameters() table.DataRow {
	if f.Params == nil {
		return table.EmptyDataRow
	}
	return f.Params
}

func (f *StaticFlow) QueryColumns(_ context.Context, query string) ([]string, error) {
	cols, ok := f.Columns[query]
	if !ok {
		return nil, reporterr.Newf(reporterr.KindDataFactory, "query "+query, "unknown query")
	}
	return cols, nil
}

func (f *StaticFlow) CompatibilityLevel() string { return f.Level }

func (f *StaticFlow) Warn(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.warnings = append(f.warnings, fmt.Sprintf(format, args...))
}

// Warnings returns the recorded warnings.
func (f *StaticFlow) Warnings() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.warnings...)
}

func (f *StaticFlow) Logger() logrus.FieldLogger { return logutil.Or(f.Log) }

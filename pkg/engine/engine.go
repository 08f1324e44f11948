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

// Package engine binds a master report to its data: it validates the
// parameters, runs the pre-processors and the report query, and builds the
// group, sub-report and crosstab structures a layouter consumes.
package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pingcap/report-engine/pkg/config"
	"github.com/pingcap/report-engine/pkg/datafactory"
	"github.com/pingcap/report-engine/pkg/formula"
	"github.com/pingcap/report-engine/pkg/logutil"
	"github.com/pingcap/report-engine/pkg/model"
	"github.com/pingcap/report-engine/pkg/parameters"
	"github.com/pingcap/report-engine/pkg/preprocess"
	"github.com/pingcap/report-engine/pkg/reporterr"
	"github.com/pingcap/report-engine/pkg/resource"
	"github.com/pingcap/report-engine/pkg/table"
)

// Configuration keys read by the processor.
const (
	KeyFailOnEmpty          = "engine.fail-on-empty"
	KeyMaxSubReportDepth    = "engine.max-subreport-depth"
	KeySubReportParallelism = "engine.subreport-parallelism"
	KeyPreProcessors        = "engine.preprocessors"
	KeyQueryTimeout         = "engine.query-timeout"
)

const (
	defaultMaxSubReportDepth    = 8
	defaultSubReportParallelism = 4
)

// Options configure a Processor. Zero values get defaults.
type Options struct {
	Config    config.Configuration
	Resources resource.Manager
	// ContextKey is the resource key of the report; relative resources are
	// resolved against it.
	ContextKey resource.Key
	Formula    formula.Context
	Registry   *preprocess.Registry
	// PreProcessors run before the ones declared on the report. When nil the
	// comma separated list in engine.preprocessors is used.
	PreProcessors []string
	Logger        logrus.FieldLogger
}

// Processor binds master reports to their data.
type Processor struct {
	cfg       config.Configuration
	resources resource.Manager
	key       resource.Key
	formula   formula.Context
	registry  *preprocess.Registry
	global    []string
	log       logrus.FieldLogger
}

// NewProcessor creates a processor.
func NewProcessor(opts Options) *Processor {
	p := &Processor{
		cfg:       opts.Config,
		resources: opts.Resources,
		key:       opts.ContextKey,
		formula:   opts.Formula,
		registry:  opts.Registry,
		global:    opts.PreProcessors,
		log:       logutil.Or(opts.Logger),
	}
	if p.cfg == nil {
		p.cfg = config.NewProperties(nil)
	}
	if p.resources == nil {
		p.resources = resource.MapManager{}
	}
	if p.formula == nil {
		p.formula = formula.NewMapContext("", nil)
	}
	if p.registry == nil {
		p.registry = preprocess.DefaultRegistry()
	}
	if p.global == nil {
		for _, name := range strings.Split(p.cfg.Property(KeyPreProcessors, ""), ",") {
			if name = strings.TrimSpace(name); name != "" {
				p.global = append(p.global, name)
			}
		}
	}
	return p
}

// Step records how long a processing step took.
type Step struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
}

// Binding is the data bound to one report definition.
type Binding struct {
	Data *table.TableModel
	// Groups are the instances of the root group.
	Groups []*GroupInstance
	// DataBand is the item band, or the no-data band when there are no rows.
	DataBand   *model.Band
	SubReports []*SubReportBinding
	Crosstabs  []*Pivot
	// Exports holds the values exported by sub-reports bound outside the
	// data body.
	Exports map[string]any
	Empty   bool
}

// Result is the outcome of processing a master report.
type Result struct {
	Binding
	// Report is the processed copy of the definition.
	Report     *model.MasterReport
	Parameters *table.StaticDataRow
	Validation *parameters.ValidationResult
	Warnings   []string
	Steps      []Step
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns the total processing time.
func (r *Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// run holds the state of one Process call.
type run struct {
	p           *Processor
	master      *model.MasterReport
	dfc         *datafactory.FactoryContext
	log         logrus.FieldLogger
	maxDepth    int
	parallelism int
	timeout     time.Duration

	mu       sync.Mutex
	warnings []string
}

func (r *run) warn(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = append(r.warnings, msg)
	r.log.Warn(msg)
}

// Process binds report to its data. The report itself is not modified; a
// processed copy is returned in the result. A parameter validation failure
// returns an error wrapping *parameters.ValidationError.
func (p *Processor) Process(ctx context.Context, report *model.MasterReport, raw table.DataRow) (*Result, error) {
	res := &Result{StartedAt: time.Now()}
	log := p.log.WithField("report", report.Name())
	r := &run{
		p:           p,
		log:         log,
		maxDepth:    p.cfg.Int(KeyMaxSubReportDepth, defaultMaxSubReportDepth),
		parallelism: p.cfg.Int(KeySubReportParallelism, defaultSubReportParallelism),
		timeout:     p.cfg.Duration(KeyQueryTimeout, 0),
	}
	if r.parallelism < 1 {
		r.parallelism = 1
	}
	step := func(name string, fn func() error) error {
		if err := ctx.Err(); err != nil {
			return reporterr.Interrupted(name, err)
		}
		start := time.Now()
		err := fn()
		res.Steps = append(res.Steps, Step{Name: name, Duration: time.Since(start)})
		return err
	}

	var work *model.MasterReport
	err := step("clone", func() error {
		var err error
		if work, err = report.Clone(); err != nil {
			return reporterr.New(reporterr.KindDefinition, "clone "+report.Name(), err)
		}
		return errors.Join(work.ValidateStructure()...)
	})
	if err != nil {
		return nil, err
	}
	if work.DataFactory == nil {
		return nil, reporterr.Newf(reporterr.KindInvalidState, "process "+report.Name(), "report has no data factory")
	}
	r.master = work

	r.dfc = &datafactory.FactoryContext{
		Config:    p.cfg,
		Resources: p.resources,
		Key:       p.key,
		Formula:   p.formula,
		Log:       log,
	}
	factory := work.DataFactory
	err = step("initialize", func() error {
		return initialize(ctx, factory, r.dfc)
	})
	if err != nil {
		return nil, err
	}
	opened := []datafactory.DataFactory{factory}
	defer func() {
		for _, f := range opened {
			if cerr := f.Close(); cerr != nil {
				log.WithError(cerr).Warn("failed to close data factory")
			}
		}
	}()

	var params *table.StaticDataRow
	err = step("parameters", func() error {
		pc := &parameters.DefaultContext{
			Factory:   factory,
			Values:    raw,
			Config:    p.cfg,
			Resources: p.resources,
			Formula:   p.formula,
		}
		vr, err := parameters.Validate(ctx, pc, work.Parameters, raw)
		if err != nil {
			return err
		}
		res.Validation = vr
		if vr.HasErrors() {
			return reporterr.New(reporterr.KindParameterValidation, "validate parameters", &parameters.ValidationError{Result: vr})
		}
		params = vr.Parameters()
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = step("preprocess", func() error {
		procs, err := p.registry.Resolve(append(append([]string(nil), p.global...), work.PreProcessors...))
		if err != nil {
			return err
		}
		fl := r.newFlow(factory, params)
		processed, err := preprocess.Run(ctx, work, fl, procs)
		if err != nil {
			return err
		}
		switch {
		case processed.DataFactory == nil:
			processed.DataFactory = factory
		case processed.DataFactory != factory:
			// A pre-processor supplied its own factory; it is initialized
			// here and closed together with the original one.
			if err := initialize(ctx, processed.DataFactory, r.dfc); err != nil {
				return err
			}
			opened = append(opened, processed.DataFactory)
		}
		work = processed
		return nil
	})
	if err != nil {
		return nil, err
	}

	var b *Binding
	err = step("bind", func() error {
		var err error
		b, err = r.bind(ctx, &work.ReportDefinition, params, 0)
		return err
	})
	if err != nil {
		return nil, err
	}

	if b.Empty && p.cfg.Bool(KeyFailOnEmpty, false) {
		return nil, reporterr.Newf(reporterr.KindEmptyReport, "process "+report.Name(), "query %s returned no rows", work.Query)
	}

	res.Binding = *b
	res.Report = work
	res.Parameters = params
	res.Warnings = append(res.Warnings, r.warnings...)
	res.FinishedAt = time.Now()
	log.WithFields(logrus.Fields{
		"rows":       b.Data.RowCount(),
		"subreports": len(b.SubReports),
		"duration":   res.Duration().String(),
	}).Info("report processed")
	return res, nil
}

func initialize(ctx context.Context, f datafactory.DataFactory, dfc datafactory.DataFactoryContext) error {
	const op = "initialize data factory"
	err := f.Initialize(ctx, dfc)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, reporterr.ErrProcessing):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return reporterr.Interrupted(op, err)
	default:
		return reporterr.New(reporterr.KindDataFactory, op, err)
	}
}

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

package reporter

import (
	"fmt"
	"io"
	"strings"

	"github.com/pingcap/report-engine/pkg/engine"
	"github.com/pingcap/report-engine/pkg/reporter/formats"
	"github.com/pingcap/report-engine/pkg/reporter/formats/json"
	"github.com/pingcap/report-engine/pkg/reporter/formats/markdown"
	"github.com/pingcap/report-engine/pkg/reporter/formats/text"
)

// Format is the summary format
type Format = formats.Format

const (
	// JSONFormat represents JSON format
	JSONFormat = formats.JSONFormat
	// TextFormat represents plain text format
	TextFormat = formats.TextFormat
	// MarkdownFormat represents markdown format
	MarkdownFormat = formats.MarkdownFormat
)

type formatter interface {
	Generate(result *engine.Result, options *formats.Options) (string, error)
}

// Reporter renders processing summaries of engine results
type Reporter struct {
	format  Format
	maxRows int
}

// NewReporter creates a new reporter
func NewReporter(format Format) *Reporter {
	return &Reporter{format: format}
}

// WithMaxRows lists up to n data rows in the summary
func (r *Reporter) WithMaxRows(n int) *Reporter {
	r.maxRows = n
	return r
}

// ParseFormat parses a format name, case insensitive
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case JSONFormat, TextFormat, MarkdownFormat:
		return f, nil
	case "md":
		return MarkdownFormat, nil
	default:
		return "", fmt.Errorf("unsupported summary format: %s", s)
	}
}

// Generate generates the summary of result
func (r *Reporter) Generate(result *engine.Result) ([]byte, error) {
	if result == nil || result.Report == nil || result.Data == nil {
		return nil, fmt.Errorf("no processing result to summarize")
	}
	var f formatter
	switch r.format {
	case JSONFormat:
		f = json.NewJSONFormatter()
	case TextFormat:
		f = text.NewTextFormatter()
	case MarkdownFormat:
		f = markdown.NewMarkdownFormatter()
	default:
		return nil, fmt.Errorf("unsupported summary format: %s", r.format)
	}
	out, err := f.Generate(result, &formats.Options{Format: r.format, MaxRows: r.maxRows})
	if err != nil {
		return nil, fmt.Errorf("failed to generate %s summary: %w", r.format, err)
	}
	return []byte(out), nil
}

// Write generates the summary of result and writes it to w
func (r *Reporter) Write(w io.Writer, result *engine.Result) error {
	data, err := r.Generate(result)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

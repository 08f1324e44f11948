package formats

import (
	"github.com/pingcap/report-engine/pkg/engine"
)

// Format represents the output format
type Format string

const (
	TextFormat     Format = "text"
	MarkdownFormat Format = "markdown"
	JSONFormat     Format = "json"
)

// Options represents summary options
type Options struct {
	Format Format
	// MaxRows limits the data rows listed per binding; 0 lists none.
	MaxRows int
}

// ReportSection represents a section of the summary (e.g., groups, crosstabs)
// Each section is independent and can be rendered in different formats
type ReportSection interface {
	// Name returns the section name (e.g., "Groups", "Sub-reports")
	Name() string

	// Render renders the section content in the specified format
	Render(format Format, result *engine.Result, options *Options) (string, error)

	// HasContent checks if this section has any content to render
	HasContent(result *engine.Result) bool
}

// ReportHeader renders the header of the summary
type ReportHeader interface {
	Render(result *engine.Result) (string, error)
}

// ReportFooter renders the footer of the summary
type ReportFooter interface {
	Render(result *engine.Result) (string, error)
}

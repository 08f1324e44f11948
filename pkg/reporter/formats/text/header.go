package text

import (
	"fmt"
	"strings"

	"github.com/pingcap/report-engine/pkg/engine"
	"github.com/pingcap/report-engine/pkg/reporter/sections"
)

// TextHeader renders the header for text format
type TextHeader struct{}

// NewTextHeader creates a new text header renderer
func NewTextHeader() *TextHeader {
	return &TextHeader{}
}

// Render renders the report name, parameters, warnings and timing
func (h *TextHeader) Render(result *engine.Result) (string, error) {
	var content strings.Builder

	content.WriteString("=== REPORT PROCESSING SUMMARY ===\n")
	content.WriteString(fmt.Sprintf("Report: %s\n", result.Report.Name()))
	content.WriteString(fmt.Sprintf("Query: %s\n", result.Report.Query))
	content.WriteString(fmt.Sprintf("Rows: %d\n", result.Data.RowCount()))
	if result.Empty {
		content.WriteString("No data: the no-data band is used\n")
	}
	content.WriteString(fmt.Sprintf("Started At: %s\n", result.StartedAt.Format("2006-01-02 15:04:05")))
	content.WriteString(fmt.Sprintf("Duration: %s\n", result.Duration()))
	content.WriteString("\n")

	if names := sections.ParameterNames(result); len(names) > 0 {
		content.WriteString("PARAMETERS:\n")
		for _, name := range names {
			v, _ := result.Parameters.Get(name)
			content.WriteString(fmt.Sprintf("  %s = %s\n", name, sections.FormatValue(v)))
		}
		content.WriteString("\n")
	}

	warnings := append(sections.Warnings(result), result.Warnings...)
	if len(warnings) > 0 {
		content.WriteString("WARNINGS:\n")
		for _, w := range warnings {
			content.WriteString(fmt.Sprintf("  - %s\n", w))
		}
		content.WriteString("\n")
	}

	content.WriteString("STEPS:\n")
	for _, s := range result.Steps {
		content.WriteString(fmt.Sprintf("  %-12s %s\n", s.Name, s.Duration))
	}
	content.WriteString("\n")

	return content.String(), nil
}

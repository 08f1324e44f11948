package markdown

import (
	"fmt"
	"strings"

	"github.com/pingcap/report-engine/pkg/engine"
	"github.com/pingcap/report-engine/pkg/reporter/sections"
)

// MarkdownHeader renders the header for markdown format
type MarkdownHeader struct{}

// NewMarkdownHeader creates a new markdown header renderer
func NewMarkdownHeader() *MarkdownHeader {
	return &MarkdownHeader{}
}

// Render renders the header content
func (h *MarkdownHeader) Render(result *engine.Result) (string, error) {
	var content strings.Builder

	content.WriteString(fmt.Sprintf("# Report Processing Summary: %s\n\n", result.Report.Name()))
	content.WriteString(fmt.Sprintf("**Query:** `%s`  \n", result.Report.Query))
	content.WriteString(fmt.Sprintf("**Rows:** %d  \n", result.Data.RowCount()))
	content.WriteString(fmt.Sprintf("**Started At:** %s  \n", result.StartedAt.Format("2006-01-02 15:04:05")))
	content.WriteString(fmt.Sprintf("**Duration:** %s\n\n", result.Duration()))
	if result.Empty {
		content.WriteString("> The query returned no rows; the no-data band is used.\n\n")
	}

	if names := sections.ParameterNames(result); len(names) > 0 {
		content.WriteString("## Parameters\n\n")
		content.WriteString("| Parameter | Value |\n")
		content.WriteString("|-----------|-------|\n")
		for _, name := range names {
			v, _ := result.Parameters.Get(name)
			content.WriteString(fmt.Sprintf("| `%s` | %s |\n", name, sections.FormatValue(v)))
		}
		content.WriteString("\n")
	}

	warnings := append(sections.Warnings(result), result.Warnings...)
	if len(warnings) > 0 {
		content.WriteString("## Warnings\n\n")
		for _, w := range warnings {
			content.WriteString(fmt.Sprintf("- %s\n", w))
		}
		content.WriteString("\n")
	}

	content.WriteString("## Steps\n\n")
	content.WriteString("| Step | Duration |\n")
	content.WriteString("|------|----------|\n")
	for _, s := range result.Steps {
		content.WriteString(fmt.Sprintf("| %s | %s |\n", s.Name, s.Duration))
	}
	content.WriteString("\n")

	return content.String(), nil
}

package sections

import (
	"fmt"
	"strings"

	"github.com/pingcap/report-engine/pkg/engine"
	"github.com/pingcap/report-engine/pkg/reporter/formats"
)

// CrosstabsSection renders the evaluated crosstabs
type CrosstabsSection struct{}

// NewCrosstabsSection creates a new crosstabs section
func NewCrosstabsSection() *CrosstabsSection {
	return &CrosstabsSection{}
}

func (s *CrosstabsSection) Name() string {
	return "Crosstabs"
}

func (s *CrosstabsSection) HasContent(result *engine.Result) bool {
	return len(result.Crosstabs) > 0
}

// Render prints one table per crosstab; cells with several measures join
// the values with "; "
func (s *CrosstabsSection) Render(format formats.Format, result *engine.Result, _ *formats.Options) (string, error) {
	var content strings.Builder
	switch format {
	case formats.TextFormat:
		content.WriteString("CROSSTABS:\n")
	case formats.MarkdownFormat:
		content.WriteString("## Crosstabs\n\n")
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}

	for _, p := range result.Crosstabs {
		header := []string{strings.Join(p.RowFields, " / ")}
		for _, ck := range p.ColumnKeys {
			header = append(header, formatKey(ck))
		}
		var rows [][]string
		for ri, rk := range p.RowKeys {
			row := []string{formatKey(rk)}
			for ci := range p.ColumnKeys {
				row = append(row, formatCell(p.Cells[ri][ci]))
			}
			rows = append(rows, row)
		}

		if format == formats.TextFormat {
			content.WriteString(fmt.Sprintf("  %s [%s]\n", p.Name, strings.Join(p.Measures, "; ")))
			content.WriteString("    " + strings.Join(header, " | ") + "\n")
			for _, row := range rows {
				content.WriteString("    " + strings.Join(row, " | ") + "\n")
			}
			continue
		}
		content.WriteString(fmt.Sprintf("### %s\n\n", p.Name))
		content.WriteString(fmt.Sprintf("Measures: %s\n\n", strings.Join(p.Measures, "; ")))
		content.WriteString("| " + strings.Join(header, " | ") + " |\n")
		content.WriteString("|" + strings.Repeat("---|", len(header)) + "\n")
		for _, row := range rows {
			content.WriteString("| " + strings.Join(row, " | ") + " |\n")
		}
		content.WriteString("\n")
	}
	return content.String(), nil
}

func formatCell(values []any) string {
	if len(values) == 0 {
		return ""
	}
	empty := true
	parts := make([]string, len(values))
	for i, v := range values {
		if v != nil {
			empty = false
		}
		parts[i] = FormatValue(v)
	}
	if empty {
		return "-"
	}
	return strings.Join(parts, "; ")
}

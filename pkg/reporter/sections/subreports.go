package sections

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pingcap/report-engine/pkg/engine"
	"github.com/pingcap/report-engine/pkg/reporter/formats"
)

// SubReportsSection renders the sub-report bindings
type SubReportsSection struct{}

// NewSubReportsSection creates a new sub-reports section
func NewSubReportsSection() *SubReportsSection {
	return &SubReportsSection{}
}

func (s *SubReportsSection) Name() string {
	return "Sub-reports"
}

func (s *SubReportsSection) HasContent(result *engine.Result) bool {
	return len(result.SubReports) > 0
}

// Render lists every binding, nested bindings indented below their parent
func (s *SubReportsSection) Render(format formats.Format, result *engine.Result, _ *formats.Options) (string, error) {
	var content strings.Builder
	var write func(bindings []*engine.SubReportBinding, depth int)
	switch format {
	case formats.TextFormat:
		content.WriteString("SUB-REPORTS:\n")
		write = func(bindings []*engine.SubReportBinding, depth int) {
			indent := strings.Repeat("  ", depth+1)
			for _, sb := range bindings {
				content.WriteString(fmt.Sprintf("%s%s (%s): %d rows\n", indent, sb.Name, rowLabel(sb.Row), sb.Data.RowCount()))
				if v := formatMap(sb.Values); v != "" {
					content.WriteString(fmt.Sprintf("%s  Exports: %s\n", indent, v))
				}
				write(sb.SubReports, depth+1)
			}
		}
	case formats.MarkdownFormat:
		content.WriteString("## Sub-reports\n\n")
		write = func(bindings []*engine.SubReportBinding, depth int) {
			indent := strings.Repeat("  ", depth)
			for _, sb := range bindings {
				content.WriteString(fmt.Sprintf("%s- `%s` (%s): %d rows", indent, sb.Name, rowLabel(sb.Row), sb.Data.RowCount()))
				if v := formatMap(sb.Values); v != "" {
					content.WriteString(fmt.Sprintf(", exports %s", v))
				}
				content.WriteString("\n")
				write(sb.SubReports, depth+1)
			}
		}
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
	write(result.SubReports, 0)
	return content.String(), nil
}

func rowLabel(row int) string {
	if row < 0 {
		return "once"
	}
	return fmt.Sprintf("row %d", row)
}

func formatMap(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + FormatValue(m[k])
	}
	return strings.Join(parts, ", ")
}

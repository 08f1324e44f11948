package sections

import (
	"fmt"
	"strings"

	"github.com/pingcap/report-engine/pkg/engine"
	"github.com/pingcap/report-engine/pkg/reporter/formats"
)

// DataSection renders the first rows of the report data
type DataSection struct{}

// NewDataSection creates a new data section
func NewDataSection() *DataSection {
	return &DataSection{}
}

func (s *DataSection) Name() string {
	return "Data"
}

func (s *DataSection) HasContent(result *engine.Result) bool {
	return result.Data != nil && result.Data.RowCount() > 0
}

// Render renders nothing unless options ask for rows
func (s *DataSection) Render(format formats.Format, result *engine.Result, options *formats.Options) (string, error) {
	if options == nil || options.MaxRows <= 0 {
		return "", nil
	}
	listed := rows(result.Data, options.MaxRows)
	cells := make([][]string, len(listed))
	for i, row := range listed {
		cells[i] = make([]string, len(row))
		for j, v := range row {
			cells[i][j] = FormatValue(v)
		}
	}
	more := result.Data.RowCount() - len(listed)

	var content strings.Builder
	switch format {
	case formats.TextFormat:
		content.WriteString("DATA:\n")
		content.WriteString("  " + strings.Join(result.Data.Columns(), " | ") + "\n")
		for _, row := range cells {
			content.WriteString("  " + strings.Join(row, " | ") + "\n")
		}
		if more > 0 {
			content.WriteString(fmt.Sprintf("  ... %d more rows\n", more))
		}
	case formats.MarkdownFormat:
		content.WriteString("## Data\n\n")
		content.WriteString("| " + strings.Join(result.Data.Columns(), " | ") + " |\n")
		content.WriteString("|" + strings.Repeat("---|", result.Data.ColumnCount()) + "\n")
		for _, row := range cells {
			content.WriteString("| " + strings.Join(row, " | ") + " |\n")
		}
		if more > 0 {
			content.WriteString(fmt.Sprintf("\n*%d more rows*\n", more))
		}
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
	return content.String(), nil
}

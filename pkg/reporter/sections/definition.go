package sections

import (
	"fmt"
	"strings"

	"github.com/pingcap/report-engine/pkg/engine"
	"github.com/pingcap/report-engine/pkg/reporter/formats"
)

// DefinitionSection renders the element tree of the processed definition
type DefinitionSection struct{}

// NewDefinitionSection creates a new definition section
func NewDefinitionSection() *DefinitionSection {
	return &DefinitionSection{}
}

func (s *DefinitionSection) Name() string {
	return "Definition"
}

func (s *DefinitionSection) HasContent(result *engine.Result) bool {
	return result.Report != nil
}

// Render lists every non-empty element, indented by nesting depth
func (s *DefinitionSection) Render(format formats.Format, result *engine.Result, _ *formats.Options) (string, error) {
	lines := Tree(result.Report)
	var content strings.Builder
	switch format {
	case formats.TextFormat:
		content.WriteString("DEFINITION:\n")
		for _, l := range lines {
			content.WriteString(fmt.Sprintf("  %s%s %q\n", strings.Repeat("  ", l.Depth), l.Type, l.Name))
		}
	case formats.MarkdownFormat:
		content.WriteString("## Definition\n\n")
		for _, l := range lines {
			content.WriteString(fmt.Sprintf("%s- **%s** `%s`\n", strings.Repeat("  ", l.Depth), l.Type, l.Name))
		}
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
	return content.String(), nil
}

package markdown

import (
	"fmt"
	"strings"

	"github.com/pingcap/report-engine/pkg/engine"
	"github.com/pingcap/report-engine/pkg/reporter/formats"
	"github.com/pingcap/report-engine/pkg/reporter/sections"
)

// MarkdownFormatter handles markdown format rendering
type MarkdownFormatter struct {
	sections []formats.ReportSection
	header   formats.ReportHeader
	footer   formats.ReportFooter
}

// NewMarkdownFormatter creates a new markdown formatter
func NewMarkdownFormatter() *MarkdownFormatter {
	return &MarkdownFormatter{
		sections: []formats.ReportSection{
			sections.NewDefinitionSection(),
			sections.NewGroupsSection(),
			sections.NewSubReportsSection(),
			sections.NewCrosstabsSection(),
			sections.NewDataSection(),
		},
		header: NewMarkdownHeader(),
		footer: NewMarkdownFooter(),
	}
}

// Generate generates a complete markdown format summary
func (f *MarkdownFormatter) Generate(result *engine.Result, options *formats.Options) (string, error) {
	var content strings.Builder

	headerContent, err := f.header.Render(result)
	if err != nil {
		return "", fmt.Errorf("failed to render header: %w", err)
	}
	content.WriteString(headerContent)

	for _, section := range f.sections {
		if !section.HasContent(result) {
			continue
		}
		sectionContent, err := section.Render(formats.MarkdownFormat, result, options)
		if err != nil {
			return "", fmt.Errorf("failed to render section %s: %w", section.Name(), err)
		}
		if sectionContent == "" {
			continue
		}
		content.WriteString(sectionContent)
		content.WriteString("\n")
	}

	footerContent, err := f.footer.Render(result)
	if err != nil {
		return "", fmt.Errorf("failed to render footer: %w", err)
	}
	content.WriteString(footerContent)

	return content.String(), nil
}

package text

import (
	"fmt"
	"strings"

	"github.com/pingcap/report-engine/pkg/engine"
	"github.com/pingcap/report-engine/pkg/reporter/formats"
	"github.com/pingcap/report-engine/pkg/reporter/sections"
)

// TextFormatter handles text format rendering
type TextFormatter struct {
	sections []formats.ReportSection
	header   formats.ReportHeader
	footer   formats.ReportFooter
}

// NewTextFormatter creates a new text formatter
func NewTextFormatter() *TextFormatter {
	return &TextFormatter{
		sections: []formats.ReportSection{
			sections.NewDefinitionSection(),
			sections.NewGroupsSection(),
			sections.NewSubReportsSection(),
			sections.NewCrosstabsSection(),
			sections.NewDataSection(),
		},
		header: NewTextHeader(),
		footer: NewTextFooter(),
	}
}

// Generate generates a complete text format summary
func (f *TextFormatter) Generate(result *engine.Result, options *formats.Options) (string, error) {
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
		sectionContent, err := section.Render(formats.TextFormat, result, options)
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

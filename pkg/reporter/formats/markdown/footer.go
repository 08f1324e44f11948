package markdown

import (
	"strings"

	"github.com/pingcap/report-engine/pkg/engine"
)

// MarkdownFooter renders the footer for markdown format
type MarkdownFooter struct{}

// NewMarkdownFooter creates a new markdown footer renderer
func NewMarkdownFooter() *MarkdownFooter {
	return &MarkdownFooter{}
}

// Render renders the footer content
func (f *MarkdownFooter) Render(result *engine.Result) (string, error) {
	var content strings.Builder

	content.WriteString("---\n")
	content.WriteString("*End of Summary*\n")

	return content.String(), nil
}

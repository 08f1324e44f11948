package text

import (
	"strings"

	"github.com/pingcap/report-engine/pkg/engine"
)

// TextFooter renders the footer for text format
type TextFooter struct{}

// NewTextFooter creates a new text footer renderer
func NewTextFooter() *TextFooter {
	return &TextFooter{}
}

// Render renders the footer content
func (f *TextFooter) Render(result *engine.Result) (string, error) {
	var content strings.Builder

	content.WriteString("=================================\n")
	content.WriteString("End of Summary\n")
	content.WriteString("=================================\n")

	return content.String(), nil
}

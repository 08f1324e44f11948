package json

import (
	"encoding/json"

	"github.com/pingcap/report-engine/pkg/engine"
	"github.com/pingcap/report-engine/pkg/reporter/formats"
	"github.com/pingcap/report-engine/pkg/reporter/sections"
)

// JSONFormatter handles JSON format rendering
type JSONFormatter struct{}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

// Generate serializes the summary of result
// JSON format doesn't need header/footer/sections
func (f *JSONFormatter) Generate(result *engine.Result, options *formats.Options) (string, error) {
	maxRows := 0
	if options != nil {
		maxRows = options.MaxRows
	}
	data, err := json.MarshalIndent(sections.Summarize(result, maxRows), "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

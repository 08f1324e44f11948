// Package reporter renders processing summaries of engine results.
// The format specific implementations are in pkg/reporter/formats/.
package reporter

import (
	"github.com/pingcap/report-engine/pkg/reporter/formats"
)

// ReportSection represents a section in the summary.
// Implementations are in pkg/reporter/sections/.
type ReportSection = formats.ReportSection

// ReportHeader renders the header of the summary.
type ReportHeader = formats.ReportHeader

// ReportFooter renders the footer of the summary.
type ReportFooter = formats.ReportFooter

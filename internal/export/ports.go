// Package export writes monthly reports to an external destination.
package export

import (
	"context"

	"fintrack/internal/core"
)

// ReportExporter appends a monthly report row somewhere durable and
// returns a reference to where it landed.
type ReportExporter interface {
	AppendReport(ctx context.Context, report core.MonthlyReport) (ref string, err error)
}

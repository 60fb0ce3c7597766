// Package sheets publishes ledger reports to spreadsheets.
package sheets

import (
	"context"

	"ledger/internal/core"
)

// ReportExporter receives every new seven-day report snapshot.
type ReportExporter interface {
	ExportReport(ctx context.Context, r core.Report) error
}

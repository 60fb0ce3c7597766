// Package memory keeps exported reports in process, for tests and for
// running without a spreadsheet.
package memory

import (
	"context"
	"sync"

	"ledger/internal/core"
	ports "ledger/internal/sheets"
)

type Exporter struct {
	mu      sync.Mutex
	reports []core.Report
}

var _ ports.ReportExporter = (*Exporter)(nil)

func New() *Exporter {
	return &Exporter{}
}

func (e *Exporter) ExportReport(ctx context.Context, r core.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reports = append(e.reports, r)
	return nil
}

// Latest returns the last exported report.
func (e *Exporter) Latest() (core.Report, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.reports) == 0 {
		return core.Report{}, false
	}
	return e.reports[len(e.reports)-1], true
}

// Count returns how many exports happened.
func (e *Exporter) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.reports)
}

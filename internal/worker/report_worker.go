// Package worker runs the background side of the ledger: exporting the
// seven-day report and folding in changes made by other processes.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"ledger/internal/amqp"
	"ledger/internal/cache"
	"ledger/internal/core"
	applog "ledger/internal/log"
	"ledger/internal/sheets"
	"ledger/internal/store"
)

// ReportSource is the live report the worker exports.
type ReportSource interface {
	Report() *cache.Subscription[core.Report]
}

// Config holds configuration for the report worker
type Config struct {
	// RefreshInterval is how often the store is re-read as a safety net for
	// lost change messages, and how often a failed export is retried (default: 30s).
	RefreshInterval time.Duration
}

func DefaultConfig() Config {
	return Config{RefreshInterval: 30 * time.Second}
}

// ReportWorker holds a subscription to the report view and exports every
// new snapshot.
type ReportWorker struct {
	reports   ReportSource
	exporter  sheets.ReportExporter
	refresher store.Refresher
	config    Config
	logger    *slog.Logger

	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	exported int
}

// NewReportWorker creates a worker. refresher may be nil when the store
// cannot change behind the process's back.
func NewReportWorker(reports ReportSource, exporter sheets.ReportExporter, refresher store.Refresher, config Config) *ReportWorker {
	if config.RefreshInterval <= 0 {
		config.RefreshInterval = DefaultConfig().RefreshInterval
	}
	return &ReportWorker{
		reports:   reports,
		exporter:  exporter,
		refresher: refresher,
		config:    config,
		logger:    slog.Default().With(applog.FieldComponent, applog.ComponentWorker),
	}
}

// Start begins the export loop. Returns an error if already running.
func (w *ReportWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return errors.New("report worker is already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})

	sub := w.reports.Report()
	go w.runLoop(ctx, sub, w.stopCh, w.doneCh)

	w.logger.InfoContext(ctx, "Report worker started", "refresh_interval", w.config.RefreshInterval)
	return nil
}

// Stop stops the loop and waits for it to finish or ctx to end.
func (w *ReportWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	stopCh, doneCh := w.stopCh, w.doneCh
	w.running = false
	w.mu.Unlock()

	close(stopCh)
	select {
	case <-doneCh:
		w.logger.InfoContext(ctx, "Report worker stopped gracefully")
		return nil
	case <-ctx.Done():
		w.logger.WarnContext(ctx, "Report worker stop timed out")
		return ctx.Err()
	}
}

// IsRunning returns whether the worker is currently running
func (w *ReportWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Exported returns how many snapshots were exported successfully.
func (w *ReportWorker) Exported() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.exported
}

// HandleRecordChanged folds in a mutation committed by another process.
func (w *ReportWorker) HandleRecordChanged(ctx context.Context, msg *amqp.RecordChangedMessage) error {
	w.logger.InfoContext(ctx, "Processing record change",
		applog.FieldRecordID, msg.ID,
		applog.FieldOperation, string(msg.Op),
		applog.FieldMessageID, msg.MessageID)

	if w.refresher == nil {
		return nil
	}
	if err := w.refresher.Refresh(ctx); err != nil {
		return fmt.Errorf("refresh records: %w", err)
	}
	return nil
}

func (w *ReportWorker) runLoop(ctx context.Context, sub *cache.Subscription[core.Report], stopCh <-chan struct{}, doneCh chan struct{}) {
	defer close(doneCh)
	defer sub.Close()

	ticker := time.NewTicker(w.config.RefreshInterval)
	defer ticker.Stop()

	var (
		last    core.Report
		hasLast bool
		pending *core.Report
	)
	export := func(r core.Report) {
		if hasLast && reflect.DeepEqual(last, r) {
			pending = nil
			return
		}
		if err := w.exporter.ExportReport(ctx, r); err != nil {
			w.logger.ErrorContext(ctx, "Failed to export report",
				applog.FieldOperation, applog.OpExport,
				applog.FieldError, err)
			pending = &r
			return
		}
		last, hasLast, pending = r, true, nil
		w.mu.Lock()
		w.exported++
		w.mu.Unlock()
	}

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case r, ok := <-sub.C():
			if !ok {
				w.subscriptionEnded(ctx, stopCh, sub.Err())
				return
			}
			export(r)
		case <-ticker.C:
			if pending != nil {
				export(*pending)
			}
			if w.refresher != nil {
				if err := w.refresher.Refresh(ctx); err != nil {
					w.logger.WarnContext(ctx, "Periodic refresh failed", applog.FieldError, err)
				}
			}
		}
	}
}

// subscriptionEnded marks the worker stopped when the report computation
// ends on its own, so IsRunning reflects that nothing is exported anymore and
// Start can be called again.
func (w *ReportWorker) subscriptionEnded(ctx context.Context, stopCh <-chan struct{}, err error) {
	w.mu.Lock()
	if w.running && w.stopCh == stopCh {
		w.running = false
	}
	w.mu.Unlock()

	attrs := []any{applog.FieldOperation, applog.OpExport}
	if err != nil {
		attrs = append(attrs, applog.FieldError, err)
	}
	w.logger.ErrorContext(ctx, "Report subscription ended, worker stopped", attrs...)
}

package memory

import (
	"context"
	"testing"

	"ledger/internal/core"
)

func TestExporter_KeepsLatest(t *testing.T) {
	e := New()
	if _, ok := e.Latest(); ok {
		t.Fatal("new exporter should be empty")
	}

	for i := int64(1); i <= 3; i++ {
		if err := e.ExportReport(context.Background(), core.Report{Total: core.Money{Cents: i}}); err != nil {
			t.Fatalf("ExportReport: %v", err)
		}
	}

	latest, ok := e.Latest()
	if !ok || latest.Total.Cents != 3 {
		t.Errorf("Latest() = %v, %v; want total 3", latest, ok)
	}
	if e.Count() != 3 {
		t.Errorf("Count() = %d, want 3", e.Count())
	}
}

func TestExporter_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := New().ExportReport(ctx, core.Report{}); err == nil {
		t.Fatal("expected context error")
	}
}

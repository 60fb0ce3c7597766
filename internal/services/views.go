package services

import (
	"context"
	"log/slog"
	"time"

	"ledger/internal/cache"
	"ledger/internal/core"
	"ledger/internal/live"
	applog "ledger/internal/log"
	"ledger/internal/store"
	"ledger/internal/views"
)

// ViewOptions configures a ViewService.
type ViewOptions struct {
	Location    *time.Location
	GracePeriod time.Duration
	Now         func() time.Time
	Logger      *slog.Logger
}

// ViewService hands out shared, live views of the record store. All views
// hang off one shared store subscription; every distinct parameter set gets
// one computation regardless of how many consumers watch it.
type ViewService struct {
	store  store.RecordStore
	loc    *time.Location
	now    func() time.Time
	opts   cache.Options
	logger *slog.Logger

	records *cache.Shared[[]core.Record]
	lists   *cache.Registry[core.ListKey, core.ListView]
	totals  *cache.Registry[core.ListKey, core.Totals]
	report  *cache.Shared[core.Report]
	today   *cache.Shared[core.Totals]
}

func NewViewService(s store.RecordStore, opts ViewOptions) *ViewService {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	copts := cache.Options{GracePeriod: opts.GracePeriod, Logger: opts.Logger}

	v := &ViewService{
		store:  s,
		loc:    opts.Location,
		now:    opts.Now,
		opts:   copts,
		logger: opts.Logger.With(applog.FieldComponent, applog.ComponentViews),
		lists:  cache.NewRegistry[core.ListKey, core.ListView]("list", copts),
		totals: cache.NewRegistry[core.ListKey, core.Totals]("totals", copts),
	}
	v.records = cache.NewShared("records", cache.Source[[]core.Record](s.Watch), copts)
	v.report = cache.NewShared("report", v.reportSource, copts)
	v.today = cache.NewShared("today", v.todaySource, copts)
	return v
}

// Location returns the calendar location used for day boundaries.
func (v *ViewService) Location() *time.Location {
	return v.loc
}

// Now returns the current time of the service clock.
func (v *ViewService) Now() time.Time {
	return v.now()
}

// List subscribes to the list view for p.
func (v *ViewService) List(p core.ListParams) *cache.Subscription[core.ListView] {
	key := p.Key(v.loc)
	return v.lists.Subscribe(key, v.listSource(p))
}

// ListSnapshot returns the current list view for p.
func (v *ViewService) ListSnapshot(ctx context.Context, p core.ListParams) (core.ListView, error) {
	return v.lists.Snapshot(ctx, p.Key(v.loc), v.listSource(p))
}

// Totals subscribes to the totals derived from the list view for p.
func (v *ViewService) Totals(p core.ListParams) *cache.Subscription[core.Totals] {
	return v.totals.Subscribe(p.Key(v.loc), v.totalsSource(p))
}

func (v *ViewService) TotalsSnapshot(ctx context.Context, p core.ListParams) (core.Totals, error) {
	return v.totals.Snapshot(ctx, p.Key(v.loc), v.totalsSource(p))
}

// Report subscribes to the seven-day report. It is recomputed on every
// mutation and when the local day changes.
func (v *ViewService) Report() *cache.Subscription[core.Report] {
	return v.report.Subscribe()
}

func (v *ViewService) ReportSnapshot(ctx context.Context) (core.Report, error) {
	return v.report.Get(ctx)
}

// TodaySpent subscribes to the total of records stamped today.
func (v *ViewService) TodaySpent() *cache.Subscription[core.Totals] {
	return v.today.Subscribe()
}

func (v *ViewService) TodaySnapshot(ctx context.Context) (core.Totals, error) {
	return v.today.Get(ctx)
}

// Cleaners returns the registries a cache.Manager should prune.
func (v *ViewService) Cleaners() []cache.Cleaner {
	return []cache.Cleaner{v.lists, v.totals}
}

// Stats reports every cache entry owned by the service.
func (v *ViewService) Stats() []cache.Stats {
	out := []cache.Stats{v.records.Stats(), v.report.Stats(), v.today.Stats()}
	out = append(out, v.lists.Stats()...)
	return append(out, v.totals.Stats()...)
}

// subscribeRecords attaches to the shared store subscription for the life of ctx.
func (v *ViewService) subscribeRecords(ctx context.Context) <-chan []core.Record {
	sub := v.records.Subscribe()
	go func() {
		<-ctx.Done()
		sub.Close()
	}()
	return sub.C()
}

func (v *ViewService) listSource(p core.ListParams) cache.Source[core.ListView] {
	loc := v.loc
	return func(ctx context.Context) (<-chan core.ListView, error) {
		v.logger.Debug("Starting list derivation", applog.FieldView, "list", applog.FieldDay, core.DayKey(p.Day, loc))
		return live.Map(ctx, v.subscribeRecords(ctx), func(rs []core.Record) core.ListView {
			return views.BuildList(rs, p, loc)
		}), nil
	}
}

// totalsSource resolves the list entry when the computation starts, so a
// pruned list entry is recreated rather than kept alive off-registry.
func (v *ViewService) totalsSource(p core.ListParams) cache.Source[core.Totals] {
	key := p.Key(v.loc)
	return func(ctx context.Context) (<-chan core.Totals, error) {
		parent := v.lists.Get(key, v.listSource(p))
		return cache.Derive(parent, views.Totalize)(ctx)
	}
}

func (v *ViewService) reportSource(ctx context.Context) (<-chan core.Report, error) {
	loc := v.loc
	return live.Combine2(ctx, v.subscribeRecords(ctx), v.days(ctx), func(rs []core.Record, now time.Time) core.Report {
		return views.BuildReport(rs, now, loc)
	}), nil
}

func (v *ViewService) todaySource(ctx context.Context) (<-chan core.Totals, error) {
	loc := v.loc
	return live.Combine2(ctx, v.subscribeRecords(ctx), v.days(ctx), func(rs []core.Record, now time.Time) core.Totals {
		return views.DayTotal(rs, now, loc)
	}), nil
}

// days emits the current time right away and again just after every local
// midnight until ctx ends.
func (v *ViewService) days(ctx context.Context) <-chan time.Time {
	out := make(chan time.Time, 1)
	go func() {
		defer close(out)
		for {
			now := v.now()
			live.Offer(out, now)
			wait := core.NextMidnight(now, v.loc).Sub(now) + time.Millisecond
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
				v.logger.Debug("Day changed, recomputing dated views")
			}
		}
	}()
	return out
}

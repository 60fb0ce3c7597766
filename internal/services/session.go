package services

import (
	"context"
	"time"

	"ledger/internal/cache"
	"ledger/internal/core"
	"ledger/internal/live"
	"ledger/internal/views"
)

// Session is one consumer's list screen: a mutable parameter set combined
// with the live record set. Setters take effect on the next recomputation.
type Session struct {
	views  *ViewService
	params *live.Feed[core.ListParams]
	list   *cache.Shared[core.ListView]
	totals *cache.Shared[core.Totals]
}

// NewSession starts a session on today's records, grouped by time.
func (v *ViewService) NewSession() *Session {
	s := &Session{
		views:  v,
		params: live.NewFeedWith(core.ListParams{Day: v.now(), Grouping: core.ByTime}),
	}
	s.list = cache.NewShared("session/list", s.listSource, v.opts)
	s.totals = cache.NewShared("session/totals", cache.Derive(s.list, views.Totalize), v.opts)
	return s
}

func (s *Session) listSource(ctx context.Context) (<-chan core.ListView, error) {
	loc := s.views.loc
	return live.Combine2(ctx, s.views.subscribeRecords(ctx), s.params.Watch(ctx), func(rs []core.Record, p core.ListParams) core.ListView {
		return views.BuildList(rs, p, loc)
	}), nil
}

// Params returns the current parameters.
func (s *Session) Params() core.ListParams {
	p, _ := s.params.Value()
	return p
}

func (s *Session) SetDay(day time.Time) {
	s.params.Update(func(p core.ListParams) core.ListParams {
		p.Day = day
		return p
	})
}

func (s *Session) SetSearch(search string) {
	s.params.Update(func(p core.ListParams) core.ListParams {
		p.Search = search
		return p
	})
}

func (s *Session) SetGrouping(g core.Grouping) {
	s.params.Update(func(p core.ListParams) core.ListParams {
		p.Grouping = g
		return p
	})
}

// Apply replaces the parameters in one step, producing a single
// recomputation. A zero Day or empty Grouping keeps the current value.
func (s *Session) Apply(p core.ListParams) {
	s.params.Update(func(cur core.ListParams) core.ListParams {
		if !p.Day.IsZero() {
			cur.Day = p.Day
		}
		if p.Grouping != "" {
			cur.Grouping = p.Grouping
		}
		cur.Search = p.Search
		return cur
	})
}

// List subscribes to the session's list view.
func (s *Session) List() *cache.Subscription[core.ListView] {
	return s.list.Subscribe()
}

// Totals subscribes to totals derived from the session's list view.
func (s *Session) Totals() *cache.Subscription[core.Totals] {
	return s.totals.Subscribe()
}

// Close ends the session; open subscriptions see their channels closed.
func (s *Session) Close() {
	s.params.Close()
}

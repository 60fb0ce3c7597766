package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/cache"
	"ledger/internal/core"
	"ledger/internal/store/memory"
)

type viewFixture struct {
	store   *memory.Store
	records *RecordService
	views   *ViewService
	clock   *clock
}

func newViewFixture(t *testing.T, grace time.Duration) *viewFixture {
	t.Helper()
	st := memory.NewStore()
	t.Cleanup(func() { _ = st.Close() })
	clk := newClock(start)
	return &viewFixture{
		store:   st,
		records: NewRecordService(st, nil, nil).WithClock(clk.Now),
		views:   NewViewService(st, ViewOptions{Location: time.UTC, GracePeriod: grace, Now: clk.Now}),
		clock:   clk,
	}
}

func (f *viewFixture) add(t *testing.T, title string, cents int64, cat core.Category) core.Record {
	t.Helper()
	outcome, rec, err := f.records.Add(context.Background(), core.Draft{Title: title, Amount: core.Money{Cents: cents}, Category: cat})
	require.NoError(t, err)
	require.Equal(t, OutcomeSuccess, outcome)
	f.clock.Advance(time.Second)
	return rec
}

// waitFor reads from ch until a value satisfies ok.
func waitFor[T any](t *testing.T, ch <-chan T, ok func(T) bool) T {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case v, open := <-ch:
			require.True(t, open, "subscription closed")
			if ok(v) {
				return v
			}
		case <-deadline:
			t.Fatal("timed out waiting for matching value")
		}
	}
}

func TestViewService_ListAndTotalsStayConsistent(t *testing.T) {
	f := newViewFixture(t, time.Second)
	params := core.ListParams{Day: start, Grouping: core.ByCategory}

	list := f.views.List(params)
	defer list.Close()
	totals := f.views.Totals(params)
	defer totals.Close()

	f.add(t, "Coffee", 250, core.Food)
	f.add(t, "Taxi", 1800, core.Travel)
	f.add(t, "Lunch", 1200, core.Food)

	view := waitFor(t, list.C(), func(v core.ListView) bool { return v.Count() == 3 })
	tot := waitFor(t, totals.C(), func(v core.Totals) bool { return v.Count == 3 })

	require.Len(t, view.Groups, 2)
	assert.Equal(t, "Food", view.Groups[0].Key, "latest record's category appears first")
	assert.Equal(t, core.Money{Cents: 3250}, tot.Total)
}

func TestViewService_SameParamsShareOneEntry(t *testing.T) {
	f := newViewFixture(t, time.Second)
	a := f.views.List(core.ListParams{Day: start})
	defer a.Close()
	// A different instant of the same day maps to the same key.
	b := f.views.List(core.ListParams{Day: start.Add(5 * time.Hour)})
	defer b.Close()

	waitFor(t, a.C(), func(core.ListView) bool { return true })
	waitFor(t, b.C(), func(core.ListView) bool { return true })

	var lists []cache.Stats
	for _, s := range f.views.Stats() {
		if s.Subscribers > 0 && len(s.Name) > 5 && s.Name[:5] == "list/" {
			lists = append(lists, s)
		}
	}
	require.Len(t, lists, 1)
	assert.Equal(t, 2, lists[0].Subscribers)
	assert.Equal(t, int64(1), lists[0].Starts)
}

func TestViewService_SnapshotsAfterMutation(t *testing.T) {
	f := newViewFixture(t, time.Second)
	ctx := context.Background()
	f.add(t, "Coffee", 250, core.Food)

	require.Eventually(t, func() bool {
		tot, err := f.views.TodaySnapshot(ctx)
		return err == nil && tot.Count == 1 && tot.Total.Cents == 250
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		r, err := f.views.ReportSnapshot(ctx)
		return err == nil && r.Total.Cents == 250 && len(r.Days) == core.ReportDays
	}, 2*time.Second, 10*time.Millisecond)

	view, err := f.views.ListSnapshot(ctx, core.ListParams{Day: start, Search: "COF"})
	require.NoError(t, err)
	assert.Equal(t, 1, view.Count())
}

func TestViewService_ReportIsSevenDaysEndingToday(t *testing.T) {
	f := newViewFixture(t, 0)
	r, err := f.views.ReportSnapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, r.Days, core.ReportDays)
	assert.Equal(t, "2026-03-04", r.Days[0].Date)
	assert.Equal(t, "2026-03-10", r.Days[6].Date)
}

func TestViewService_EntriesReleaseStoreAfterGrace(t *testing.T) {
	f := newViewFixture(t, 20*time.Millisecond)
	sub := f.views.List(core.ListParams{Day: start})
	waitFor(t, sub.C(), func(core.ListView) bool { return true })
	sub.Close()

	m := cache.NewManager()
	for _, c := range f.views.Cleaners() {
		m.Register(c)
	}
	require.Eventually(t, func() bool { return m.CleanNow() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		for _, s := range f.views.Stats() {
			if s.Name == "records" {
				return s.State == "idle"
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond, "store subscription is released once no view needs it")
}

func TestSession_SettersRecompute(t *testing.T) {
	f := newViewFixture(t, time.Second)
	f.add(t, "Coffee", 250, core.Food)
	f.add(t, "Taxi", 1800, core.Travel)

	s := f.views.NewSession()
	defer s.Close()
	list := s.List()
	defer list.Close()
	totals := s.Totals()
	defer totals.Close()

	waitFor(t, list.C(), func(v core.ListView) bool { return v.Count() == 2 })

	s.SetSearch("taxi")
	v := waitFor(t, list.C(), func(v core.ListView) bool { return v.Search == "taxi" })
	assert.Equal(t, 1, v.Count())
	waitFor(t, totals.C(), func(v core.Totals) bool { return v.Count == 1 && v.Total.Cents == 1800 })

	s.SetGrouping(core.ByCategory)
	v = waitFor(t, list.C(), func(v core.ListView) bool { return v.Grouping == core.ByCategory })
	require.Len(t, v.Groups, 1)
	assert.Equal(t, "Travel", v.Groups[0].Key)

	s.SetDay(start.AddDate(0, 0, -1))
	v = waitFor(t, list.C(), func(v core.ListView) bool { return v.Day == "2026-03-09" })
	assert.Empty(t, v.Groups)

	s.Apply(core.ListParams{Day: start})
	v = waitFor(t, list.C(), func(v core.ListView) bool { return v.Day == "2026-03-10" && v.Search == "" })
	assert.Equal(t, 2, v.Count())
	assert.Equal(t, core.ByCategory, s.Params().Grouping)
}

func TestSession_BurstDeliversFinalState(t *testing.T) {
	f := newViewFixture(t, time.Second)
	s := f.views.NewSession()
	defer s.Close()
	list := s.List()
	defer list.Close()

	for _, q := range []string{"a", "ab", "abc", "abcd", "final"} {
		s.SetSearch(q)
	}
	waitFor(t, list.C(), func(v core.ListView) bool { return v.Search == "final" })
}

func TestSession_CloseEndsSubscriptions(t *testing.T) {
	f := newViewFixture(t, time.Second)
	s := f.views.NewSession()
	list := s.List()
	waitFor(t, list.C(), func(core.ListView) bool { return true })

	s.Close()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-list.C():
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)
}

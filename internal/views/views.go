// Package views holds the pure derivations from a record set to the list,
// totals and report snapshots. Input slices are expected in store order
// (newest first, ID descending on ties) and are never re-sorted or mutated.
package views

import (
	"strings"
	"time"

	"golang.org/x/text/cases"

	"ledger/internal/core"
)

// BuildList filters records to the selected day and search text and groups
// them by the requested mode.
func BuildList(records []core.Record, p core.ListParams, loc *time.Location) core.ListView {
	key := p.Key(loc)
	from, to := core.StartOfDay(p.Day, loc), core.EndOfDay(p.Day, loc)
	m := newMatcher(p.Search)

	filtered := make([]core.Record, 0)
	for _, r := range records {
		if !core.InRange(r.Timestamp, from, to) {
			continue
		}
		if !m.match(r) {
			continue
		}
		filtered = append(filtered, r)
	}

	view := core.ListView{
		Day:      key.Day,
		Search:   p.Search,
		Grouping: key.Grouping,
	}
	if key.Grouping == core.ByCategory {
		view.Groups = groupByCategory(filtered)
	} else {
		view.Groups = []core.Group{{Key: core.SelectedDayGroup, Records: filtered}}
	}
	return view
}

// groupByCategory keeps buckets in order of first appearance. Only
// categories present in records get a bucket.
func groupByCategory(records []core.Record) []core.Group {
	groups := make([]core.Group, 0)
	index := make(map[core.Category]int)
	for _, r := range records {
		i, ok := index[r.Category]
		if !ok {
			i = len(groups)
			index[r.Category] = i
			groups = append(groups, core.Group{Key: string(r.Category)})
		}
		groups[i].Records = append(groups[i].Records, r)
	}
	return groups
}

// Totalize sums amount and count across all groups of a list view.
func Totalize(v core.ListView) core.Totals {
	var t core.Totals
	for _, g := range v.Groups {
		for _, r := range g.Records {
			t.Total = t.Total.Add(r.Amount)
			t.Count++
		}
	}
	return t
}

// DayTotal sums the records falling on day's calendar day.
func DayTotal(records []core.Record, day time.Time, loc *time.Location) core.Totals {
	from, to := core.StartOfDay(day, loc), core.EndOfDay(day, loc)
	var t core.Totals
	for _, r := range records {
		if core.InRange(r.Timestamp, from, to) {
			t.Total = t.Total.Add(r.Amount)
			t.Count++
		}
	}
	return t
}

// MatchesSearch reports whether title or notes contain search, ignoring case.
// Blank search matches everything.
func MatchesSearch(r core.Record, search string) bool {
	return newMatcher(search).match(r)
}

// matcher is not safe for concurrent use; cases.Caser carries state.
type matcher struct {
	needle string
	fold   cases.Caser
}

func newMatcher(search string) *matcher {
	if strings.TrimSpace(search) == "" {
		return &matcher{}
	}
	fold := cases.Fold()
	return &matcher{needle: fold.String(search), fold: fold}
}

func (m *matcher) match(r core.Record) bool {
	if m.needle == "" {
		return true
	}
	if strings.Contains(m.fold.String(r.Title), m.needle) {
		return true
	}
	return r.Notes != "" && strings.Contains(m.fold.String(r.Notes), m.needle)
}

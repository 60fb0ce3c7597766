package views

import (
	"time"

	"ledger/internal/core"
)

// BuildReport aggregates the core.ReportDays calendar days ending on now's day.
// Day buckets are ascending and zero-filled. Category totals list only the
// categories present, in order of first appearance in records.
func BuildReport(records []core.Record, now time.Time, loc *time.Location) core.Report {
	today := core.StartOfDay(now, loc)
	first := today.AddDate(0, 0, -(core.ReportDays - 1))
	from, to := first, core.EndOfDay(today, loc)

	days := make([]core.DayBucket, core.ReportDays)
	index := make(map[string]int, core.ReportDays)
	for i := range days {
		d := first.AddDate(0, 0, i)
		key := core.DayKey(d, loc)
		days[i] = core.DayBucket{Date: key, Label: d.Format(core.DayLabelLayout)}
		index[key] = i
	}

	report := core.Report{
		From:       core.DayKey(from, loc),
		To:         core.DayKey(to, loc),
		Days:       days,
		Categories: make([]core.CategoryAmount, 0),
	}
	catIndex := make(map[core.Category]int)
	for _, r := range records {
		if !core.InRange(r.Timestamp, from, to) {
			continue
		}
		if i, ok := index[core.DayKey(r.Timestamp, loc)]; ok {
			report.Days[i].Total = report.Days[i].Total.Add(r.Amount)
		}
		ci, ok := catIndex[r.Category]
		if !ok {
			ci = len(report.Categories)
			catIndex[r.Category] = ci
			report.Categories = append(report.Categories, core.CategoryAmount{Category: r.Category})
		}
		report.Categories[ci].Total = report.Categories[ci].Total.Add(r.Amount)
		report.Total = report.Total.Add(r.Amount)
	}
	return report
}

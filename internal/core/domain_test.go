package core

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDraftValidate(t *testing.T) {
	good := Draft{
		Title:    "Coffee",
		Amount:   Money{Cents: 5000},
		Category: Food,
		Notes:    "with oat milk",
	}
	if err := good.Normalize().Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []struct {
		draft Draft
		field string
		want  error
	}{
		{Draft{Title: "   ", Amount: Money{Cents: 1}, Category: Food}, "title", ErrEmptyTitle},
		{Draft{Title: strings.Repeat("a", MaxTitleLength+1), Amount: Money{Cents: 1}, Category: Food}, "title", ErrTitleTooLong},
		{Draft{Title: "a", Amount: Money{Cents: 0}, Category: Food}, "amount", ErrInvalidAmount},
		{Draft{Title: "a", Amount: Money{Cents: -10}, Category: Food}, "amount", ErrInvalidAmount},
		{Draft{Title: "a", Amount: Money{Cents: 1}, Category: "Rent"}, "category", ErrInvalidCategory},
		{Draft{Title: "a", Amount: Money{Cents: 1}, Category: Food, Notes: strings.Repeat("n", MaxNotesLength+1)}, "notes", ErrNotesTooLong},
	}
	for i, tc := range bads {
		err := tc.draft.Normalize().Validate()
		if err == nil {
			t.Fatalf("case %d expected error", i)
		}
		var verr *ValidationError
		if !errors.As(err, &verr) || verr.Field != tc.field {
			t.Fatalf("case %d expected validation error on %s, got %v", i, tc.field, err)
		}
		if !errors.Is(err, tc.want) {
			t.Fatalf("case %d expected %v, got %v", i, tc.want, err)
		}
	}
}

func TestDraftNormalizeTrimsAndTruncates(t *testing.T) {
	ts := time.Date(2025, 3, 1, 10, 0, 0, 123456789, time.UTC)
	d := Draft{Title: "  Taxi ", Notes: " airport\t", Timestamp: ts}.Normalize()
	if d.Title != "Taxi" || d.Notes != "airport" {
		t.Fatalf("unexpected trim: %q %q", d.Title, d.Notes)
	}
	if d.Timestamp.Nanosecond() != 123000000 {
		t.Fatalf("expected millisecond truncation, got %d", d.Timestamp.Nanosecond())
	}
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory(" food ")
	if err != nil || c != Food {
		t.Fatalf("expected Food, got %q (%v)", c, err)
	}
	if _, err := ParseCategory("Rent"); !errors.Is(err, ErrInvalidCategory) {
		t.Fatalf("expected ErrInvalidCategory, got %v", err)
	}
}

func TestSortRecordsTieBreaksOnID(t *testing.T) {
	ts := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	records := []Record{
		{ID: 1, Timestamp: ts},
		{ID: 3, Timestamp: ts.Add(-time.Minute)},
		{ID: 2, Timestamp: ts},
		{ID: 4, Timestamp: ts.Add(time.Minute)},
	}
	SortRecords(records)
	want := []int64{4, 2, 1, 3}
	for i, id := range want {
		if records[i].ID != id {
			t.Fatalf("position %d: expected id %d, got %d", i, id, records[i].ID)
		}
	}
}

func TestDayBoundaries(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	day := time.Date(2025, 3, 1, 15, 0, 0, 0, loc)

	lastMilli := time.Date(2025, 3, 1, 23, 59, 59, 999000000, loc)
	nextMidnight := time.Date(2025, 3, 2, 0, 0, 0, 0, loc)

	if !InDay(lastMilli, day, loc) {
		t.Fatalf("23:59:59.999 must belong to the day")
	}
	if InDay(nextMidnight, day, loc) {
		t.Fatalf("00:00:00.000 of the next day must not belong to the day")
	}
	if !InDay(nextMidnight, nextMidnight, loc) {
		t.Fatalf("midnight must belong to its own day")
	}
	if got := EndOfDay(day, loc); !got.Equal(lastMilli) {
		t.Fatalf("unexpected end of day %v", got)
	}
	if got := DayKey(lastMilli.UTC(), loc); got != "2025-03-01" {
		t.Fatalf("day key must use the configured location, got %s", got)
	}
}

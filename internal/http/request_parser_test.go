package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"ledger/internal/core"
)

var parserNow = time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)

func TestParseListParams(t *testing.T) {
	tests := []struct {
		name     string
		query    url.Values
		wantDay  string
		wantGrp  core.Grouping
		wantText string
		wantErr  bool
	}{
		{name: "defaults to today by time", query: url.Values{}, wantDay: "2026-03-10", wantGrp: core.ByTime},
		{name: "explicit values", query: url.Values{"day": {"2026-03-01"}, "grouping": {"Category"}, "search": {" tea "}}, wantDay: "2026-03-01", wantGrp: core.ByCategory, wantText: " tea "},
		{name: "bad day", query: url.Values{"day": {"2026-13-01"}}, wantErr: true},
		{name: "bad grouping", query: url.Values{"grouping": {"weekly"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParseListParams(tt.query, parserNow, time.UTC)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := core.DayKey(p.Day, time.UTC); got != tt.wantDay {
				t.Errorf("Day = %s, want %s", got, tt.wantDay)
			}
			if p.Grouping != tt.wantGrp {
				t.Errorf("Grouping = %s, want %s", p.Grouping, tt.wantGrp)
			}
			if p.Search != tt.wantText {
				t.Errorf("Search = %q, want %q", p.Search, tt.wantText)
			}
		})
	}
}

func TestParseDayRange(t *testing.T) {
	loc := time.FixedZone("CET", 3600)

	from, to, err := ParseDayRange(url.Values{"from": {"2026-03-08"}, "to": {"2026-03-09"}}, parserNow, loc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := time.Date(2026, 3, 8, 0, 0, 0, 0, loc); !from.Equal(want) {
		t.Errorf("from = %v, want %v", from, want)
	}
	if want := time.Date(2026, 3, 9, 23, 59, 59, int(999*time.Millisecond), loc); !to.Equal(want) {
		t.Errorf("to = %v, want %v", to, want)
	}

	// 23:30 UTC is already the next day in CET.
	from, _, err = ParseDayRange(url.Values{}, parserNow, loc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := core.DayKey(from, loc); got != "2026-03-11" {
		t.Errorf("default day = %s, want 2026-03-11", got)
	}

	if _, _, err := ParseDayRange(url.Values{"from": {"2026-03-10"}, "to": {"2026-03-09"}}, parserNow, loc); err == nil {
		t.Error("expected error for reversed range")
	}
}

func TestDecodeJSON(t *testing.T) {
	decode := func(body string) (recordRequest, error) {
		r := httptest.NewRequest(http.MethodPost, "/records", strings.NewReader(body))
		var req recordRequest
		return req, decodeJSON(r, &req)
	}

	req, err := decode(`{"title":"Coffee","amount":"2,50","category":"food","notes":"oat"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d := req.Draft(core.UnassignedID)
	if d.Amount.Cents != 250 || d.Category != core.Food || d.Notes != "oat" {
		t.Errorf("Draft = %+v", d)
	}
	if !d.Timestamp.IsZero() {
		t.Errorf("Timestamp = %v, want zero", d.Timestamp)
	}

	var verr *core.ValidationError
	_, err = decode(`{"title":"x","amount":"abc","category":"Food"}`)
	if !errors.As(err, &verr) || verr.Field != "amount" {
		t.Errorf("malformed amount: got %v, want amount validation error", err)
	}

	// Non-positive amounts decode and are rejected by draft validation.
	for _, body := range []string{`{"title":"x","amount":-1,"category":"Food"}`, `{"title":"x","amount":"0.00","category":"Food"}`} {
		req, err := decode(body)
		if err != nil {
			t.Fatalf("%s: unexpected decode error %v", body, err)
		}
		err = req.Draft(core.UnassignedID).Normalize().Validate()
		if !errors.As(err, &verr) || verr.Field != "amount" {
			t.Errorf("%s: got %v, want amount validation error", body, err)
		}
	}

	if _, err := decode(""); err != nil {
		t.Errorf("empty body: unexpected error %v", err)
	}
	if _, err := decode(`{"title":"x","extra":true}`); err == nil {
		t.Error("expected error for unknown field")
	}
}

func TestRecordRequest_KeepsUnknownCategory(t *testing.T) {
	d := recordRequest{Title: "x", Amount: core.Money{Cents: 100}, Category: "Books"}.Draft(3)
	if d.ID != 3 {
		t.Errorf("ID = %d, want 3", d.ID)
	}
	if d.Category != core.Category("Books") {
		t.Errorf("Category = %q, want Books", d.Category)
	}
	if err := d.Normalize().Validate(); !errors.Is(err, core.ErrInvalidCategory) {
		t.Errorf("Validate() = %v, want ErrInvalidCategory", err)
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"normal text", "normal text"},
		{"tab\there", "tab\there"},
		{"line\nbreak", "line\nbreak"},
		{"bell\x07gone", "bellgone"},
		{"\x00nul", "nul"},
	}
	for _, tt := range tests {
		if got := sanitizeInput(tt.in); got != tt.want {
			t.Errorf("sanitizeInput(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

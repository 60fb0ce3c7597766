package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	ByTime     Grouping = "time"
	ByCategory Grouping = "category"
)

// SelectedDayGroup is the single bucket key used when grouping by time.
const SelectedDayGroup = "Selected day"

// ReportDays is the fixed number of calendar days covered by a report.
const ReportDays = 7

type Grouping string

// ParseGrouping accepts "time" or "category"; blank means time.
func ParseGrouping(s string) (Grouping, error) {
	switch Grouping(strings.ToLower(strings.TrimSpace(s))) {
	case "", ByTime:
		return ByTime, nil
	case ByCategory:
		return ByCategory, nil
	default:
		return "", fmt.Errorf("invalid grouping %q: must be %q or %q", s, ByTime, ByCategory)
	}
}

// ListParams selects what the list view shows.
type ListParams struct {
	Day      time.Time
	Search   string
	Grouping Grouping
}

// ListKey is the comparable identity of a ListParams in a given location.
type ListKey struct {
	Day      string
	Search   string
	Grouping Grouping
}

// Key normalizes the parameters so that any instant of the same day maps to one key.
func (p ListParams) Key(loc *time.Location) ListKey {
	g := p.Grouping
	if g == "" {
		g = ByTime
	}
	return ListKey{Day: DayKey(p.Day, loc), Search: p.Search, Grouping: g}
}

type (
	// Group is one bucket of the list view.
	Group struct {
		Key     string   `json:"key"`
		Records []Record `json:"records"`
	}

	// ListView is the filtered and grouped snapshot for one day.
	ListView struct {
		Day      string   `json:"day"`
		Search   string   `json:"search"`
		Grouping Grouping `json:"grouping"`
		Groups   []Group  `json:"groups"`
	}

	// Totals summarizes a list view.
	Totals struct {
		Total Money `json:"total"`
		Count int   `json:"count"`
	}

	DayBucket struct {
		Date  string `json:"date"`
		Label string `json:"label"`
		Total Money  `json:"total"`
	}

	// CategoryAmount represents an amount aggregated by category.
	CategoryAmount struct {
		Category Category `json:"category"`
		Total    Money    `json:"total"`
	}

	// Report covers the seven calendar days ending today.
	Report struct {
		From       string           `json:"from"`
		To         string           `json:"to"`
		Days       []DayBucket      `json:"days"`
		Categories []CategoryAmount `json:"categories"`
		Total      Money            `json:"total"`
	}
)

// Count returns the number of records across all groups.
func (v ListView) Count() int {
	n := 0
	for _, g := range v.Groups {
		n += len(g.Records)
	}
	return n
}

// MarshalJSON renders money as a decimal number, e.g. 12.34.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a JSON number or string in decimal notation. Zero and
// negative amounts decode; submissions are checked by Draft.Validate.
func (m *Money) UnmarshalJSON(data []byte) error {
	var raw json.Number
	if err := json.Unmarshal(data, &raw); err != nil {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return ErrInvalidAmount
		}
		raw = json.Number(s)
	}
	parsed, err := ParseSignedMoney(raw.String())
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

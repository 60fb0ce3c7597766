package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ledger/internal/core"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

// recordRequest is the JSON body accepted by POST /records and PUT /records/{id}.
type recordRequest struct {
	Title     string     `json:"title"`
	Amount    core.Money `json:"amount"`
	Category  string     `json:"category"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Notes     string     `json:"notes,omitempty"`
}

// Draft converts the request into a draft. Unknown categories are kept
// verbatim so validation reports them.
func (req recordRequest) Draft(id int64) core.Draft {
	category, err := core.ParseCategory(req.Category)
	if err != nil {
		category = core.Category(req.Category)
	}
	d := core.Draft{
		ID:       id,
		Title:    sanitizeInput(req.Title),
		Amount:   req.Amount,
		Category: category,
		Notes:    sanitizeInput(req.Notes),
	}
	if req.Timestamp != nil {
		d.Timestamp = *req.Timestamp
	}
	return d
}

// paramsRequest is the JSON body of POST /session/params. Absent fields keep
// the session's current value.
type paramsRequest struct {
	Session  string  `json:"session,omitempty"`
	Day      string  `json:"day,omitempty"`
	Search   *string `json:"search,omitempty"`
	Grouping string  `json:"grouping,omitempty"`
}

// decodeJSON reads a single JSON object from the request body. An empty
// body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if errors.Is(err, core.ErrInvalidAmount) {
			return &core.ValidationError{Field: "amount", Err: err}
		}
		return fmt.Errorf("malformed request body: %w", err)
	}
	return nil
}

// parseID extracts the {id} path value.
func parseID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid record id %q", r.PathValue("id"))
	}
	return id, nil
}

// parseDay reads a YYYY-MM-DD value, defaulting to the day of now.
func parseDay(raw string, now time.Time, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now.In(loc), nil
	}
	day, err := core.ParseDayKey(raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day %q: want YYYY-MM-DD", raw)
	}
	return day, nil
}

// ParseListParams extracts day, search and grouping from the query string.
// A missing day means today; search is passed through untouched.
func ParseListParams(query url.Values, now time.Time, loc *time.Location) (core.ListParams, error) {
	day, err := parseDay(query.Get("day"), now, loc)
	if err != nil {
		return core.ListParams{}, err
	}
	grouping, err := core.ParseGrouping(query.Get("grouping"))
	if err != nil {
		return core.ListParams{}, err
	}
	return core.ListParams{Day: day, Search: query.Get("search"), Grouping: grouping}, nil
}

// ParseDayRange reads from/to day keys and returns the inclusive instant
// range [start of from, end of to]. Both default to today.
func ParseDayRange(query url.Values, now time.Time, loc *time.Location) (time.Time, time.Time, error) {
	from, err := parseDay(query.Get("from"), now, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := parseDay(query.Get("to"), now, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start, end := core.StartOfDay(from, loc), core.EndOfDay(to, loc)
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid range: from %s is after to %s", core.DayKey(from, loc), core.DayKey(to, loc))
	}
	return start, end, nil
}

// sanitizeInput removes control characters except tab, newline and carriage return.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

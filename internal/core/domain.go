package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	Staff   Category = "Staff"
	Travel  Category = "Travel"
	Food    Category = "Food"
	Utility Category = "Utility"
)

// UnassignedID marks a record the store has not persisted yet.
const UnassignedID int64 = 0

const (
	MaxTitleLength = 200
	MaxNotesLength = 100
)

type (
	Category string

	Money struct {
		Cents int64
	}

	// Record is a single ledger line item as held by the record store.
	Record struct {
		ID        int64     `json:"id"`
		Title     string    `json:"title"`
		Amount    Money     `json:"amount"`
		Category  Category  `json:"category"`
		Timestamp time.Time `json:"timestamp"`
		Notes     string    `json:"notes,omitempty"`
	}

	// Draft is an unvalidated submission coming from a caller.
	Draft struct {
		ID        int64
		Title     string
		Amount    Money
		Category  Category
		Timestamp time.Time
		Notes     string
	}
)

var (
	ErrEmptyTitle      = errors.New("empty title")
	ErrTitleTooLong    = fmt.Errorf("title too long (max %d characters)", MaxTitleLength)
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidCategory = errors.New("invalid category")
	ErrNotesTooLong    = fmt.Errorf("notes too long (max %d characters)", MaxNotesLength)

	// ErrNotFound is returned when a mutation references a missing identifier.
	ErrNotFound = errors.New("record not found")
	// ErrConstraint is returned by stores when a record violates a storage invariant.
	ErrConstraint = errors.New("constraint violation")
)

// ValidationError reports which field of a submission was rejected.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Categories returns the closed set of categories in display order.
func Categories() []Category {
	return []Category{Staff, Travel, Food, Utility}
}

// ParseCategory matches s against the known categories, ignoring case.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	for _, c := range Categories() {
		if strings.EqualFold(string(c), s) {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
}

func (c Category) Valid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

func (c Category) String() string {
	return string(c)
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Normalize trims text fields and truncates the timestamp to millisecond resolution.
func (d Draft) Normalize() Draft {
	d.Title = strings.TrimSpace(d.Title)
	d.Notes = strings.TrimSpace(d.Notes)
	if !d.Timestamp.IsZero() {
		d.Timestamp = TruncateMillis(d.Timestamp)
	}
	return d
}

// Validate checks a normalized draft. Errors are *ValidationError.
func (d Draft) Validate() error {
	if d.Title == "" {
		return &ValidationError{Field: "title", Err: ErrEmptyTitle}
	}
	if utf8.RuneCountInString(d.Title) > MaxTitleLength {
		return &ValidationError{Field: "title", Err: ErrTitleTooLong}
	}
	if err := d.Amount.Validate(); err != nil {
		return &ValidationError{Field: "amount", Err: err}
	}
	if !d.Category.Valid() {
		return &ValidationError{Field: "category", Err: ErrInvalidCategory}
	}
	if utf8.RuneCountInString(d.Notes) > MaxNotesLength {
		return &ValidationError{Field: "notes", Err: ErrNotesTooLong}
	}
	return nil
}

// Record converts the draft into a record stamped at ts when the draft carries no timestamp.
func (d Draft) Record(ts time.Time) Record {
	if !d.Timestamp.IsZero() {
		ts = d.Timestamp
	}
	return Record{
		ID:        d.ID,
		Title:     d.Title,
		Amount:    d.Amount,
		Category:  d.Category,
		Timestamp: TruncateMillis(ts),
		Notes:     d.Notes,
	}
}

// Valid reports whether r satisfies the invariants a store enforces on write.
func (r Record) Valid() bool {
	return strings.TrimSpace(r.Title) != "" && r.Amount.Cents > 0 && r.Category.Valid()
}

// SortRecords orders records newest first. Records sharing a timestamp are
// ordered by descending ID so repeated reads are stable.
func SortRecords(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.After(b.Timestamp)
		}
		return a.ID > b.ID
	})
}

// TruncateMillis drops sub-millisecond precision and the monotonic clock reading.
func TruncateMillis(t time.Time) time.Time {
	return time.UnixMilli(t.UnixMilli()).In(t.Location())
}

// ChangeOp names a mutation announced to other processes.
type ChangeOp string

const (
	ChangeCreated ChangeOp = "created"
	ChangeUpdated ChangeOp = "updated"
	ChangeDeleted ChangeOp = "deleted"
)

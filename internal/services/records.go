package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ledger/internal/core"
	applog "ledger/internal/log"
	"ledger/internal/store"
)

// Outcome is the result of submitting a new record.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeDuplicate
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeDuplicate:
		return "duplicate"
	default:
		return "error"
	}
}

// ErrIDAssigned is returned when Add receives a draft that already has an identifier.
var ErrIDAssigned = errors.New("identifier must not be set")

// ChangePublisher announces committed mutations to other processes.
type ChangePublisher interface {
	PublishRecordChanged(ctx context.Context, id int64, op core.ChangeOp) error
}

// RecordService is the only writer of the record store. It validates,
// applies the duplicate guard, and announces committed changes.
type RecordService struct {
	store     store.RecordStore
	guard     *DuplicateGuard
	publisher ChangePublisher
	now       func() time.Time
	logger    *slog.Logger
	events    *applog.StructuredLogger
}

// NewRecordService wires the service. publisher may be nil.
func NewRecordService(s store.RecordStore, guard *DuplicateGuard, publisher ChangePublisher) *RecordService {
	if guard == nil {
		guard = NewDuplicateGuard(s, DefaultDuplicateWindow)
	}
	logger := applog.Wrap(slog.Default(), applog.ComponentRecords)
	return &RecordService{
		store:     s,
		guard:     guard,
		publisher: publisher,
		now:       time.Now,
		logger:    logger.Logger,
		events:    applog.NewStructuredLogger(logger),
	}
}

// WithClock replaces the time source used to stamp new records and by the guard.
func (s *RecordService) WithClock(now func() time.Time) *RecordService {
	s.now = now
	s.guard.WithClock(now)
	return s
}

// DuplicateWindow is the span within which identical submissions are rejected.
func (s *RecordService) DuplicateWindow() time.Duration {
	return s.guard.Window()
}

// Add validates d, rejects it as a duplicate when the guard trips, and
// otherwise inserts it. Validation failures return OutcomeError with a
// *core.ValidationError; store failures are returned wrapped.
func (s *RecordService) Add(ctx context.Context, d core.Draft) (Outcome, core.Record, error) {
	d = d.Normalize()
	if d.ID != core.UnassignedID {
		return OutcomeError, core.Record{}, &core.ValidationError{Field: "id", Err: ErrIDAssigned}
	}
	if err := d.Validate(); err != nil {
		return OutcomeError, core.Record{}, err
	}

	rec := d.Record(s.now())
	dup, err := s.guard.IsDuplicate(ctx, rec)
	if err != nil {
		return OutcomeError, core.Record{}, err
	}
	if dup {
		s.logger.WarnContext(ctx, "Duplicate submission rejected",
			applog.NewFields().WithRecord(0, rec.Title, rec.Amount.Cents, rec.Category.String()).ToSlice()...)
		return OutcomeDuplicate, rec, nil
	}

	id, err := s.store.Insert(ctx, rec)
	if err != nil {
		return OutcomeError, core.Record{}, fmt.Errorf("save record: %w", err)
	}
	rec.ID = id

	s.events.LogRecordAdded(ctx, id, rec.Title, rec.Amount.Cents, rec.Category.String())
	s.announce(ctx, id, core.ChangeCreated)
	return OutcomeSuccess, rec, nil
}

// Save inserts drafts without an identifier and updates the others.
func (s *RecordService) Save(ctx context.Context, d core.Draft) (Outcome, core.Record, error) {
	if d.ID == core.UnassignedID {
		return s.Add(ctx, d)
	}
	rec, err := s.Update(ctx, d)
	if err != nil {
		return OutcomeError, core.Record{}, err
	}
	return OutcomeSuccess, rec, nil
}

// Update replaces an existing record. A draft without a timestamp keeps the
// stored one.
func (s *RecordService) Update(ctx context.Context, d core.Draft) (core.Record, error) {
	d = d.Normalize()
	if err := d.Validate(); err != nil {
		return core.Record{}, err
	}

	existing, err := s.Get(ctx, d.ID)
	if err != nil {
		return core.Record{}, err
	}
	rec := d.Record(existing.Timestamp)

	if err := s.store.Update(ctx, rec); err != nil {
		return core.Record{}, fmt.Errorf("update record: %w", err)
	}

	s.logger.InfoContext(ctx, "Record updated",
		applog.NewFields().WithRecord(rec.ID, rec.Title, rec.Amount.Cents, rec.Category.String()).WithOperation(applog.OpUpdate).ToSlice()...)
	s.announce(ctx, rec.ID, core.ChangeUpdated)
	return rec, nil
}

// Delete removes the record with id; a missing id is not an error.
func (s *RecordService) Delete(ctx context.Context, id int64) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	s.logger.InfoContext(ctx, "Record deleted", applog.FieldRecordID, id)
	s.announce(ctx, id, core.ChangeDeleted)
	return nil
}

// Get returns the record with id or an error wrapping core.ErrNotFound.
func (s *RecordService) Get(ctx context.Context, id int64) (core.Record, error) {
	rec, ok, err := s.store.GetByID(ctx, id)
	if err != nil {
		return core.Record{}, fmt.Errorf("get record: %w", err)
	}
	if !ok {
		return core.Record{}, fmt.Errorf("record %d: %w", id, core.ErrNotFound)
	}
	return rec, nil
}

// List returns the records with timestamps in [from, to], newest first.
func (s *RecordService) List(ctx context.Context, from, to time.Time) ([]core.Record, error) {
	records, err := s.store.ListBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return records, nil
}

// announce never fails the caller: the mutation is already committed.
func (s *RecordService) announce(ctx context.Context, id int64, op core.ChangeOp) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishRecordChanged(ctx, id, op); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish change message",
			applog.FieldRecordID, id,
			applog.FieldOperation, string(op),
			applog.FieldError, err)
	}
}

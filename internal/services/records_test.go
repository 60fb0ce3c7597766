package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/core"
	"ledger/internal/store/memory"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(t time.Time) *clock { return &clock{now: t} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordedChange struct {
	id int64
	op core.ChangeOp
}

type fakePublisher struct {
	mu      sync.Mutex
	changes []recordedChange
	err     error
}

func (p *fakePublisher) PublishRecordChanged(_ context.Context, id int64, op core.ChangeOp) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, recordedChange{id, op})
	return p.err
}

func (p *fakePublisher) ops() []core.ChangeOp {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]core.ChangeOp, len(p.changes))
	for i, c := range p.changes {
		out[i] = c.op
	}
	return out
}

var start = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func newRecordService(t *testing.T) (*RecordService, *memory.Store, *clock, *fakePublisher) {
	t.Helper()
	st := memory.NewStore()
	t.Cleanup(func() { _ = st.Close() })
	clk := newClock(start)
	pub := &fakePublisher{}
	svc := NewRecordService(st, NewDuplicateGuard(st, DefaultDuplicateWindow), pub).WithClock(clk.Now)
	return svc, st, clk, pub
}

func coffee() core.Draft {
	return core.Draft{Title: "Coffee", Amount: core.Money{Cents: 5000}, Category: core.Food}
}

func TestAdd_DuplicateWithinWindow(t *testing.T) {
	svc, st, clk, _ := newRecordService(t)
	ctx := context.Background()

	outcome, rec, err := svc.Add(ctx, coffee())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, outcome)
	assert.NotEqual(t, core.UnassignedID, rec.ID)

	clk.Advance(90 * time.Second)
	outcome, _, err = svc.Add(ctx, coffee())
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
	assert.Equal(t, 1, st.Len(), "duplicate must not reach the store")
}

func TestAdd_SamePayloadAfterWindow(t *testing.T) {
	svc, st, clk, _ := newRecordService(t)
	ctx := context.Background()

	outcome, _, err := svc.Add(ctx, coffee())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, outcome)

	clk.Advance(2*time.Minute + time.Millisecond)
	outcome, _, err = svc.Add(ctx, coffee())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, outcome)
	assert.Equal(t, 2, st.Len())
}

func TestAdd_WindowBoundaryIsInclusive(t *testing.T) {
	svc, _, clk, _ := newRecordService(t)
	ctx := context.Background()

	_, _, err := svc.Add(ctx, coffee())
	require.NoError(t, err)

	clk.Advance(2 * time.Minute)
	outcome, _, err := svc.Add(ctx, coffee())
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
}

func TestAdd_DifferentFieldsAreNotDuplicates(t *testing.T) {
	svc, _, _, _ := newRecordService(t)
	ctx := context.Background()

	_, _, err := svc.Add(ctx, coffee())
	require.NoError(t, err)

	variants := []core.Draft{
		{Title: "Coffee", Amount: core.Money{Cents: 5001}, Category: core.Food},
		{Title: "Coffee", Amount: core.Money{Cents: 5000}, Category: core.Staff},
		{Title: "Espresso", Amount: core.Money{Cents: 5000}, Category: core.Food},
	}
	for _, d := range variants {
		outcome, _, err := svc.Add(ctx, d)
		require.NoError(t, err)
		assert.Equal(t, OutcomeSuccess, outcome, "%+v", d)
	}
}

func TestAdd_TrimmedTitleMatchesForDuplicateCheck(t *testing.T) {
	svc, _, _, _ := newRecordService(t)
	ctx := context.Background()

	_, _, err := svc.Add(ctx, coffee())
	require.NoError(t, err)

	d := coffee()
	d.Title = "  Coffee  "
	outcome, _, err := svc.Add(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
}

func TestAdd_ValidationErrors(t *testing.T) {
	svc, st, _, pub := newRecordService(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		draft core.Draft
		field string
		want  error
	}{
		{"blank title", core.Draft{Title: "   ", Amount: core.Money{Cents: 1}, Category: core.Food}, "title", core.ErrEmptyTitle},
		{"zero amount", core.Draft{Title: "Tea", Category: core.Food}, "amount", core.ErrInvalidAmount},
		{"negative amount", core.Draft{Title: "Tea", Amount: core.Money{Cents: -5}, Category: core.Food}, "amount", core.ErrInvalidAmount},
		{"unknown category", core.Draft{Title: "Tea", Amount: core.Money{Cents: 5}, Category: "Other"}, "category", core.ErrInvalidCategory},
		{"preassigned id", core.Draft{ID: 7, Title: "Tea", Amount: core.Money{Cents: 5}, Category: core.Food}, "id", ErrIDAssigned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, _, err := svc.Add(ctx, tt.draft)
			assert.Equal(t, OutcomeError, outcome)
			require.ErrorIs(t, err, tt.want)
			var ve *core.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
	assert.Zero(t, st.Len())
	assert.Empty(t, pub.ops())
}

type failingStore struct {
	*memory.Store
	err error
}

func (f failingStore) ExistsMatching(context.Context, string, core.Money, core.Category, time.Time) (bool, error) {
	return false, f.err
}

func TestAdd_StoreErrorsPropagate(t *testing.T) {
	boom := errors.New("disk full")
	st := failingStore{Store: memory.NewStore(), err: boom}
	svc := NewRecordService(st, nil, nil)

	outcome, _, err := svc.Add(context.Background(), coffee())
	assert.Equal(t, OutcomeError, outcome)
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, st.Len())
}

func TestAdd_StampsTimestampFromClock(t *testing.T) {
	svc, _, clk, _ := newRecordService(t)
	clk.Advance(123456789 * time.Nanosecond)

	_, rec, err := svc.Add(context.Background(), coffee())
	require.NoError(t, err)
	assert.True(t, rec.Timestamp.Equal(start.Add(123*time.Millisecond)), "timestamp truncated to milliseconds")
}

func TestSaveUpdateDeleteLifecycle(t *testing.T) {
	svc, _, _, pub := newRecordService(t)
	ctx := context.Background()

	outcome, rec, err := svc.Save(ctx, coffee())
	require.NoError(t, err)
	require.Equal(t, OutcomeSuccess, outcome)

	edit := core.Draft{ID: rec.ID, Title: "Cappuccino", Amount: core.Money{Cents: 350}, Category: core.Food, Notes: " large "}
	outcome, updated, err := svc.Save(ctx, edit)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, outcome)
	assert.Equal(t, "large", updated.Notes)
	assert.True(t, updated.Timestamp.Equal(rec.Timestamp), "update without timestamp keeps the stored one")

	got, err := svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "Cappuccino", got.Title)

	require.NoError(t, svc.Delete(ctx, rec.ID))
	_, err = svc.Get(ctx, rec.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)

	assert.Equal(t, []core.ChangeOp{core.ChangeCreated, core.ChangeUpdated, core.ChangeDeleted}, pub.ops())
}

func TestUpdate_MissingRecord(t *testing.T) {
	svc, _, _, _ := newRecordService(t)
	_, err := svc.Update(context.Background(), core.Draft{ID: 42, Title: "Ghost", Amount: core.Money{Cents: 1}, Category: core.Food})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestAdd_PublisherFailureDoesNotFailAdd(t *testing.T) {
	svc, st, _, pub := newRecordService(t)
	pub.err = errors.New("broker down")

	outcome, _, err := svc.Add(context.Background(), coffee())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, outcome)
	assert.Equal(t, 1, st.Len())
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "success", OutcomeSuccess.String())
	assert.Equal(t, "duplicate", OutcomeDuplicate.String())
	assert.Equal(t, "error", OutcomeError.String())
}

// Package storage is the durable record store, backed by SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"ledger/internal/core"
	"ledger/internal/live"
	applog "ledger/internal/log"
)

const selectColumns = `SELECT id, title, amount_cents, category, timestamp_ms, notes FROM records`

// SQLiteRepository implements store.RecordStore. Every successful mutation
// re-reads the full set and broadcasts it to watchers.
type SQLiteRepository struct {
	db     *sql.DB
	logger *slog.Logger

	// mu serializes mutations with their broadcast so watchers see sets in commit order.
	mu   sync.Mutex
	feed *live.Feed[[]core.Record]
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	repo := &SQLiteRepository{
		db:     db,
		logger: slog.Default().With(applog.FieldComponent, applog.ComponentStorage),
		feed:   live.NewFeed[[]core.Record](),
	}
	if err := repo.Refresh(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	r.feed.Close()
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Insert(ctx context.Context, rec core.Record) (int64, error) {
	if rec.ID != core.UnassignedID {
		return 0, fmt.Errorf("insert record with id %d: %w", rec.ID, core.ErrConstraint)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO records (title, amount_cents, category, timestamp_ms, notes) VALUES (?, ?, ?, ?, ?)`,
		rec.Title, rec.Amount.Cents, string(rec.Category), rec.Timestamp.UnixMilli(), rec.Notes)
	if err != nil {
		return 0, fmt.Errorf("insert record: %w", mapError(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert record: %w", err)
	}

	r.logger.DebugContext(ctx, "Record saved to SQLite",
		applog.FieldRecordID, id,
		applog.FieldTitle, rec.Title,
		applog.FieldAmount, rec.Amount.Cents)

	r.broadcastLocked(ctx)
	return id, nil
}

func (r *SQLiteRepository) Update(ctx context.Context, rec core.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.ExecContext(ctx,
		`UPDATE records SET title = ?, amount_cents = ?, category = ?, timestamp_ms = ?, notes = ?,
		 updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		rec.Title, rec.Amount.Cents, string(rec.Category), rec.Timestamp.UnixMilli(), rec.Notes, rec.ID)
	if err != nil {
		return fmt.Errorf("update record %d: %w", rec.ID, mapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update record %d: %w", rec.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("update record %d: %w", rec.ID, core.ErrNotFound)
	}

	r.broadcastLocked(ctx)
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete record %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil
	}

	r.broadcastLocked(ctx)
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id int64) (core.Record, bool, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Record{}, false, nil
	}
	if err != nil {
		return core.Record{}, false, fmt.Errorf("get record %d: %w", id, err)
	}
	return rec, true, nil
}

func (r *SQLiteRepository) ListBetween(ctx context.Context, from, to time.Time) ([]core.Record, error) {
	records, err := r.query(ctx,
		selectColumns+` WHERE timestamp_ms >= ? AND timestamp_ms <= ? ORDER BY timestamp_ms DESC, id DESC`,
		from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("list records between %s and %s: %w", from.Format(time.RFC3339), to.Format(time.RFC3339), err)
	}
	return records, nil
}

func (r *SQLiteRepository) Watch(ctx context.Context) (<-chan []core.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.feed.Watch(ctx), nil
}

func (r *SQLiteRepository) ExistsMatching(ctx context.Context, title string, amount core.Money, category core.Category, since time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM records WHERE title = ? AND amount_cents = ? AND category = ? AND timestamp_ms >= ?)`,
		title, amount.Cents, string(category), since.UnixMilli()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check duplicate record: %w", err)
	}
	return exists, nil
}

// Refresh re-reads every record and broadcasts the set. Another process
// writing to the same database file calls for this.
func (r *SQLiteRepository) Refresh(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.all(ctx)
	if err != nil {
		return fmt.Errorf("refresh records: %w", err)
	}
	r.feed.Publish(records)
	return nil
}

// broadcastLocked publishes the current set after a committed mutation. A
// failed read is logged; the next mutation or Refresh catches watchers up.
func (r *SQLiteRepository) broadcastLocked(ctx context.Context) {
	records, err := r.all(context.WithoutCancel(ctx))
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to reload records after mutation", applog.FieldError, err)
		return
	}
	r.feed.Publish(records)
}

func (r *SQLiteRepository) all(ctx context.Context) ([]core.Record, error) {
	return r.query(ctx, selectColumns+` ORDER BY timestamp_ms DESC, id DESC`)
}

func (r *SQLiteRepository) query(ctx context.Context, q string, args ...any) ([]core.Record, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]core.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (core.Record, error) {
	var (
		rec      core.Record
		category string
		tsMillis int64
	)
	if err := s.Scan(&rec.ID, &rec.Title, &rec.Amount.Cents, &category, &tsMillis, &rec.Notes); err != nil {
		return core.Record{}, err
	}
	rec.Category = core.Category(category)
	rec.Timestamp = time.UnixMilli(tsMillis)
	return rec, nil
}

// mapError translates SQLite constraint failures into core.ErrConstraint.
func mapError(err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
		return fmt.Errorf("%w: %s", core.ErrConstraint, se.Error())
	}
	return err
}

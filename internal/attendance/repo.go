package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

const recordColumns = `id, user_id, work_date, check_in, check_out, is_present, class_count, created_at, updated_at`

// Repository persists attendance records. Every state change is a single
// conditional statement so concurrent scans cannot both win.
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates a repo.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Find returns the record for (userID, date).
func (r *Repository) Find(ctx context.Context, userID int64, date string) (Record, error) {
	return findRecord(ctx, r.db, userID, date)
}

type getter interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	Rebind(query string) string
}

func findRecord(ctx context.Context, q getter, userID int64, date string) (Record, error) {
	var rec Record
	err := q.GetContext(ctx, &rec, q.Rebind(`SELECT `+recordColumns+` FROM attendance WHERE user_id = ? AND work_date = ?`), userID, date)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrRecordNotFound
		}
		return Record{}, err
	}
	return rec, nil
}

// InsertCheckIn creates the day's record with check_in = at. A row left with
// both timestamps cleared is reused. errConflict means another writer got there first.
func (r *Repository) InsertCheckIn(ctx context.Context, userID int64, date string, at time.Time) (Record, error) {
	var id int64
	err := r.db.QueryRowxContext(ctx, r.db.Rebind(`
		INSERT INTO attendance (user_id, work_date, check_in, is_present, class_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT (user_id, work_date) DO UPDATE
			SET check_in = excluded.check_in, is_present = excluded.is_present, updated_at = excluded.updated_at
			WHERE attendance.check_in IS NULL AND attendance.check_out IS NULL
		RETURNING id
	`), userID, date, at, true, at, at).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, errConflict
		}
		return Record{}, fmt.Errorf("insert check-in: %w", err)
	}
	return r.Find(ctx, userID, date)
}

// SetCheckOut stamps check_out on a checked-in, not yet checked-out record.
func (r *Repository) SetCheckOut(ctx context.Context, userID int64, date string, at time.Time) (Record, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE attendance SET check_out = ?, updated_at = ?
		WHERE user_id = ? AND work_date = ? AND check_in IS NOT NULL AND check_out IS NULL
	`), at, at, userID, date)
	if err != nil {
		return Record{}, fmt.Errorf("update check-out: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Record{}, err
	}
	if n == 0 {
		return Record{}, errConflict
	}
	return r.Find(ctx, userID, date)
}

// Upsert replaces both timestamps, the presence flag and the class count of
// (in.UserID, in.Date) in one transaction, creating the row if needed.
func (r *Repository) Upsert(ctx context.Context, in OverrideInput, at time.Time) (rec Record, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return Record{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var exists int
	if err = tx.GetContext(ctx, &exists, tx.Rebind(`SELECT COUNT(*) FROM users WHERE id = ?`), in.UserID); err != nil {
		return Record{}, err
	}
	if exists == 0 {
		return Record{}, ErrSubjectNotFound
	}

	_, err = tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO attendance (user_id, work_date, check_in, check_out, is_present, class_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, work_date) DO UPDATE
			SET check_in = excluded.check_in,
				check_out = excluded.check_out,
				is_present = excluded.is_present,
				class_count = excluded.class_count,
				updated_at = excluded.updated_at
	`), in.UserID, in.Date, nullTime(in.CheckIn), nullTime(in.CheckOut), in.IsPresent, in.ClassCount, at, at)
	if err != nil {
		return Record{}, fmt.Errorf("upsert attendance: %w", err)
	}

	rec, err = findRecord(ctx, tx, in.UserID, in.Date)
	if err != nil {
		return Record{}, err
	}
	if err = tx.Commit(); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// List returns records matching f, newest date first, joined with their owners.
func (r *Repository) List(ctx context.Context, f Filter) ([]Entry, error) {
	query := `
		SELECT a.id, a.user_id, a.work_date, a.check_in, a.check_out, a.is_present, a.class_count,
			a.created_at, a.updated_at,
			u.id AS "user.id", u.name AS "user.name", u.email AS "user.email", u.created_at AS "user.created_at"
		FROM attendance a
		JOIN users u ON u.id = a.user_id`
	var (
		clauses []string
		args    []any
	)
	if f.UserID != nil {
		clauses = append(clauses, "a.user_id = ?")
		args = append(args, *f.UserID)
	}
	if f.Start != "" {
		clauses = append(clauses, "a.work_date >= ?")
		args = append(args, f.Start)
	}
	if f.End != "" {
		clauses = append(clauses, "a.work_date <= ?")
		args = append(args, f.End)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY a.work_date DESC, a.id DESC"

	out := []Entry{}
	if err := r.db.SelectContext(ctx, &out, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	return out, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

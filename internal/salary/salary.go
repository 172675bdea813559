// Package salary keeps per-teacher pay rates and turns them into monthly payroll sheets.
package salary

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

var (
	ErrNotFound     = errors.New("teacher salary not found")
	ErrInvalidInput = errors.New("teacher_name is required and amounts must not be negative")
	ErrInvalidMonth = errors.New("month must be YYYY-MM")
)

var monthPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// Rate is the pay configuration of one teacher.
type Rate struct {
	ID                int64     `db:"id" json:"id"`
	TeacherName       string    `db:"teacher_name" json:"teacher_name"`
	SalaryPerClass    int       `db:"salary_per_class" json:"salary_per_class"`
	TransportationFee int       `db:"transportation_fee" json:"transportation_fee"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// Line is a rate joined with the teacher's attendance for a month. Teachers
// are matched to users by name.
type Line struct {
	Rate
	Classes     int `db:"classes"`
	DaysPresent int `db:"days_present"`
}

// Total is classes times rate plus one transportation fee per day present.
func (l Line) Total() int {
	return l.Classes*l.SalaryPerClass + l.DaysPresent*l.TransportationFee
}

// Repository persists rates.
type Repository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewRepository creates a repo.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

const rateColumns = `id, teacher_name, salary_per_class, transportation_fee, created_at, updated_at`

// Save creates or updates the rate for r.TeacherName.
func (r *Repository) Save(ctx context.Context, rate Rate) (Rate, error) {
	rate.TeacherName = strings.TrimSpace(rate.TeacherName)
	if rate.TeacherName == "" || rate.SalaryPerClass < 0 || rate.TransportationFee < 0 {
		return Rate{}, ErrInvalidInput
	}
	now := r.now().UTC()
	var id int64
	err := r.db.QueryRowxContext(ctx, r.db.Rebind(`
		INSERT INTO teacher_salaries (teacher_name, salary_per_class, transportation_fee, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (teacher_name) DO UPDATE
			SET salary_per_class = excluded.salary_per_class,
				transportation_fee = excluded.transportation_fee,
				updated_at = excluded.updated_at
		RETURNING id
	`), rate.TeacherName, rate.SalaryPerClass, rate.TransportationFee, now, now).Scan(&id)
	if err != nil {
		return Rate{}, fmt.Errorf("save salary: %w", err)
	}
	var out Rate
	err = r.db.GetContext(ctx, &out, r.db.Rebind(`SELECT `+rateColumns+` FROM teacher_salaries WHERE id = ?`), id)
	return out, err
}

// List returns all rates by teacher name.
func (r *Repository) List(ctx context.Context) ([]Rate, error) {
	out := []Rate{}
	err := r.db.SelectContext(ctx, &out, `SELECT `+rateColumns+` FROM teacher_salaries ORDER BY teacher_name`)
	return out, err
}

// Delete removes a rate.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM teacher_salaries WHERE id = ?`), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Payroll joins every rate with attendance in month (YYYY-MM). An empty month
// reports rates only.
func (r *Repository) Payroll(ctx context.Context, month string) ([]Line, error) {
	if month != "" && !monthPattern.MatchString(month) {
		return nil, ErrInvalidMonth
	}
	// no month: match no attendance rows so counts stay zero
	pattern := "-"
	if month != "" {
		pattern = month + "-%"
	}
	out := []Line{}
	err := r.db.SelectContext(ctx, &out, r.db.Rebind(`
		SELECT s.id, s.teacher_name, s.salary_per_class, s.transportation_fee,
			COALESCE(SUM(a.class_count), 0) AS classes,
			COALESCE(SUM(CASE WHEN a.is_present THEN 1 ELSE 0 END), 0) AS days_present
		FROM teacher_salaries s
		LEFT JOIN users u ON u.name = s.teacher_name
		LEFT JOIN attendance a ON a.user_id = u.id AND a.work_date LIKE ?
		GROUP BY s.id, s.teacher_name, s.salary_per_class, s.transportation_fee
		ORDER BY s.teacher_name
	`), pattern)
	if err != nil {
		return nil, fmt.Errorf("payroll: %w", err)
	}
	return out, nil
}

// Package makeup records requests to reschedule a missed class.
package makeup

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

var (
	ErrNotFound     = errors.New("makeup class not found")
	ErrInvalidInput = errors.New("name, subject, original and new date/period are required")
)

// Class is one rescheduled lesson.
type Class struct {
	ID             int64     `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	Subject        string    `db:"subject" json:"subject"`
	OriginalDate   string    `db:"original_date" json:"original_date"`
	OriginalPeriod string    `db:"original_period" json:"original_period"`
	NewDate        string    `db:"new_date" json:"new_date"`
	NewPeriod      string    `db:"new_period" json:"new_period"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

func (c *Class) normalize() error {
	fields := []*string{&c.Name, &c.Subject, &c.OriginalDate, &c.OriginalPeriod, &c.NewDate, &c.NewPeriod}
	for _, f := range fields {
		*f = strings.TrimSpace(*f)
		if *f == "" {
			return ErrInvalidInput
		}
	}
	return nil
}

// Repository persists makeup classes.
type Repository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewRepository creates a repo.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Create validates and stores c.
func (r *Repository) Create(ctx context.Context, c Class) (Class, error) {
	if err := c.normalize(); err != nil {
		return Class{}, err
	}
	c.CreatedAt = r.now().UTC()
	err := r.db.QueryRowxContext(ctx, r.db.Rebind(`
		INSERT INTO makeup_classes (name, subject, original_date, original_period, new_date, new_period, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`), c.Name, c.Subject, c.OriginalDate, c.OriginalPeriod, c.NewDate, c.NewPeriod, c.CreatedAt).Scan(&c.ID)
	if err != nil {
		return Class{}, err
	}
	return c, nil
}

// List returns all requests, newest first.
func (r *Repository) List(ctx context.Context) ([]Class, error) {
	out := []Class{}
	err := r.db.SelectContext(ctx, &out, `
		SELECT id, name, subject, original_date, original_period, new_date, new_period, created_at
		FROM makeup_classes ORDER BY created_at DESC, id DESC
	`)
	return out, err
}

// Delete removes a request.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM makeup_classes WHERE id = ?`), id)
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

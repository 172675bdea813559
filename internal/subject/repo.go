package subject

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const selectColumns = `SELECT id, name, email, password_hash, is_admin, created_at FROM users`

// Repository persists subjects.
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates a repo.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts s and returns it with its id.
func (r *Repository) Create(ctx context.Context, s Subject) (Subject, error) {
	row := r.db.QueryRowxContext(ctx, r.db.Rebind(`
		INSERT INTO users (name, email, password_hash, is_admin, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`), s.Name, s.Email, s.PasswordHash, s.IsAdmin, s.CreatedAt)
	if err := row.Scan(&s.ID); err != nil {
		return Subject{}, fmt.Errorf("insert user: %w", err)
	}
	return s, nil
}

// Get returns a subject by id.
func (r *Repository) Get(ctx context.Context, id int64) (Subject, error) {
	return r.one(ctx, selectColumns+` WHERE id = ?`, id)
}

// FindByName returns the subject with the exact display name.
func (r *Repository) FindByName(ctx context.Context, name string) (Subject, error) {
	return r.one(ctx, selectColumns+` WHERE name = ?`, name)
}

// FindByEmail returns the subject with the given contact address.
func (r *Repository) FindByEmail(ctx context.Context, email string) (Subject, error) {
	return r.one(ctx, selectColumns+` WHERE email = ?`, email)
}

// List returns all subjects ordered by id.
func (r *Repository) List(ctx context.Context) ([]Subject, error) {
	var out []Subject
	if err := r.db.SelectContext(ctx, &out, selectColumns+` ORDER BY id`); err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes a subject; attendance rows go with it.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM users WHERE id = ?`), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateAdmin sets the password hash and admin flag of an existing subject.
func (r *Repository) UpdateAdmin(ctx context.Context, id int64, passwordHash string, isAdmin bool) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE users SET password_hash = ?, is_admin = ? WHERE id = ?
	`), passwordHash, isAdmin, id)
	return err
}

func (r *Repository) one(ctx context.Context, query string, args ...any) (Subject, error) {
	var s Subject
	if err := r.db.GetContext(ctx, &s, r.db.Rebind(query), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Subject{}, ErrNotFound
		}
		return Subject{}, err
	}
	return s, nil
}

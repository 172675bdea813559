// Package subject manages the people tracked for attendance.
package subject

import (
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrNotFound           = errors.New("user not found")
	ErrEmailTaken         = errors.New("user with this email already exists")
	ErrNameTaken          = errors.New("user with this name already exists")
	ErrInvalidInput       = errors.New("name and email are required")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// Subject is a registered user. Name and Email are unique.
type Subject struct {
	ID           int64     `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	IsAdmin      bool      `db:"is_admin" json:"is_admin"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// SetPassword stores a bcrypt hash of pwd.
func (s *Subject) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	s.PasswordHash = string(hash)
	return nil
}

// CheckPassword reports whether pwd matches the stored hash. Subjects without a
// password never authenticate.
func (s Subject) CheckPassword(pwd string) bool {
	if s.PasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(s.PasswordHash), []byte(pwd)) == nil
}

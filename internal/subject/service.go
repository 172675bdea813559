package subject

import (
	"context"
	"errors"
	"log"
	"net/mail"
	"strings"
	"time"
)

// RegisterInput carries the fields accepted at registration.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	IsAdmin  bool
}

// Service validates and coordinates subject operations.
type Service struct {
	repo *Repository
	now  func() time.Time
}

// NewService creates a service backed by a repository.
func NewService(repo *Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Register creates a subject after checking email and name uniqueness.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Subject, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if in.Name == "" || in.Email == "" {
		return Subject{}, ErrInvalidInput
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return Subject{}, ErrInvalidInput
	}

	if _, err := s.repo.FindByEmail(ctx, in.Email); err == nil {
		return Subject{}, ErrEmailTaken
	} else if !errors.Is(err, ErrNotFound) {
		return Subject{}, err
	}
	if _, err := s.repo.FindByName(ctx, in.Name); err == nil {
		return Subject{}, ErrNameTaken
	} else if !errors.Is(err, ErrNotFound) {
		return Subject{}, err
	}

	sub := Subject{
		Name:      in.Name,
		Email:     in.Email,
		IsAdmin:   in.IsAdmin,
		CreatedAt: s.now().UTC(),
	}
	if in.Password != "" {
		if err := sub.SetPassword(in.Password); err != nil {
			return Subject{}, err
		}
	}
	return s.repo.Create(ctx, sub)
}

// Get returns a subject by id.
func (s *Service) Get(ctx context.Context, id int64) (Subject, error) {
	return s.repo.Get(ctx, id)
}

// List returns all subjects ordered by id.
func (s *Service) List(ctx context.Context) ([]Subject, error) {
	return s.repo.List(ctx)
}

// Delete removes a subject and its attendance history.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

// Authenticate checks an email/password pair.
func (s *Service) Authenticate(ctx context.Context, email, password string) (Subject, error) {
	sub, err := s.repo.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Subject{}, ErrInvalidCredentials
		}
		return Subject{}, err
	}
	if !sub.CheckPassword(password) {
		return Subject{}, ErrInvalidCredentials
	}
	return sub, nil
}

// EnsureAdmin creates the bootstrap admin, or promotes and resets the password
// of the existing subject with that email.
func (s *Service) EnsureAdmin(ctx context.Context, name, email, password string) (Subject, error) {
	existing, err := s.repo.FindByEmail(ctx, email)
	switch {
	case err == nil:
		if err := existing.SetPassword(password); err != nil {
			return Subject{}, err
		}
		existing.IsAdmin = true
		if err := s.repo.UpdateAdmin(ctx, existing.ID, existing.PasswordHash, true); err != nil {
			return Subject{}, err
		}
		return existing, nil
	case errors.Is(err, ErrNotFound):
		sub, err := s.Register(ctx, RegisterInput{Name: name, Email: email, Password: password, IsAdmin: true})
		if err != nil {
			return Subject{}, err
		}
		log.Printf("bootstrap admin %s created", email)
		return sub, nil
	default:
		return Subject{}, err
	}
}

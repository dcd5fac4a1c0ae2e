package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

const minPasswordLen = 8

type Registration struct {
	Email     string `json:"email" validate:"required,email,max=254"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	FirstName string `json:"first_name" validate:"max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
	Role      string `json:"role,omitempty" validate:"omitempty,oneof=student teacher"`
}

type Service struct {
	store            *SQLStore
	cost             int
	openAuthorSignup bool
}

type Option func(*Service)

func WithBcryptCost(c int) Option { return func(s *Service) { s.cost = c } }

// WithOpenAuthorSignup lets self-registration request the teacher role.
func WithOpenAuthorSignup(v bool) Option { return func(s *Service) { s.openAuthorSignup = v } }

func NewService(store *SQLStore, opts ...Option) *Service {
	s := &Service{store: store, cost: bcrypt.DefaultCost}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) Register(ctx context.Context, r Registration) (User, error) {
	email := normalizeEmail(r.Email)
	if email == "" || !strings.Contains(email, "@") {
		return User{}, fmt.Errorf("valid email required: %w", quiz.ErrInvalidInput)
	}
	if len(r.Password) < minPasswordLen {
		return User{}, fmt.Errorf("password must be at least %d characters: %w", minPasswordLen, quiz.ErrInvalidInput)
	}
	role := RoleStudent
	if r.Role == RoleTeacher && s.openAuthorSignup {
		role = RoleTeacher
	}
	return s.create(ctx, email, r.Password, r.FirstName, r.LastName, role)
}

func (s *Service) create(ctx context.Context, email, password, first, last, role string) (User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	u := User{
		Email:        email,
		PasswordHash: string(hash),
		FirstName:    strings.TrimSpace(first),
		LastName:     strings.TrimSpace(last),
		Role:         role,
	}
	if err := s.store.Insert(ctx, &u); err != nil {
		return User{}, err
	}
	return u, nil
}

// Authenticate returns the user whose password matches. Unknown emails and
// wrong passwords yield the same error.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	u, err := s.store.FindByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, ErrUserNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

func (s *Service) Get(ctx context.Context, id string) (User, error) {
	return s.store.FindByID(ctx, id)
}

func (s *Service) List(ctx context.Context, role string) ([]User, error) {
	if role != "" && !ValidRole(role) {
		return nil, ErrInvalidRole
	}
	return s.store.List(ctx, role)
}

func (s *Service) ChangePassword(ctx context.Context, id, oldPassword, newPassword string) error {
	if len(newPassword) < minPasswordLen {
		return fmt.Errorf("password must be at least %d characters: %w", minPasswordLen, quiz.ErrInvalidInput)
	}
	u, err := s.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(oldPassword)) != nil {
		return ErrWrongPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.store.UpdatePassword(ctx, id, string(hash))
}

func (s *Service) SetRole(ctx context.Context, id, role string) error {
	if !ValidRole(role) {
		return ErrInvalidRole
	}
	return s.store.UpdateRole(ctx, id, role)
}

// EnsureAdmin creates the admin account on first boot, or promotes an
// existing account with that email. An empty email is a no-op.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) (User, bool, error) {
	email = normalizeEmail(email)
	if email == "" {
		return User{}, false, nil
	}
	u, err := s.store.FindByEmail(ctx, email)
	switch {
	case err == nil:
		if u.Role == RoleAdmin {
			return u, false, nil
		}
		if err := s.store.UpdateRole(ctx, u.ID, RoleAdmin); err != nil {
			return User{}, false, err
		}
		u.Role = RoleAdmin
		return u, true, nil
	case errors.Is(err, ErrUserNotFound):
		if password == "" {
			return User{}, false, fmt.Errorf("admin password required: %w", quiz.ErrInvalidInput)
		}
		u, err := s.create(ctx, email, password, "", "", RoleAdmin)
		return u, err == nil, err
	default:
		return User{}, false, err
	}
}

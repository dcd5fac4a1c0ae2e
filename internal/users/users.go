// Package users manages accounts: registration, password login and roles.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-quiz/internal/db"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

var (
	ErrUserNotFound       = fmt.Errorf("user %w", quiz.ErrNotFound)
	ErrDuplicateEmail     = fmt.Errorf("email already registered: %w", quiz.ErrConflict)
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrWrongPassword      = fmt.Errorf("incorrect old password: %w", quiz.ErrForbidden)
	ErrInvalidRole        = fmt.Errorf("unknown role: %w", quiz.ErrInvalidInput)
)

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	PasswordHash string    `json:"-"`
}

func ValidRole(r string) bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return true
	}
	return false
}

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(sqldb *sql.DB) *SQLStore { return &SQLStore{db: sqldb} }

const userColumns = `id,email,password_hash,first_name,last_name,role,created_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var u User
	var created int64
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Role, &created); err != nil {
		return User{}, err
	}
	u.CreatedAt = time.Unix(created, 0).UTC()
	return u, nil
}

func (s *SQLStore) Insert(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Unix(time.Now().Unix(), 0).UTC()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO users (`+userColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Role, u.CreatedAt.Unix())
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *SQLStore) FindByID(ctx context.Context, id string) (User, error) {
	return s.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
}

func (s *SQLStore) FindByEmail(ctx context.Context, email string) (User, error) {
	return s.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, email)
}

func (s *SQLStore) findOne(ctx context.Context, query, arg string) (User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

// List returns users ordered by email, optionally filtered by role.
func (s *SQLStore) List(ctx context.Context, role string) ([]User, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if role == "" {
		rows, err = s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY email`)
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE role=$1 ORDER BY email`, role)
	}
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	out := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *SQLStore) UpdatePassword(ctx context.Context, id, hash string) error {
	return s.exec(ctx, `UPDATE users SET password_hash=$1 WHERE id=$2`, hash, id)
}

func (s *SQLStore) UpdateRole(ctx context.Context, id, role string) error {
	return s.exec(ctx, `UPDATE users SET role=$1 WHERE id=$2`, role, id)
}

func (s *SQLStore) exec(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func normalizeEmail(e string) string { return strings.ToLower(strings.TrimSpace(e)) }

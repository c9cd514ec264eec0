// Package users holds the teacher accounts that own answer keys.
package users

import (
	"context"
	"database/sql"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"
)

const (
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"

	MinPasswordLen = 6
	bcryptCost     = 12
)

var (
	ErrNotFound           = errors.New("usuário não encontrado")
	ErrEmailTaken         = errors.New("Email já cadastrado!")
	ErrInvalidCredentials = errors.New("Usuario ou senha invalidos!")
	ErrInvalidInput       = errors.New("dados de cadastro inválidos")
	ErrWeakPassword       = errors.New("a senha deve ter pelo menos 6 caracteres")
)

type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"nome"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type Store struct {
	db   *sql.DB
	cost int
	now  func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, cost: bcryptCost, now: time.Now}
}

func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// Create registers a teacher account.
func (s *Store) Create(ctx context.Context, name, email, password string) (User, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if name == "" {
		return User{}, ErrInvalidInput
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return User{}, ErrInvalidInput
	}
	if len(password) < MinPasswordLen {
		return User{}, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return User{}, err
	}
	u := User{
		ID:        uuid.NewString(),
		Name:      name,
		Email:     email,
		Role:      RoleTeacher,
		CreatedAt: s.now().UTC().Truncate(time.Second),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, password_hash, role, created_at) VALUES ($1,$2,$3,$4,$5,$6)`,
		u.ID, u.Name, u.Email, string(hash), u.Role, u.CreatedAt.Unix())
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, ErrEmailTaken
		}
		return User{}, err
	}
	return u, nil
}

func (s *Store) Get(ctx context.Context, id string) (User, error) {
	u, _, err := s.scan(s.db.QueryRowContext(ctx,
		`SELECT id, name, email, role, created_at, password_hash FROM users WHERE id=$1`, id))
	return u, err
}

// Authenticate never reveals whether the email exists.
func (s *Store) Authenticate(ctx context.Context, email, password string) (User, error) {
	u, hash, err := s.scan(s.db.QueryRowContext(ctx,
		`SELECT id, name, email, role, created_at, password_hash FROM users WHERE email=$1`, normalizeEmail(email)))
	if errors.Is(err, ErrNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

func (s *Store) ChangePassword(ctx context.Context, id, oldPassword, newPassword string) error {
	if len(newPassword) < MinPasswordLen {
		return ErrWeakPassword
	}
	_, hash, err := s.scan(s.db.QueryRowContext(ctx,
		`SELECT id, name, email, role, created_at, password_hash FROM users WHERE id=$1`, id))
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(oldPassword)) != nil {
		return ErrInvalidCredentials
	}
	next, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cost)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `UPDATE users SET password_hash=$1 WHERE id=$2`, string(next), id)
	return err
}

func (s *Store) scan(row *sql.Row) (User, string, error) {
	var (
		u    User
		hash string
		ts   int64
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &ts, &hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, "", ErrNotFound
		}
		return User{}, "", err
	}
	u.CreatedAt = time.Unix(ts, 0).UTC()
	return u, hash, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

package users

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/gabarito/internal/db"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	dbh, err := db.Open(context.Background(), db.DriverSQLite, "file:"+filepath.Join(t.TempDir(), "users.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbh.Close() })
	s := NewStore(dbh)
	s.cost = bcrypt.MinCost
	return s
}

func TestStore_CreateAndAuthenticate(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	u, err := s.Create(ctx, " Ana Souza ", "Ana@Escola.BR ", "segredo1")
	require.NoError(t, err)
	assert.Equal(t, "Ana Souza", u.Name)
	assert.Equal(t, "ana@escola.br", u.Email)
	assert.Equal(t, RoleTeacher, u.Role)

	got, err := s.Authenticate(ctx, "ANA@escola.br", "segredo1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = s.Authenticate(ctx, "ana@escola.br", "errada")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = s.Authenticate(ctx, "ninguem@escola.br", "segredo1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	byID, err := s.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, byID.Email)
	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_CreateValidation(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	_, err := s.Create(ctx, "Ana", "ana@escola.br", "segredo1")
	require.NoError(t, err)

	testCases := []struct {
		name, userName, email, password string
		want                            error
	}{
		{name: "duplicate email", userName: "Outra", email: " ANA@escola.br", password: "segredo2", want: ErrEmailTaken},
		{name: "missing name", userName: " ", email: "b@escola.br", password: "segredo2", want: ErrInvalidInput},
		{name: "bad email", userName: "Bia", email: "bia-escola", password: "segredo2", want: ErrInvalidInput},
		{name: "short password", userName: "Bia", email: "bia@escola.br", password: "123", want: ErrWeakPassword},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Create(ctx, tc.userName, tc.email, tc.password)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestStore_ChangePassword(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	u, err := s.Create(ctx, "Ana", "ana@escola.br", "segredo1")
	require.NoError(t, err)

	assert.ErrorIs(t, s.ChangePassword(ctx, u.ID, "errada", "novasenha"), ErrInvalidCredentials)
	assert.ErrorIs(t, s.ChangePassword(ctx, u.ID, "segredo1", "123"), ErrWeakPassword)
	assert.ErrorIs(t, s.ChangePassword(ctx, "missing", "segredo1", "novasenha"), ErrNotFound)

	require.NoError(t, s.ChangePassword(ctx, u.ID, "segredo1", "novasenha"))
	_, err = s.Authenticate(ctx, "ana@escola.br", "segredo1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = s.Authenticate(ctx, "ana@escola.br", "novasenha")
	assert.NoError(t, err)
}

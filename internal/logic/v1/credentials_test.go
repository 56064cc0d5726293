package v1

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/duynhne/identity-service/internal/core/domain"
	"github.com/duynhne/identity-service/internal/core/repository"
)

func TestNormalizeUsername(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"alice", "alice"},
		{"  Alice  ", "alice"},
		{"Alice Smith", "alice_smith"},
		{"alice.smith", "alice_smith"},
		{"alice--__smith", "alice_smith"},
		{"José", "jose_"},
		{"ＡＬＩＣＥ", "alice"},
		{"a\U0001F600b", "a_b"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeUsername(tt.in))
		})
	}
}

func TestCredentialStore_Register(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	in := aliceRegistration()
	in.Email = "  Alice@Example.COM "
	user, err := env.creds.Register(ctx, in)
	require.NoError(t, err)

	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, domain.RoleUser, user.Role)
	assert.Equal(t, testEpoch, user.CreatedAt)
	assert.NotEqual(t, "secret1", user.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("secret1")))
}

func TestCredentialStore_RegisterValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RegisterInput)
	}{
		{"missing first name", func(in *RegisterInput) { in.FirstName = "  " }},
		{"missing last name", func(in *RegisterInput) { in.LastName = "" }},
		{"missing username", func(in *RegisterInput) { in.Username = "" }},
		{"missing email", func(in *RegisterInput) { in.Email = "" }},
		{"missing password", func(in *RegisterInput) { in.Password = "" }},
		{"first name too long", func(in *RegisterInput) { in.FirstName = strings.Repeat("a", 51) }},
		{"username too short after normalization", func(in *RegisterInput) { in.Username = "a!" }},
		{"username too long", func(in *RegisterInput) { in.Username = strings.Repeat("a", 31) }},
		{"email without dot", func(in *RegisterInput) { in.Email = "alice@example" }},
		{"email without at", func(in *RegisterInput) { in.Email = "alice.example.com" }},
		{"password too short", func(in *RegisterInput) { in.Password = "12345" }},
		{"password over 72 bytes", func(in *RegisterInput) { in.Password = strings.Repeat("p", 73) }},
		{"multibyte password over 72 bytes", func(in *RegisterInput) { in.Password = strings.Repeat("é", 37) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			in := aliceRegistration()
			tt.mutate(&in)

			_, err := env.creds.Register(context.Background(), in)

			require.ErrorIs(t, err, ErrValidation)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.NotEmpty(t, verr.Message)
		})
	}
}

func TestCredentialStore_RegisterBoundaries(t *testing.T) {
	env := newTestEnv(t)
	in := aliceRegistration()
	in.Username = strings.Repeat("b", 30)
	in.Password = "123456"
	in.FirstName = strings.Repeat("é", 50)

	_, err := env.creds.Register(context.Background(), in)
	assert.NoError(t, err)
}

func TestCredentialStore_RegisterLongestPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	in := aliceRegistration()
	in.Password = strings.Repeat("p", 72)

	_, err := env.creds.Register(ctx, in)
	require.NoError(t, err)

	_, err = env.creds.Authenticate(ctx, "alice", in.Password)
	assert.NoError(t, err)
}

func TestCredentialStore_RegisterConflicts(t *testing.T) {
	tests := []struct {
		name     string
		username string
		email    string
		wantErr  error
	}{
		{"same email different case", "bob", "ALICE@example.com", ErrEmailTaken},
		{"username case variant", "ALICE_Smith", "other@example.com", ErrUsernameTaken},
		{"username punctuation variant", "alice.smith", "other@example.com", ErrUsernameTaken},
		{"username whitespace variant", "  alice   smith ", "other@example.com", ErrUsernameTaken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()

			first := aliceRegistration()
			first.Username = "Alice Smith"
			_, err := env.creds.Register(ctx, first)
			require.NoError(t, err)

			second := aliceRegistration()
			second.Username = tt.username
			second.Email = tt.email
			_, err = env.creds.Register(ctx, second)

			require.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, ErrConflict)
		})
	}
}

// racingUserRepo reports names as free but fails the insert, as a concurrent
// registration would.
type racingUserRepo struct {
	*repository.MemoryUserRepository
	createErr error
}

func (r *racingUserRepo) ExistsByEmail(context.Context, string) (bool, error)    { return false, nil }
func (r *racingUserRepo) ExistsByUsername(context.Context, string) (bool, error) { return false, nil }
func (r *racingUserRepo) Create(context.Context, *domain.User) error            { return r.createErr }

func TestCredentialStore_RegisterRaceMapsConstraint(t *testing.T) {
	tests := []struct {
		createErr error
		want      error
	}{
		{fmt.Errorf("insert: %w", domain.ErrDuplicateEmail), ErrEmailTaken},
		{fmt.Errorf("insert: %w", domain.ErrDuplicateUsername), ErrUsernameTaken},
	}
	for _, tt := range tests {
		repo := &racingUserRepo{MemoryUserRepository: repository.NewMemoryUserRepository(), createErr: tt.createErr}
		store := NewCredentialStore(repo, WithBcryptCost(bcrypt.MinCost))

		_, err := store.Register(context.Background(), aliceRegistration())
		assert.ErrorIs(t, err, tt.want)
	}
}

func TestCredentialStore_Authenticate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	registered, err := env.creds.Register(ctx, aliceRegistration())
	require.NoError(t, err)

	tests := []struct {
		name       string
		identifier string
		password   string
		wantErr    error
	}{
		{"by username", "alice", "secret1", nil},
		{"by username case variant", "ALICE", "secret1", nil},
		{"by email", "alice@example.com", "secret1", nil},
		{"by email case variant", " ALICE@example.com ", "secret1", nil},
		{"wrong password", "alice", "secret2", ErrInvalidCredentials},
		{"unknown username", "mallory", "secret1", ErrInvalidCredentials},
		{"unknown email", "mallory@example.com", "secret1", ErrInvalidCredentials},
		{"empty identifier", "", "secret1", ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := env.creds.Authenticate(ctx, tt.identifier, tt.password)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, user)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, registered.ID, user.ID)
		})
	}
}

func TestCredentialStore_AuthenticateFailuresLookAlike(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.creds.Register(ctx, aliceRegistration())
	require.NoError(t, err)

	_, wrongPassword := env.creds.Authenticate(ctx, "alice", "nope-nope")
	_, unknownUser := env.creds.Authenticate(ctx, "nobody", "nope-nope")

	var a, b *ValidationError
	assert.False(t, errors.As(wrongPassword, &a))
	assert.False(t, errors.As(unknownUser, &b))
	assert.ErrorIs(t, wrongPassword, ErrInvalidCredentials)
	assert.ErrorIs(t, unknownUser, ErrInvalidCredentials)
}

func TestCredentialStore_ChangePassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.creds.Register(ctx, aliceRegistration())
	require.NoError(t, err)

	env.clock.Advance(time.Hour)
	require.NoError(t, env.creds.ChangePassword(ctx, "Alice@example.com", "brand-new-pass"))

	_, err = env.creds.Authenticate(ctx, "alice", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	user, err := env.creds.Authenticate(ctx, "alice", "brand-new-pass")
	require.NoError(t, err)
	assert.Equal(t, testEpoch.Add(time.Hour), user.UpdatedAt)

	err = env.creds.ChangePassword(ctx, "ghost@example.com", "brand-new-pass")
	assert.ErrorIs(t, err, ErrUserNotFound)

	err = env.creds.ChangePassword(ctx, "alice@example.com", strings.Repeat("p", 73))
	require.ErrorIs(t, err, ErrValidation)
	_, err = env.creds.Authenticate(ctx, "alice", "brand-new-pass")
	assert.NoError(t, err)
}

type unavailableUserRepo struct {
	*repository.MemoryUserRepository
}

func (unavailableUserRepo) GetByEmail(context.Context, string) (*domain.User, error) {
	return nil, fmt.Errorf("query: %w", domain.ErrUnavailable)
}

func TestCredentialStore_StoreUnavailable(t *testing.T) {
	store := NewCredentialStore(unavailableUserRepo{repository.NewMemoryUserRepository()}, WithBcryptCost(bcrypt.MinCost))

	_, err := store.Authenticate(context.Background(), "alice@example.com", "secret1")
	assert.ErrorIs(t, err, ErrServiceUnavailable)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
}

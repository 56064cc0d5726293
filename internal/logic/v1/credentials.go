package v1

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/unicode/norm"

	"github.com/duynhne/identity-service/internal/core/domain"
	"github.com/duynhne/identity-service/middleware"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 30
	maxNameLen     = 50
	minPasswordLen = 6

	// bcrypt rejects longer input.
	maxPasswordBytes = 72
)

var (
	emailPattern      = regexp.MustCompile(`^\S+@\S+\.\S+$`)
	emailLoginPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// NormalizeUsername folds a raw username into its canonical stored form.
func NormalizeUsername(raw string) string {
	decomposed := norm.NFKD.String(strings.TrimSpace(raw))

	var b strings.Builder
	prevUnderscore := false
	for _, r := range decomposed {
		if !isUsernameRune(r) {
			r = '_'
		}
		if r == '_' {
			if prevUnderscore {
				continue
			}
			prevUnderscore = true
		} else {
			prevUnderscore = false
		}
		if r >= 'A' && r <= 'Z' {
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isUsernameRune(r rune) bool {
	return r == '_' ||
		(r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// RegisterInput is the registration payload after transport decoding.
type RegisterInput struct {
	FirstName string
	LastName  string
	Username  string
	Email     string
	Password  string
}

// CredentialStore owns user records and password verification.
type CredentialStore struct {
	users domain.UserRepository
	opts  options

	dummyOnce sync.Once
	dummyHash []byte
}

// NewCredentialStore creates a CredentialStore over the given repository.
func NewCredentialStore(users domain.UserRepository, opts ...Option) *CredentialStore {
	return &CredentialStore{users: users, opts: buildOptions(opts)}
}

// Register validates and persists a new user.
func (s *CredentialStore) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	ctx, span := middleware.StartSpan(ctx, "credentials.register", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	firstName := strings.TrimSpace(in.FirstName)
	lastName := strings.TrimSpace(in.LastName)
	if firstName == "" || lastName == "" || strings.TrimSpace(in.Username) == "" ||
		strings.TrimSpace(in.Email) == "" || in.Password == "" {
		return nil, invalid("All fields are required")
	}
	if utf8.RuneCountInString(firstName) > maxNameLen || utf8.RuneCountInString(lastName) > maxNameLen {
		return nil, invalid("First and last name must be at most %d characters", maxNameLen)
	}

	username := NormalizeUsername(in.Username)
	if n := len(username); n < minUsernameLen || n > maxUsernameLen {
		return nil, invalid("Username must be between %d and %d characters", minUsernameLen, maxUsernameLen)
	}

	email := NormalizeEmail(in.Email)
	if !emailPattern.MatchString(email) {
		return nil, invalid("Email is not valid")
	}
	if len(in.Password) < minPasswordLen {
		return nil, invalid("Password must be at least %d characters", minPasswordLen)
	}
	if len(in.Password) > maxPasswordBytes {
		return nil, invalid("Password must be at most %d bytes", maxPasswordBytes)
	}

	span.SetAttributes(attribute.String("username", username))

	taken, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		span.RecordError(err)
		return nil, storeErr("check email", err)
	}
	if taken {
		return nil, fmt.Errorf("register %q: %w", username, ErrEmailTaken)
	}
	taken, err = s.users.ExistsByUsername(ctx, username)
	if err != nil {
		span.RecordError(err)
		return nil, storeErr("check username", err)
	}
	if taken {
		return nil, fmt.Errorf("register %q: %w", username, ErrUsernameTaken)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.opts.bcryptCost)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.opts.now().UTC()
	user := &domain.User{
		ID:           uuid.NewString(),
		FirstName:    firstName,
		LastName:     lastName,
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Role:         domain.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// A concurrent registration can still win the race; the unique
	// constraints report it here.
	if err := s.users.Create(ctx, user); err != nil {
		switch {
		case errors.Is(err, domain.ErrDuplicateEmail):
			return nil, fmt.Errorf("register %q: %w", username, ErrEmailTaken)
		case errors.Is(err, domain.ErrDuplicateUsername):
			return nil, fmt.Errorf("register %q: %w", username, ErrUsernameTaken)
		}
		span.RecordError(err)
		return nil, storeErr("insert user", err)
	}

	span.SetAttributes(attribute.String("user.id", user.ID))
	return user, nil
}

// Authenticate resolves identifier as an email or a username and checks the
// password.
func (s *CredentialStore) Authenticate(ctx context.Context, identifier, password string) (*domain.User, error) {
	ctx, span := middleware.StartSpan(ctx, "credentials.authenticate", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, invalid("Login and password are required")
	}

	var (
		user *domain.User
		err  error
	)
	if emailLoginPattern.MatchString(identifier) {
		span.SetAttributes(attribute.String("login.kind", "email"))
		user, err = s.users.GetByEmail(ctx, NormalizeEmail(identifier))
	} else {
		span.SetAttributes(attribute.String("login.kind", "username"))
		user, err = s.users.GetByUsername(ctx, NormalizeUsername(identifier))
	}
	if err != nil {
		span.RecordError(err)
		return nil, storeErr("lookup user", err)
	}

	if user == nil {
		// Equalize timing with the wrong-password path.
		_ = bcrypt.CompareHashAndPassword(s.dummy(), []byte(password))
		span.AddEvent("authentication.failed")
		return nil, fmt.Errorf("authenticate: %w", ErrInvalidCredentials)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		span.AddEvent("authentication.failed")
		return nil, fmt.Errorf("authenticate user %s: %w", user.ID, ErrInvalidCredentials)
	}

	span.SetAttributes(attribute.String("user.id", user.ID))
	return user, nil
}

// FindByEmail returns the user with the normalized email, or nil.
func (s *CredentialStore) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, storeErr("lookup user by email", err)
	}
	return user, nil
}

// GetByID returns the user with the given id, or nil.
func (s *CredentialStore) GetByID(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr("lookup user by id", err)
	}
	return user, nil
}

// ChangePassword re-hashes and stores a new password for the email.
func (s *CredentialStore) ChangePassword(ctx context.Context, email, newPassword string) error {
	ctx, span := middleware.StartSpan(ctx, "credentials.change_password", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	if len(newPassword) > maxPasswordBytes {
		return invalid("Password must be at most %d bytes", maxPasswordBytes)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.opts.bcryptCost)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("hash password: %w", err)
	}

	err = s.users.UpdatePassword(ctx, NormalizeEmail(email), string(hash), s.opts.now().UTC())
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("change password: %w", ErrUserNotFound)
	}
	if err != nil {
		span.RecordError(err)
		return storeErr("update password", err)
	}
	return nil
}

func (s *CredentialStore) dummy() []byte {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), s.opts.bcryptCost)
	})
	return s.dummyHash
}

// storeErr wraps a repository error, promoting connectivity failures to
// ErrServiceUnavailable.
func storeErr(op string, err error) error {
	if errors.Is(err, domain.ErrUnavailable) {
		return fmt.Errorf("%s: %w: %w", op, ErrServiceUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

package v1

import (
	"context"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/duynhne/identity-service/internal/core/repository"
)

var testEpoch = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: testEpoch} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fakeGate struct {
	mu     sync.Mutex
	allow  bool
	tokens []string
}

func (g *fakeGate) Verify(_ context.Context, token string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tokens = append(g.tokens, token)
	return g.allow
}

type sentCode struct {
	Email string
	Code  string
}

type fakeDispatcher struct {
	mu   sync.Mutex
	sent []sentCode
}

func (d *fakeDispatcher) SendResetCode(email, code string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, sentCode{Email: email, Code: code})
}

func (d *fakeDispatcher) Sent() []sentCode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]sentCode(nil), d.sent...)
}

type testEnv struct {
	clock      *fakeClock
	gate       *fakeGate
	dispatcher *fakeDispatcher

	users        *repository.MemoryUserRepository
	sessionsRepo *repository.MemorySessionRepository
	resetsRepo   *repository.MemoryResetRepository

	creds    *CredentialStore
	sessions *SessionManager
	resets   *PasswordResetService
	auth     *AuthService
	sweeper  *Sweeper
}

func newTestEnv(t *testing.T, extra ...Option) *testEnv {
	t.Helper()

	env := &testEnv{
		clock:        newFakeClock(),
		gate:         &fakeGate{allow: true},
		dispatcher:   &fakeDispatcher{},
		users:        repository.NewMemoryUserRepository(),
		sessionsRepo: repository.NewMemorySessionRepository(),
		resetsRepo:   repository.NewMemoryResetRepository(),
	}

	opts := append([]Option{
		WithClock(env.clock.Now),
		WithBcryptCost(bcrypt.MinCost),
	}, extra...)

	env.creds = NewCredentialStore(env.users, opts...)
	env.sessions = NewSessionManager(env.sessionsRepo, env.creds, []byte("test-secret"), opts...)
	env.resets = NewPasswordResetService(env.resetsRepo, env.creds, env.sessions, env.dispatcher, opts...)
	env.auth = NewAuthService(env.creds, env.sessions, env.resets, env.gate)
	env.sweeper = NewSweeper(env.sessionsRepo, env.resetsRepo, time.Minute, opts...)
	return env
}

func aliceRegistration() RegisterInput {
	return RegisterInput{
		FirstName: "Alice",
		LastName:  "Liddell",
		Username:  "alice",
		Email:     "alice@example.com",
		Password:  "secret1",
	}
}

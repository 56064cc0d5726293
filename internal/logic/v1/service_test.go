package v1

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duynhne/identity-service/internal/core/domain"
)

func aliceRequest() domain.RegisterRequest {
	return domain.RegisterRequest{
		FirstName:      "Alice",
		LastName:       "Liddell",
		Username:       "alice",
		Email:          "alice@example.com",
		Password:       "secret1",
		RecaptchaToken: "human",
	}
}

func TestAuthService_RegisterIssuesSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	resp, err := env.auth.Register(ctx, aliceRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "alice", resp.User.Username)

	me, err := env.auth.Me(ctx, resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, me.ID)
	assert.Equal(t, []string{"human"}, env.gate.tokens)
}

func TestAuthService_LoginScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.auth.Register(ctx, aliceRequest())
	require.NoError(t, err)

	first, err := env.auth.Login(ctx, domain.LoginRequest{Login: "alice", Password: "secret1"})
	require.NoError(t, err)
	_, err = env.auth.Me(ctx, first.Token)
	require.NoError(t, err)

	second, err := env.auth.Login(ctx, domain.LoginRequest{Login: "ALICE@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, first.User.ID, second.User.ID)

	_, err = env.auth.Me(ctx, first.Token)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	me, err := env.auth.Me(ctx, second.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", me.Email)
	assert.Equal(t, 1, env.sessionsRepo.CountForUser(me.ID))
}

func TestAuthService_ResetScenario(t *testing.T) {
	env := newTestEnv(t, fixedCode("123456"))
	ctx := context.Background()

	reg, err := env.auth.Register(ctx, aliceRequest())
	require.NoError(t, err)
	login, err := env.auth.Login(ctx, domain.LoginRequest{Login: "alice", Password: "secret1"})
	require.NoError(t, err)

	require.NoError(t, env.auth.RequestPasswordReset(ctx, "alice@example.com", "human"))
	sent := env.dispatcher.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "123456", sent[0].Code)

	ok, err := env.auth.VerifyResetCode(ctx, "alice@example.com", "000000")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = env.auth.VerifyResetCode(ctx, "alice@example.com", "123456")
	require.NoError(t, err)
	assert.True(t, ok)

	err = env.auth.ResetPassword(ctx, "alice@example.com", "123456", "sixsix")
	require.ErrorIs(t, err, ErrValidation)

	require.NoError(t, env.auth.ResetPassword(ctx, "alice@example.com", "123456", "eightchr"))

	for _, tok := range []string{reg.Token, login.Token} {
		_, err := env.auth.Me(ctx, tok)
		assert.ErrorIs(t, err, ErrUnauthenticated)
	}
	assert.Zero(t, env.sessionsRepo.CountForUser(reg.User.ID))

	_, err = env.auth.Login(ctx, domain.LoginRequest{Login: "alice", Password: "secret1"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = env.auth.Login(ctx, domain.LoginRequest{Login: "alice", Password: "eightchr"})
	assert.NoError(t, err)
}

func TestAuthService_BotGateRunsFirst(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.auth.Register(ctx, aliceRequest())
	require.NoError(t, err)

	env.gate.allow = false

	_, err = env.auth.Login(ctx, domain.LoginRequest{Login: "alice", Password: "secret1"})
	assert.ErrorIs(t, err, ErrBotCheckFailed)

	bob := aliceRequest()
	bob.Username, bob.Email = "bob", "bob@example.com"
	_, err = env.auth.Register(ctx, bob)
	assert.ErrorIs(t, err, ErrBotCheckFailed)
	exists, err := env.users.ExistsByUsername(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, exists)

	err = env.auth.RequestPasswordReset(ctx, "alice@example.com", "")
	assert.ErrorIs(t, err, ErrBotCheckFailed)
	assert.Empty(t, env.dispatcher.Sent())
}

func TestAuthService_RequestResetIsUniform(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.auth.Register(ctx, aliceRequest())
	require.NoError(t, err)

	known := env.auth.RequestPasswordReset(ctx, "alice@example.com", "human")
	unknown := env.auth.RequestPasswordReset(ctx, "ghost@example.com", "human")

	assert.NoError(t, known)
	assert.NoError(t, unknown)
	assert.Len(t, env.dispatcher.Sent(), 1)
}

func TestAuthService_Logout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	resp, err := env.auth.Register(ctx, aliceRequest())
	require.NoError(t, err)

	require.NoError(t, env.auth.Logout(ctx, resp.Token))
	_, err = env.auth.Me(ctx, resp.Token)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestSweeper_SweepOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := registerAlice(t, env)

	_, err := env.sessions.CreateSession(ctx, userID)
	require.NoError(t, err)
	require.NoError(t, env.resets.RequestReset(ctx, "alice@example.com"))

	sessions, resets, err := env.sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, sessions)
	assert.Zero(t, resets)

	env.clock.Advance(ResetCodeTTL)
	sessions, resets, err = env.sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, sessions)
	assert.Equal(t, int64(1), resets)

	env.clock.Advance(SessionTTL)
	sessions, _, err = env.sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sessions)
	assert.Zero(t, env.sessionsRepo.CountForUser(userID))
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	env := newTestEnv(t)
	sweeper := NewSweeper(env.sessionsRepo, env.resetsRepo, time.Millisecond, WithClock(env.clock.Now))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeTransport struct {
	name  string
	err   error
	block chan struct{}

	mu   sync.Mutex
	sent []Message
}

func (f *fakeTransport) Name() string { return f.name }

func (f *fakeTransport) Send(ctx context.Context, msg Message) error {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return f.err
}

func (f *fakeTransport) messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.sent...)
}

func waitAll(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.Wait(ctx))
}

func TestRenderResetCode(t *testing.T) {
	msg, err := RenderResetCode("alice@example.com", "123456", 10*time.Minute)
	require.NoError(t, err)

	assert.Equal(t, "alice@example.com", msg.To)
	assert.Equal(t, resetSubject, msg.Subject)
	assert.Contains(t, msg.HTML, "123456")
	assert.Contains(t, msg.HTML, "10 minutes")
}

func TestDispatcher_PrimarySucceeds(t *testing.T) {
	primary := &fakeTransport{name: "primary"}
	fallback := &fakeTransport{name: "fallback"}
	d := NewDispatcher(primary, fallback, time.Second, 10*time.Minute)

	d.SendResetCode("alice@example.com", "654321")
	waitAll(t, d)

	require.Len(t, primary.messages(), 1)
	assert.Contains(t, primary.messages()[0].HTML, "654321")
	assert.Empty(t, fallback.messages())
}

func TestDispatcher_FallbackOnPrimaryFailure(t *testing.T) {
	primary := &fakeTransport{name: "primary", err: errors.New("connection refused")}
	fallback := &fakeTransport{name: "fallback"}
	d := NewDispatcher(primary, fallback, time.Second, 10*time.Minute)

	d.SendResetCode("alice@example.com", "654321")
	waitAll(t, d)

	assert.Len(t, primary.messages(), 1)
	require.Len(t, fallback.messages(), 1)
	assert.Equal(t, "alice@example.com", fallback.messages()[0].To)
}

func TestDispatcher_BothFailIsSwallowed(t *testing.T) {
	primary := &fakeTransport{name: "primary", err: errors.New("boom")}
	fallback := &fakeTransport{name: "fallback", err: errors.New("boom again")}
	d := NewDispatcher(primary, fallback, time.Second, 10*time.Minute)

	assert.NotPanics(t, func() { d.SendResetCode("alice@example.com", "111111") })
	waitAll(t, d)

	assert.Len(t, primary.messages(), 1)
	assert.Len(t, fallback.messages(), 1)
}

func TestDispatcher_SendDoesNotBlock(t *testing.T) {
	release := make(chan struct{})
	primary := &fakeTransport{name: "primary", block: release}
	d := NewDispatcher(primary, nil, 5*time.Second, 10*time.Minute)

	returned := make(chan struct{})
	go func() {
		d.SendResetCode("alice@example.com", "222222")
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("SendResetCode blocked on delivery")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Wait(ctx), context.DeadlineExceeded)

	close(release)
	waitAll(t, d)
	assert.Len(t, primary.messages(), 1)
}

func TestDispatcher_DeliveryTimeout(t *testing.T) {
	primary := &fakeTransport{name: "primary", block: make(chan struct{})}
	d := NewDispatcher(primary, nil, 50*time.Millisecond, 10*time.Minute)

	d.SendResetCode("alice@example.com", "333333")
	waitAll(t, d)

	assert.Empty(t, primary.messages())
}

func TestDispatcher_DropsAfterWait(t *testing.T) {
	primary := &fakeTransport{name: "primary"}
	d := NewDispatcher(primary, nil, time.Second, 10*time.Minute)

	d.SendResetCode("alice@example.com", "444444")
	waitAll(t, d)

	d.SendResetCode("alice@example.com", "555555")
	waitAll(t, d)

	require.Len(t, primary.messages(), 1)
	assert.Contains(t, primary.messages()[0].HTML, "444444")
}

func TestDispatcher_SendRacingWait(t *testing.T) {
	primary := &fakeTransport{name: "primary"}
	d := NewDispatcher(primary, nil, time.Second, 10*time.Minute)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.SendResetCode("alice@example.com", "666666")
		}()
	}
	waitAll(t, d)
	wg.Wait()

	// Whatever was accepted before Wait has been delivered.
	delivered := len(primary.messages())
	waitAll(t, d)
	assert.Equal(t, delivered, len(primary.messages()))
	assert.LessOrEqual(t, delivered, 50)
}

package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/duynhne/identity-service/config"
	"github.com/duynhne/identity-service/internal/metrics"
)

const resetSubject = "Your password reset code"

var resetTemplate = template.Must(template.New("reset").Parse(
	`<div style="font-family: Arial, sans-serif; color: #111;">` +
		`<h2>Reset your password</h2>` +
		`<p>Your verification code is:</p>` +
		`<div style="font-size: 24px; font-weight: bold; letter-spacing: 4px;">{{.Code}}</div>` +
		`<p>This code expires in {{.Minutes}} minutes.</p>` +
		`<p>If you did not request this change, ignore this email.</p>` +
		`</div>`))

// RenderResetCode builds the reset-code email for one recipient.
func RenderResetCode(email, code string, ttl time.Duration) (Message, error) {
	var buf bytes.Buffer
	err := resetTemplate.Execute(&buf, struct {
		Code    string
		Minutes int
	}{Code: code, Minutes: int(ttl / time.Minute)})
	if err != nil {
		return Message{}, fmt.Errorf("render reset mail: %w", err)
	}
	return Message{To: email, Subject: resetSubject, HTML: buf.String()}, nil
}

// Dispatcher sends notifications in the background. Callers never wait for
// delivery and never see delivery errors.
type Dispatcher struct {
	primary  Transport
	fallback Transport
	timeout  time.Duration
	codeTTL  time.Duration

	// mu guards closed and orders wg.Add before Wait.
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a Dispatcher. fallback may be nil.
func NewDispatcher(primary, fallback Transport, timeout, codeTTL time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{
		primary:  primary,
		fallback: fallback,
		timeout:  timeout,
		codeTTL:  codeTTL,
	}
}

// NewFromConfig picks SMTP transports when credentials exist and the log
// transport otherwise. The log transport is refused in production.
func NewFromConfig(cfg *config.Config, codeTTL time.Duration) (*Dispatcher, error) {
	s := cfg.SMTP
	timeout := cfg.GetSMTPTimeoutDuration()

	if s.Username == "" || s.Password == "" {
		if cfg.IsProduction() {
			return nil, fmt.Errorf("smtp credentials are required in production")
		}
		log.Warn().Msg("SMTP credentials not configured, reset codes will be logged")
		return NewDispatcher(LogTransport{}, nil, timeout, codeTTL), nil
	}

	primary := NewSMTPTransport("primary", SMTPSettings{
		Host:       s.Host,
		Port:       s.Port,
		Username:   s.Username,
		Password:   s.Password,
		SSL:        s.Secure,
		RequireTLS: s.RequireTLS,
		FromEmail:  s.FromEmail,
		FromName:   s.FromName,
		Timeout:    timeout,
	})

	var fallback Transport
	if s.FallbackHost != "" {
		fallback = NewSMTPTransport("fallback", SMTPSettings{
			Host:      s.FallbackHost,
			Port:      s.FallbackPort,
			Username:  s.Username,
			Password:  s.Password,
			FromEmail: s.FromEmail,
			FromName:  s.FromName,
			Timeout:   timeout,
		})
	}

	// Both attempts share one deadline.
	return NewDispatcher(primary, fallback, 2*timeout, codeTTL), nil
}

// SendResetCode queues delivery of a reset code and returns immediately.
// Messages sent after Wait has been called are dropped.
func (d *Dispatcher) SendResetCode(email, code string) {
	msg, err := RenderResetCode(email, code, d.codeTTL)
	if err != nil {
		log.Error().Err(err).Msg("Failed to render reset mail")
		return
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		log.Warn().Msg("Dispatcher is shutting down, reset mail dropped")
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		d.deliver(ctx, msg)
	}()
}

func (d *Dispatcher) deliver(ctx context.Context, msg Message) {
	err := d.primary.Send(ctx, msg)
	if err == nil {
		metrics.MailDeliveries.WithLabelValues(d.primary.Name(), metrics.ResultSuccess).Inc()
		return
	}
	metrics.MailDeliveries.WithLabelValues(d.primary.Name(), metrics.ResultFailure).Inc()

	if d.fallback == nil {
		log.Error().Err(err).Str("transport", d.primary.Name()).Msg("Reset mail delivery failed")
		return
	}
	log.Warn().Err(err).Str("transport", d.primary.Name()).Msg("Primary mail transport failed, trying fallback")

	if ferr := d.fallback.Send(ctx, msg); ferr != nil {
		metrics.MailDeliveries.WithLabelValues(d.fallback.Name(), metrics.ResultFailure).Inc()
		log.Error().
			Err(ferr).
			AnErr("primary_error", err).
			Str("transport", d.fallback.Name()).
			Msg("Reset mail delivery failed on every transport")
		return
	}
	metrics.MailDeliveries.WithLabelValues(d.fallback.Name(), metrics.ResultSuccess).Inc()
}

// Wait stops accepting new messages and blocks until in-flight deliveries
// finish or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

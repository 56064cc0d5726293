// Package notify delivers out-of-band messages such as password reset codes.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wneessen/go-mail"
)

// Message is one rendered email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Transport sends a rendered message.
type Transport interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// SMTPSettings configures one SMTP relay.
type SMTPSettings struct {
	Host     string
	Port     int
	Username string
	Password string
	// SSL dials with implicit TLS.
	SSL bool
	// RequireTLS fails the delivery when STARTTLS is not offered.
	RequireTLS bool
	FromEmail  string
	FromName   string
	Timeout    time.Duration
}

// SMTPTransport sends mail through an authenticated SMTP relay.
type SMTPTransport struct {
	name     string
	settings SMTPSettings
}

// NewSMTPTransport creates a transport named name for logs and metrics.
func NewSMTPTransport(name string, settings SMTPSettings) *SMTPTransport {
	return &SMTPTransport{name: name, settings: settings}
}

func (t *SMTPTransport) Name() string { return t.name }

// Send dials the relay, delivers msg and closes the connection.
func (t *SMTPTransport) Send(ctx context.Context, msg Message) error {
	s := t.settings

	m := mail.NewMsg()
	if err := m.FromFormat(s.FromName, s.FromEmail); err != nil {
		return fmt.Errorf("set from address: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return fmt.Errorf("set recipient: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextHTML, msg.HTML)

	opts := []mail.Option{
		mail.WithPort(s.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.Username),
		mail.WithPassword(s.Password),
	}
	if s.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(s.Timeout))
	}
	if s.SSL {
		opts = append(opts, mail.WithSSL())
	}
	if s.RequireTLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}

	client, err := mail.NewClient(s.Host, opts...)
	if err != nil {
		return fmt.Errorf("create smtp client for %s: %w", s.Host, err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("send via %s:%d: %w", s.Host, s.Port, err)
	}
	return nil
}

// LogTransport writes messages to the log instead of sending them.
// Development only: the log line contains the message body.
type LogTransport struct{}

func (LogTransport) Name() string { return "log" }

func (LogTransport) Send(_ context.Context, msg Message) error {
	log.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Str("body", msg.HTML).
		Msg("Mail not sent (log transport)")
	return nil
}

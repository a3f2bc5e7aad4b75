package mail

import (
	"context"
	"strings"
	"time"

	"gopkg.in/gomail.v2"

	"fleetdocs/internal/config"
)

// SMTPTransport sends mail through a plain SMTP relay using gomail.
type SMTPTransport struct {
	host    string
	port    int
	user    string
	pass    string
	from    string
	timeout time.Duration
}

// NewSMTPTransport builds the SMTP transport from mail configuration.
// An empty or local placeholder host yields an unavailable transport.
func NewSMTPTransport(cfg config.MailConfig) *SMTPTransport {
	return &SMTPTransport{
		host:    cfg.SMTPHost,
		port:    cfg.SMTPPort,
		user:    cfg.SMTPUser,
		pass:    cfg.SMTPPass,
		from:    cfg.From,
		timeout: time.Duration(cfg.TimeoutSec) * time.Second,
	}
}

var _ Transport = (*SMTPTransport)(nil)

func (t *SMTPTransport) Name() string { return "smtp" }

// Available reports whether a real relay is configured. Local capture hosts
// (mailhog and friends, used in dev compose files) do not count as a usable
// fallback in production.
func (t *SMTPTransport) Available() bool {
	switch strings.ToLower(t.host) {
	case "", "mailhog", "localhost", "127.0.0.1":
		return false
	}
	return true
}

// Send delivers one message. gomail has no context support, so the dial+send
// runs on its own goroutine and the call is bounded by the transport timeout
// and the caller's context, whichever ends first.
func (t *SMTPTransport) Send(ctx context.Context, to, subject, htmlBody string) error {
	if !t.Available() {
		return ErrNoTransport
	}

	m := gomail.NewMessage()
	m.SetHeader("From", t.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", htmlBody)

	d := gomail.NewDialer(t.host, t.port, t.user, t.pass)

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() { done <- d.DialAndSend(m) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

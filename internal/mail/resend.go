package mail

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/resend/resend-go/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"fleetdocs/internal/config"
)

// ResendTransport sends mail through the Resend transactional email HTTP API.
// The underlying HTTP client carries a hard timeout and trace propagation.
type ResendTransport struct {
	client *resend.Client
	apiKey string
	from   string
}

// NewResendTransport builds the Resend transport from mail configuration.
// An empty API key yields an unavailable (but non-nil) transport.
func NewResendTransport(cfg config.MailConfig) *ResendTransport {
	httpClient := &http.Client{
		Timeout:   time.Duration(cfg.TimeoutSec) * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	client := resend.NewCustomClient(httpClient, cfg.ResendAPIKey)
	if cfg.ResendBaseURL != "" {
		if u, err := url.Parse(cfg.ResendBaseURL); err == nil {
			client.BaseURL = u
		}
	}
	return &ResendTransport{
		client: client,
		apiKey: cfg.ResendAPIKey,
		from:   cfg.From,
	}
}

var _ Transport = (*ResendTransport)(nil)

func (t *ResendTransport) Name() string { return "resend" }

func (t *ResendTransport) Available() bool { return t.apiKey != "" }

func (t *ResendTransport) Send(ctx context.Context, to, subject, htmlBody string) error {
	if !t.Available() {
		return ErrNoTransport
	}
	_, err := t.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    t.from,
		To:      []string{to},
		Subject: subject,
		Html:    htmlBody,
	})
	return err
}

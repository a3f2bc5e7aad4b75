package mail

import (
	"context"
	"strings"

	"fleetdocs/internal/config"
)

// SubjectPrefix tags every outgoing subject line so receiving mailboxes can
// route and filter fleet notifications.
const SubjectPrefix = "[fleetdocs]"

// Notifier dispatches mail through a primary transport with a single
// fallback hop to the secondary. No retries, no backoff, no queueing: a
// failed send stays un-acked so the caller re-attempts on its next pass.
type Notifier struct {
	primary    Transport
	secondary  Transport
	overrideTo string
}

// NewNotifier picks primary/secondary order from the configured provider.
func NewNotifier(cfg config.MailConfig, resendT, smtpT Transport) *Notifier {
	n := &Notifier{overrideTo: cfg.To}
	if strings.EqualFold(cfg.Provider, "SMTP") {
		n.primary, n.secondary = smtpT, resendT
	} else {
		n.primary, n.secondary = resendT, smtpT
	}
	return n
}

// Send attempts the primary transport, then the secondary on any failure.
// It returns the provider that accepted the message, the tagged per-provider
// attempts, and an error: ErrNoRecipient for an empty recipient,
// ErrNoTransport when nothing is configured, or a *DeliveryError describing
// every failed attempt.
func (n *Notifier) Send(ctx context.Context, to, subject, htmlBody string) (string, []Attempt, error) {
	target := to
	if n.overrideTo != "" {
		target = n.overrideTo
	}
	if target == "" {
		return "", nil, ErrNoRecipient
	}
	subject = SubjectPrefix + " " + subject

	var attempts []Attempt
	for _, tr := range []Transport{n.primary, n.secondary} {
		if tr == nil || !tr.Available() {
			continue
		}
		if err := tr.Send(ctx, target, subject, htmlBody); err != nil {
			attempts = append(attempts, Attempt{Provider: tr.Name(), Err: err})
			continue
		}
		attempts = append(attempts, Attempt{Provider: tr.Name()})
		return tr.Name(), attempts, nil
	}

	if len(attempts) == 0 {
		return "", nil, ErrNoTransport
	}
	return "", attempts, &DeliveryError{Attempts: attempts}
}

// Package mail contains the outbound email transports and the fallback
// policy between them. It knows nothing about vehicles or documents; callers
// hand it a rendered subject and HTML body.
package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNoTransport indicates that no usable mail transport is configured.
// It is fatal to the send attempt only, never to the caller's run.
var ErrNoTransport = errors.New("no usable mail transport configured")

// ErrNoRecipient indicates a send with an empty recipient after the
// override was applied. Nothing reaches a transport in that case.
var ErrNoRecipient = errors.New("no recipient address")

// Transport is a single mail provider (transactional HTTP API, SMTP relay).
type Transport interface {
	// Name identifies the provider in logs and attempt results.
	Name() string
	// Available reports whether the transport has enough configuration to
	// attempt a send at all.
	Available() bool
	// Send delivers one HTML message. Implementations must bound the call
	// with a timeout.
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// Attempt is the tagged outcome of one provider try.
type Attempt struct {
	Provider string
	Err      error
}

// DeliveryError aggregates the failed attempts of a send, so the caller
// sees the primary failure and the fallback failure together.
type DeliveryError struct {
	Attempts []Attempt
}

func (e *DeliveryError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Provider, a.Err))
	}
	return "mail delivery failed: " + strings.Join(parts, "; ")
}

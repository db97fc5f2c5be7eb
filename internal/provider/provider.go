// Package provider defines the interface for email delivery backends.
package provider

import (
	"context"

	"github.com/shineum/resend-lite/resend"
)

// Provider is the interface that email delivery backends must implement.
// Each provider takes an already normalized payload and hands it to the
// target service (the Resend API, Amazon SES, stdout).
type Provider interface {
	// Send delivers a normalized payload through this provider. The
	// response carries the id the backend assigned to the message.
	Send(ctx context.Context, p *resend.Payload) (*resend.SendEmailResponse, error)

	// Name returns the human-readable name of this provider.
	Name() string
}

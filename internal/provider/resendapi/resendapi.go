// Package resendapi implements a Provider that submits payloads to the
// Resend HTTP API.
package resendapi

import (
	"context"
	"log/slog"

	"github.com/shineum/resend-lite/resend"
)

// Provider submits payloads with a resend.Client.
type Provider struct {
	client *resend.Client
}

// New creates a Provider around client.
func New(client *resend.Client) *Provider {
	return &Provider{client: client}
}

// Send posts the payload. A remote failure is logged and returned in the
// response, not as an error; only transport failures are errors.
func (p *Provider) Send(ctx context.Context, msg *resend.Payload) (*resend.SendEmailResponse, error) {
	resp, err := p.client.SendPayload(ctx, msg)
	if err != nil {
		return nil, err
	}

	if remote := resp.Err(); remote != nil {
		slog.WarnContext(ctx, "Resend API rejected message",
			"status", resp.HTTPStatus,
			"error", remote,
		)
	}

	return resp, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "resend"
}

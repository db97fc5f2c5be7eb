// Package stdout implements a Provider that prints payloads to standard
// output instead of delivering them.
package stdout

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/shineum/resend-lite/resend"
)

// Provider prints normalized payloads in a human-readable format.
type Provider struct {
	// writer is the output destination, defaulting to os.Stdout.
	writer io.Writer
}

// New creates a new stdout Provider that writes to os.Stdout.
func New() *Provider {
	return &Provider{writer: os.Stdout}
}

// NewWithWriter creates a new stdout Provider that writes to the given writer.
// This is useful for testing.
func NewWithWriter(w io.Writer) *Provider {
	return &Provider{writer: w}
}

// Send prints the payload and returns a locally generated id.
func (p *Provider) Send(_ context.Context, msg *resend.Payload) (*resend.SendEmailResponse, error) {
	id := uuid.NewString()

	var b strings.Builder

	b.WriteString("========================================\n")
	b.WriteString(fmt.Sprintf("Id: %s\n", id))
	b.WriteString(fmt.Sprintf("From: %s\n", msg.From))
	b.WriteString(fmt.Sprintf("To: %s\n", strings.Join(msg.To, ", ")))

	if len(msg.Cc) > 0 {
		b.WriteString(fmt.Sprintf("Cc: %s\n", strings.Join(msg.Cc, ", ")))
	}
	if len(msg.Bcc) > 0 {
		b.WriteString(fmt.Sprintf("Bcc: %s\n", strings.Join(msg.Bcc, ", ")))
	}
	if len(msg.ReplyTo) > 0 {
		b.WriteString(fmt.Sprintf("Reply-To: %s\n", strings.Join(msg.ReplyTo, ", ")))
	}

	b.WriteString(fmt.Sprintf("Subject: %s\n", msg.Subject))

	keys := make([]string, 0, len(msg.Headers))
	for k := range msg.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(fmt.Sprintf("Header %s: %s\n", k, msg.Headers[k]))
	}

	if len(msg.Tags) > 0 {
		tags := make([]string, 0, len(msg.Tags))
		for _, tag := range msg.Tags {
			tags = append(tags, tag.Name+"="+tag.Value)
		}
		b.WriteString(fmt.Sprintf("Tags: %s\n", strings.Join(tags, ", ")))
	}

	b.WriteString("Body:\n")

	body := msg.Text
	if body == "" {
		body = msg.HTML
	}
	b.WriteString(body + "\n")

	if len(msg.Attachments) > 0 {
		attachments := make([]string, 0, len(msg.Attachments))
		for _, att := range msg.Attachments {
			attachments = append(attachments, describeAttachment(att))
		}
		b.WriteString(fmt.Sprintf("Attachments: %s\n", strings.Join(attachments, ", ")))
	}

	b.WriteString("========================================\n")

	if _, err := fmt.Fprint(p.writer, b.String()); err != nil {
		return nil, fmt.Errorf("failed to write message: %w", err)
	}

	return &resend.SendEmailResponse{ID: id}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "stdout"
}

func describeAttachment(att resend.PayloadAttachment) string {
	name := att.Filename
	if name == "" || att.OmitFilename {
		name = "(unnamed)"
	}
	if att.Path != "" {
		return fmt.Sprintf("%s (%s)", name, att.Path)
	}
	return fmt.Sprintf("%s (%s)", name, formatSize(base64.StdEncoding.DecodedLen(len(att.Content))))
}

// formatSize formats an approximate byte count into a human-readable string.
func formatSize(bytes int) string {
	const (
		kb = 1024
		mb = kb * 1024
	)

	switch {
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

package resend

import (
	"context"
	"maps"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/shineum/resend-lite/render"
)

// maxTagLength is the longest tag name or value the API accepts.
const maxTagLength = 256

var tagPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Renderer turns a component into HTML, or into plain text when
// opts.PlainText is set.
type Renderer interface {
	Render(ctx context.Context, component any, opts render.Options) (string, error)
}

var (
	defaultRendererOnce sync.Once
	defaultRenderer     Renderer
)

// loadDefaultRenderer creates the default renderer on first use.
func loadDefaultRenderer() Renderer {
	defaultRendererOnce.Do(func() {
		defaultRenderer = render.New()
	})
	return defaultRenderer
}

// Normalize validates req and returns its wire form. A component body is
// rendered twice through r (HTML, then plain text); a nil r selects the
// default renderer. Attachments are materialized concurrently. req itself is
// not modified.
func Normalize(ctx context.Context, req *SendEmailRequest, r Renderer) (*Payload, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	p := &Payload{
		From:    req.From,
		To:      slices.Clone(req.To),
		Subject: req.Subject,
		Cc:      slices.Clone(req.Cc),
		Bcc:     slices.Clone(req.Bcc),
		ReplyTo: slices.Clone(req.ReplyTo),
		Headers: maps.Clone(req.Headers),
		Tags:    slices.Clone(req.Tags),
	}

	if err := resolveBody(ctx, req, r, p); err != nil {
		return nil, err
	}

	attachments, err := normalizeAttachments(ctx, req.Attachments)
	if err != nil {
		return nil, err
	}
	p.Attachments = attachments

	return p, nil
}

// resolveBody fills the payload body. A renderer error is returned as is.
func resolveBody(ctx context.Context, req *SendEmailRequest, r Renderer, p *Payload) error {
	if req.Component == nil {
		p.HTML = req.HTML
		p.Text = req.Text
		return nil
	}

	if r == nil {
		r = loadDefaultRenderer()
	}

	html, err := r.Render(ctx, req.Component, render.Options{})
	if err != nil {
		return err
	}
	text, err := r.Render(ctx, req.Component, render.Options{PlainText: true})
	if err != nil {
		return err
	}

	p.HTML = html
	p.Text = text
	return nil
}

func validateRequest(req *SendEmailRequest) error {
	if req == nil {
		return invalid("request", "request is required")
	}
	if strings.TrimSpace(req.From) == "" {
		return invalid("from", "sender address is required")
	}
	if !hasAddress(req.To) {
		return invalid("to", "at least one recipient is required")
	}
	for _, list := range []struct {
		field string
		addrs Recipients
	}{
		{"to", req.To},
		{"cc", req.Cc},
		{"bcc", req.Bcc},
		{"reply_to", req.ReplyTo},
	} {
		for i, addr := range list.addrs {
			if strings.TrimSpace(addr) == "" {
				return invalidAt(list.field, i, "address must not be blank")
			}
		}
	}
	if req.Subject == "" {
		return invalid("subject", "subject is required")
	}

	hasComponent := req.Component != nil
	switch {
	case !hasComponent && req.HTML == "" && req.Text == "":
		return invalid("body", "one of component, html or text is required")
	case hasComponent && (req.HTML != "" || req.Text != ""):
		return invalid("component", "component cannot be combined with html or text")
	}

	for i, tag := range req.Tags {
		if reason := checkTagField("name", tag.Name); reason != "" {
			return invalidAt("tags", i, reason)
		}
		if reason := checkTagField("value", tag.Value); reason != "" {
			return invalidAt("tags", i, reason)
		}
	}

	for i, a := range req.Attachments {
		if err := validateAttachment(i, a); err != nil {
			return err
		}
	}

	return nil
}

// checkTagField returns why a tag name or value is invalid, or "".
func checkTagField(field, v string) string {
	switch {
	case v == "":
		return field + " is required"
	case len(v) > maxTagLength:
		return field + " must be at most 256 characters"
	case !tagPattern.MatchString(v):
		return field + " may only contain ASCII letters, numbers, underscores or dashes"
	}
	return ""
}

func hasAddress(r Recipients) bool {
	for _, addr := range r {
		if strings.TrimSpace(addr) != "" {
			return true
		}
	}
	return false
}

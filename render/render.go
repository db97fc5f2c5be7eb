// Package render turns email components into HTML and plain text.
//
// A component is anything with a Render(ctx, w) method, which covers templ
// components as well as the Template and Static adapters defined here. The
// HTML form is the component's markup behind an XHTML doctype; the plain-text
// form is a projection of that markup (see PlainText).
package render

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io"
	"strings"
)

// Doctype is prepended to rendered HTML that does not declare one.
const Doctype = `<!DOCTYPE html PUBLIC "-//W3C//DTD XHTML 1.0 Transitional//EN" "http://www.w3.org/TR/xhtml1/DTD/xhtml1-transitional.dtd">`

// Options selects the render mode.
type Options struct {
	PlainText bool
}

// Component writes its HTML markup to w.
type Component interface {
	Render(ctx context.Context, w io.Writer) error
}

// ComponentFunc adapts a function to Component.
type ComponentFunc func(ctx context.Context, w io.Writer) error

// Render calls f.
func (f ComponentFunc) Render(ctx context.Context, w io.Writer) error {
	return f(ctx, w)
}

// Template returns a component executing t with data. html/template escapes
// the data for its HTML context.
func Template(t *template.Template, data any) Component {
	return ComponentFunc(func(_ context.Context, w io.Writer) error {
		return t.Execute(w, data)
	})
}

// Static returns a component that writes markup verbatim.
func Static(markup string) Component {
	return ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := io.WriteString(w, markup)
		return err
	})
}

// Renderer renders Components. The zero value is ready to use.
type Renderer struct{}

// New returns a Renderer.
func New() *Renderer {
	return &Renderer{}
}

// Render renders component, which must implement Component.
func (r *Renderer) Render(ctx context.Context, component any, opts Options) (string, error) {
	c, ok := component.(Component)
	if !ok {
		return "", fmt.Errorf("render: unsupported component type %T", component)
	}

	var buf bytes.Buffer
	if err := c.Render(ctx, &buf); err != nil {
		return "", fmt.Errorf("render: %w", err)
	}

	if opts.PlainText {
		return PlainText(buf.String())
	}
	return withDoctype(buf.String()), nil
}

func withDoctype(markup string) string {
	trimmed := strings.TrimSpace(markup)
	if len(trimmed) >= 9 && strings.EqualFold(trimmed[:9], "<!doctype") {
		return markup
	}
	return Doctype + markup
}

package render

import (
	"context"
	"errors"
	"html/template"
	"io"
	"strings"
	"testing"
)

func TestRender_StaticHTML(t *testing.T) {
	t.Parallel()

	got, err := New().Render(context.Background(), Static("<p>Hi</p>"), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := Doctype + "<p>Hi</p>"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRender_KeepsExistingDoctype(t *testing.T) {
	t.Parallel()

	markup := "<!DOCTYPE html><html><body><p>Hi</p></body></html>"
	got, err := New().Render(context.Background(), Static(markup), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != markup {
		t.Errorf("got %q, want %q", got, markup)
	}
}

func TestRender_PlainText(t *testing.T) {
	t.Parallel()

	got, err := New().Render(context.Background(), Static("<h1>Welcome</h1><p>Thanks for joining.</p>"), Options{PlainText: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "WELCOME\n\nThanks for joining."
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRender_Template(t *testing.T) {
	t.Parallel()

	tmpl := template.Must(template.New("welcome").Parse(`<p>Hello {{.Name}}</p>`))
	c := Template(tmpl, map[string]string{"Name": "<Ada>"})

	html, err := New().Render(context.Background(), c, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasSuffix(html, "<p>Hello &lt;Ada&gt;</p>") {
		t.Errorf("html not escaped: %q", html)
	}

	text, err := New().Render(context.Background(), c, Options{PlainText: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "Hello <Ada>" {
		t.Errorf("text: got %q, want %q", text, "Hello <Ada>")
	}
}

func TestRender_ComponentFunc(t *testing.T) {
	t.Parallel()

	type ctxKey struct{}
	ctx := context.WithValue(context.Background(), ctxKey{}, "from-context")

	c := ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, "<p>"+ctx.Value(ctxKey{}).(string)+"</p>")
		return err
	})

	got, err := New().Render(ctx, c, Options{PlainText: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "from-context" {
		t.Errorf("got %q, want %q", got, "from-context")
	}
}

func TestRender_UnsupportedType(t *testing.T) {
	t.Parallel()

	_, err := New().Render(context.Background(), "<p>not a component</p>", Options{})
	if err == nil {
		t.Fatal("expected error for unsupported component type")
	}
	if !strings.Contains(err.Error(), "unsupported component type string") {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestRender_ComponentError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	c := ComponentFunc(func(context.Context, io.Writer) error { return boom })

	_, err := New().Render(context.Background(), c, Options{})
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped component error, got %v", err)
	}
}

func TestPlainText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "empty",
			in:   "",
			want: "",
		},
		{
			name: "collapses whitespace",
			in:   "<p>  Hello \n\n   world  </p>",
			want: "Hello world",
		},
		{
			name: "paragraphs separated by blank line",
			in:   "<p>One</p><p>Two</p>",
			want: "One\n\nTwo",
		},
		{
			name: "divs on separate lines",
			in:   "<div>One</div><div>Two</div>",
			want: "One\nTwo",
		},
		{
			name: "line break",
			in:   "Line one<br>Line two",
			want: "Line one\nLine two",
		},
		{
			name: "list items",
			in:   "<p>Items:</p><ul><li>One</li><li>Two</li></ul>",
			want: "Items:\n\n * One\n * Two",
		},
		{
			name: "link keeps href",
			in:   `<p>Hello <a href="https://example.com">there</a>.</p>`,
			want: "Hello there [https://example.com].",
		},
		{
			name: "link text equal to href",
			in:   `<a href="https://example.com">https://example.com</a>`,
			want: "https://example.com",
		},
		{
			name: "fragment link",
			in:   `<a href="#top">Top</a>`,
			want: "Top",
		},
		{
			name: "entities decoded",
			in:   "<p>Tom &amp; Jerry</p>",
			want: "Tom & Jerry",
		},
		{
			name: "head script and style dropped",
			in:   "<html><head><title>T</title><style>p{color:red}</style></head><body><p>Hi</p><script>track()</script></body></html>",
			want: "Hi",
		},
		{
			name: "images dropped",
			in:   `<p>before <img src="logo.png" alt="logo"> after</p>`,
			want: "before after",
		},
		{
			name: "preformatted kept",
			in:   "<pre>a  b\n c</pre>",
			want: "a  b\n c",
		},
		{
			name: "heading upper cased",
			in:   "<h2>Order shipped</h2><p>Soon.</p>",
			want: "ORDER SHIPPED\n\nSoon.",
		},
		{
			name: "doctype ignored",
			in:   Doctype + "<p>Hi</p>",
			want: "Hi",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := PlainText(tt.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

package render

import (
	"errors"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var excessNewlines = regexp.MustCompile(`\n{3,}`)

// PlainText projects HTML markup to readable text. Paragraph-level elements
// are separated by blank lines, list items are bulleted, headings are upper
// cased and links keep their target in brackets. Head, script and style
// content is dropped, and so are images.
func PlainText(markup string) (string, error) {
	z := html.NewTokenizer(strings.NewReader(markup))
	w := &textWriter{}

	skipDepth := 0
	preDepth := 0
	headingDepth := 0
	var links []openLink

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return w.String(), nil
			}
			return "", z.Err()

		case html.TextToken:
			if skipDepth > 0 {
				continue
			}
			text := string(z.Text())
			switch {
			case preDepth > 0:
				w.writeRaw(text)
			case headingDepth > 0:
				w.writeText(strings.ToUpper(text))
			default:
				w.writeText(text)
			}

		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			tag := atom.Lookup(name)
			selfClosing := tt == html.SelfClosingTagToken

			if skipped(tag) {
				if !selfClosing {
					skipDepth++
				}
				continue
			}
			if skipDepth > 0 {
				continue
			}

			switch tag {
			case atom.Br:
				w.breakLine(1)
			case atom.Hr:
				w.breakLine(1)
				w.writeRaw("---")
				w.breakLine(1)
			case atom.Li:
				w.breakLine(1)
				w.writeRaw(" * ")
			case atom.Pre:
				w.breakLine(2)
				if !selfClosing {
					preDepth++
				}
			case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
				w.breakLine(2)
				if !selfClosing {
					headingDepth++
				}
			case atom.A:
				if !selfClosing {
					links = append(links, openLink{href: attr(z, hasAttr, "href"), start: w.Len()})
				}
			default:
				w.breakLine(blockSpacing(tag))
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			tag := atom.Lookup(name)

			if skipped(tag) {
				if skipDepth > 0 {
					skipDepth--
				}
				continue
			}
			if skipDepth > 0 {
				continue
			}

			switch tag {
			case atom.Pre:
				if preDepth > 0 {
					preDepth--
				}
				w.breakLine(2)
			case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
				if headingDepth > 0 {
					headingDepth--
				}
				w.breakLine(2)
			case atom.A:
				if len(links) == 0 {
					continue
				}
				link := links[len(links)-1]
				links = links[:len(links)-1]
				w.closeLink(link)
			default:
				w.breakLine(blockSpacing(tag))
			}
		}
	}
}

type openLink struct {
	href  string
	start int
}

func skipped(tag atom.Atom) bool {
	switch tag {
	case atom.Head, atom.Script, atom.Style, atom.Noscript, atom.Template, atom.Title:
		return true
	}
	return false
}

// blockSpacing is the number of line breaks surrounding an element.
func blockSpacing(tag atom.Atom) int {
	switch tag {
	case atom.P, atom.Table, atom.Ul, atom.Ol, atom.Blockquote, atom.Section, atom.Article,
		atom.Header, atom.Footer:
		return 2
	case atom.Div, atom.Tr, atom.Li, atom.Dl, atom.Dt, atom.Dd, atom.Body, atom.Html:
		return 1
	}
	return 0
}

func attr(z *html.Tokenizer, hasAttr bool, key string) string {
	for hasAttr {
		var k, v []byte
		k, v, hasAttr = z.TagAttr()
		if string(k) == key {
			return string(v)
		}
	}
	return ""
}

// textWriter accumulates text with collapsed whitespace.
type textWriter struct {
	b            strings.Builder
	pendingSpace bool
}

func (w *textWriter) Len() int {
	return w.b.Len()
}

func (w *textWriter) atLineStart() bool {
	s := w.b.String()
	return len(s) == 0 || s[len(s)-1] == '\n' || strings.HasSuffix(s, " * ")
}

func (w *textWriter) writeText(s string) {
	if s == "" {
		return
	}
	if isSpace(s[0]) {
		w.pendingSpace = true
	}
	for _, field := range strings.Fields(s) {
		if w.pendingSpace && !w.atLineStart() {
			w.b.WriteByte(' ')
		}
		w.b.WriteString(field)
		w.pendingSpace = true
	}
	w.pendingSpace = isSpace(s[len(s)-1])
}

func (w *textWriter) writeRaw(s string) {
	w.b.WriteString(s)
	w.pendingSpace = false
}

// breakLine ends the current line so that at least n newlines trail the
// text. Nothing is written at the very start of the output.
func (w *textWriter) breakLine(n int) {
	if n == 0 || w.b.Len() == 0 {
		return
	}
	s := w.b.String()
	trailing := len(s) - len(strings.TrimRight(s, "\n"))
	for ; trailing < n; trailing++ {
		w.b.WriteByte('\n')
	}
	w.pendingSpace = false
}

func (w *textWriter) closeLink(link openLink) {
	if link.href == "" || strings.HasPrefix(link.href, "#") {
		return
	}
	text := strings.TrimSpace(w.b.String()[link.start:])
	if text == link.href || "mailto:"+text == link.href {
		return
	}
	if text != "" {
		w.b.WriteByte(' ')
	}
	w.b.WriteString("[" + link.href + "]")
	w.pendingSpace = false
}

func (w *textWriter) String() string {
	lines := strings.Split(w.b.String(), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	out := excessNewlines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(out)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

// Package msgfile loads message descriptions written in YAML.
//
// A message file looks like:
//
//	from: Billing <billing@example.com>
//	to: [alice@example.com, bob@example.com]
//	subject: Your invoice
//	template: invoice.html
//	data:
//	  Name: Alice
//	attachments:
//	  - file: invoice.pdf
//	  - path: https://example.com/terms.pdf
//	    filename: terms.pdf
//
// Recipient fields accept a single address or a list. Relative template and
// file paths are resolved against the message file's directory.
package msgfile

import (
	"errors"
	"fmt"
	"html/template"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/shineum/resend-lite/render"
	"github.com/shineum/resend-lite/resend"
)

// File is the YAML shape of a message.
type File struct {
	From    string            `yaml:"from"`
	To      recipients        `yaml:"to"`
	Subject string            `yaml:"subject"`
	Cc      recipients        `yaml:"cc"`
	Bcc     recipients        `yaml:"bcc"`
	ReplyTo recipients        `yaml:"reply_to"`
	Headers map[string]string `yaml:"headers"`
	Tags    []resend.Tag      `yaml:"tags"`

	HTML     string         `yaml:"html"`
	Text     string         `yaml:"text"`
	Template string         `yaml:"template"`
	Data     map[string]any `yaml:"data"`

	Attachments []AttachmentFile `yaml:"attachments"`
}

// AttachmentFile is the YAML shape of an attachment. File is a local path
// opened when the message is loaded; Path is a URL passed through to the
// API; Content is already encoded content.
type AttachmentFile struct {
	File         string `yaml:"file"`
	Path         string `yaml:"path"`
	Content      string `yaml:"content"`
	Filename     string `yaml:"filename"`
	OmitFilename bool   `yaml:"omit_filename"`
}

// Message is a loaded message. Close releases the attachment files it
// opened.
type Message struct {
	Request *resend.SendEmailRequest

	files []*os.File
}

// Close closes every opened attachment file.
func (m *Message) Close() error {
	var errs []error
	for _, f := range m.files {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	m.files = nil
	return errors.Join(errs...)
}

// Load reads and parses the message file at path.
func Load(path string) (*Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read message file: %w", err)
	}
	return Parse(data, filepath.Dir(path))
}

// Parse parses a message description. baseDir resolves relative paths.
func Parse(data []byte, baseDir string) (*Message, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse message file: %w", err)
	}

	msg := &Message{
		Request: &resend.SendEmailRequest{
			From:    f.From,
			To:      resend.Recipients(f.To),
			Subject: f.Subject,
			Cc:      resend.Recipients(f.Cc),
			Bcc:     resend.Recipients(f.Bcc),
			ReplyTo: resend.Recipients(f.ReplyTo),
			Headers: f.Headers,
			Tags:    f.Tags,
			HTML:    f.HTML,
			Text:    f.Text,
		},
	}

	if f.Template != "" {
		t, err := template.ParseFiles(resolve(baseDir, f.Template))
		if err != nil {
			return nil, fmt.Errorf("failed to load template: %w", err)
		}
		msg.Request.Component = render.Template(t, f.Data)
	}

	for i, a := range f.Attachments {
		att, err := msg.attachment(baseDir, a)
		if err != nil {
			msg.Close()
			return nil, fmt.Errorf("attachment %d: %w", i, err)
		}
		msg.Request.Attachments = append(msg.Request.Attachments, att)
	}

	return msg, nil
}

func (m *Message) attachment(baseDir string, a AttachmentFile) (resend.Attachment, error) {
	att := resend.Attachment{
		Path:         a.Path,
		Filename:     a.Filename,
		OmitFilename: a.OmitFilename,
	}
	if a.Content != "" {
		att.Content = resend.ContentString(a.Content)
	}

	if a.File != "" {
		fh, err := os.Open(resolve(baseDir, a.File))
		if err != nil {
			return resend.Attachment{}, fmt.Errorf("failed to open attachment: %w", err)
		}
		m.files = append(m.files, fh)
		att.File = fh
	}

	return att, nil
}

func resolve(baseDir, p string) string {
	if filepath.IsAbs(p) || baseDir == "" {
		return p
	}
	return filepath.Join(baseDir, p)
}

// recipients accepts a YAML scalar or a sequence of scalars.
type recipients []string

func (r *recipients) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var single string
		if err := node.Decode(&single); err != nil {
			return err
		}
		if single != "" {
			*r = recipients{single}
		}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*r = list
		return nil
	}
	return fmt.Errorf("line %d: recipients must be an address or a list of addresses", node.Line)
}

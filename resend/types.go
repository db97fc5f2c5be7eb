package resend

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// SendEmailRequest describes a message to submit. Exactly one body form is
// expected: Component on its own, or HTML and/or Text.
type SendEmailRequest struct {
	From    string
	To      Recipients
	Subject string

	Cc      Recipients
	Bcc     Recipients
	ReplyTo Recipients

	// Headers are custom email headers. They are sent in the payload and
	// also applied to the outbound HTTP request after the default headers.
	Headers map[string]string

	Tags        []Tag
	Attachments []Attachment

	// Component is rendered to HTML and plain text by the configured
	// Renderer. It cannot be combined with HTML or Text.
	Component any
	HTML      string
	Text      string
}

// Tag is a name/value pair attached to a message. Both fields may only
// contain ASCII letters, digits, underscores and dashes, up to 256
// characters.
type Tag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Recipients is a list of addresses. A single address is encoded as a JSON
// string, several as a JSON array.
type Recipients []string

// MarshalJSON implements json.Marshaler.
func (r Recipients) MarshalJSON() ([]byte, error) {
	if len(r) == 1 {
		return json.Marshal(r[0])
	}
	return json.Marshal([]string(r))
}

// UnmarshalJSON accepts either a JSON string or an array of strings.
func (r *Recipients) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var single string
		if err := json.Unmarshal(data, &single); err != nil {
			return err
		}
		*r = Recipients{single}
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("recipients must be a string or an array of strings: %w", err)
	}
	*r = list
	return nil
}

// Payload is the normalized wire form of a SendEmailRequest. It is built by
// Normalize and never shares mutable state with the request it came from.
type Payload struct {
	From        string              `json:"from"`
	To          Recipients          `json:"to"`
	Subject     string              `json:"subject"`
	Bcc         Recipients          `json:"bcc,omitempty"`
	Cc          Recipients          `json:"cc,omitempty"`
	ReplyTo     Recipients          `json:"reply_to,omitempty"`
	Headers     map[string]string   `json:"headers,omitempty"`
	Tags        []Tag               `json:"tags,omitempty"`
	Attachments []PayloadAttachment `json:"attachments,omitempty"`
	HTML        string              `json:"html,omitempty"`
	Text        string              `json:"text,omitempty"`
}

// PayloadAttachment is a normalized attachment. Content is always text:
// either the caller's string unchanged or base64 of the materialized bytes.
type PayloadAttachment struct {
	Content      string
	Path         string
	Filename     string
	OmitFilename bool
}

// MarshalJSON implements json.Marshaler. A suppressed filename is encoded as
// false.
func (a PayloadAttachment) MarshalJSON() ([]byte, error) {
	type wire struct {
		Content  *string `json:"content,omitempty"`
		Filename any     `json:"filename,omitempty"`
		Path     string  `json:"path,omitempty"`
	}

	w := wire{Path: a.Path}
	if a.Path == "" {
		content := a.Content
		w.Content = &content
	}
	switch {
	case a.OmitFilename:
		w.Filename = false
	case a.Filename != "":
		w.Filename = a.Filename
	}
	return json.Marshal(w)
}

// encode serializes the payload without HTML escaping so bodies travel as
// written.
func (p *Payload) encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// SendEmailResponse is the decoded response body. ID is set when the email
// was accepted. StatusCode, Name and Message carry the remote service's error
// shape when it reports a failure; the client does not inspect them.
type SendEmailResponse struct {
	ID string `json:"id"`

	StatusCode int    `json:"statusCode,omitempty"`
	Name       string `json:"name,omitempty"`
	Message    string `json:"message,omitempty"`

	// HTTPStatus is the status code of the HTTP response.
	HTTPStatus int `json:"-"`
	// Raw is the response body exactly as received.
	Raw json.RawMessage `json:"-"`
}

// Err reports the remote service's error as a *RemoteError, or nil when the
// response does not carry one. A response without an id and with an HTTP
// status of 400 or above is an error even when its body has no error fields.
func (r *SendEmailResponse) Err() error {
	if r == nil {
		return nil
	}
	failed := r.Name != "" || (r.ID == "" && (r.Message != "" || r.HTTPStatus >= 400))
	if !failed {
		return nil
	}

	status := r.StatusCode
	if status == 0 {
		status = r.HTTPStatus
	}
	return &RemoteError{
		StatusCode: status,
		Name:       r.Name,
		Message:    r.Message,
	}
}

package ses

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"

	"github.com/shineum/resend-lite/resend"
)

// mockSESClient implements SendEmailAPI for testing.
type mockSESClient struct {
	sendFn    func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
	callCount int
	lastInput *sesv2.SendEmailInput
}

func (m *mockSESClient) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	m.callCount++
	m.lastInput = params
	if m.sendFn != nil {
		return m.sendFn(ctx, params, optFns...)
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("test-message-id")}, nil
}

func TestName(t *testing.T) {
	t.Parallel()
	p := NewWithClient("", &mockSESClient{})
	if got := p.Name(); got != "ses" {
		t.Errorf("Name(): got %q, want %q", got, "ses")
	}
}

func TestSend_SimpleTextEmail(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	p := NewWithClient("", mock)

	resp, err := p.Send(context.Background(), &resend.Payload{
		From:    "sender@example.com",
		To:      resend.Recipients{"to@example.com"},
		Subject: "Test Subject",
		Text:    "Hello, World!",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.ID != "test-message-id" {
		t.Errorf("ID: got %q, want %q", resp.ID, "test-message-id")
	}
	if mock.callCount != 1 {
		t.Errorf("call count: got %d, want 1", mock.callCount)
	}

	input := mock.lastInput
	if input.Content.Simple == nil {
		t.Fatal("expected simple email content, got nil")
	}
	if got := *input.FromEmailAddress; got != "sender@example.com" {
		t.Errorf("FromEmailAddress: got %q, want %q", got, "sender@example.com")
	}
	if got := *input.Content.Simple.Subject.Data; got != "Test Subject" {
		t.Errorf("Subject: got %q, want %q", got, "Test Subject")
	}
	if got := *input.Content.Simple.Body.Text.Data; got != "Hello, World!" {
		t.Errorf("Text: got %q, want %q", got, "Hello, World!")
	}
	if input.Content.Simple.Body.Html != nil {
		t.Error("expected no HTML body")
	}
	if input.ConfigurationSetName != nil {
		t.Errorf("ConfigurationSetName: got %q, want nil", *input.ConfigurationSetName)
	}
}

func TestSend_RecipientsTagsAndConfigurationSet(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	p := NewWithClient("transactional", mock)

	_, err := p.Send(context.Background(), &resend.Payload{
		From:    "sender@example.com",
		To:      resend.Recipients{"to1@example.com", "to2@example.com"},
		Cc:      resend.Recipients{"cc@example.com"},
		Bcc:     resend.Recipients{"bcc@example.com"},
		ReplyTo: resend.Recipients{"support@example.com"},
		Subject: "Multi-recipient",
		HTML:    "<p>Hello</p>",
		Tags:    []resend.Tag{{Name: "category", Value: "receipt"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	input := mock.lastInput
	dest := input.Destination
	if len(dest.ToAddresses) != 2 {
		t.Errorf("ToAddresses: got %d, want 2", len(dest.ToAddresses))
	}
	if len(dest.CcAddresses) != 1 {
		t.Errorf("CcAddresses: got %d, want 1", len(dest.CcAddresses))
	}
	if len(dest.BccAddresses) != 1 {
		t.Errorf("BccAddresses: got %d, want 1", len(dest.BccAddresses))
	}
	if len(input.ReplyToAddresses) != 1 || input.ReplyToAddresses[0] != "support@example.com" {
		t.Errorf("ReplyToAddresses: got %v", input.ReplyToAddresses)
	}
	if len(input.EmailTags) != 1 || aws.ToString(input.EmailTags[0].Name) != "category" || aws.ToString(input.EmailTags[0].Value) != "receipt" {
		t.Errorf("EmailTags: got %+v", input.EmailTags)
	}
	if aws.ToString(input.ConfigurationSetName) != "transactional" {
		t.Errorf("ConfigurationSetName: got %q, want %q", aws.ToString(input.ConfigurationSetName), "transactional")
	}
}

func TestSend_WithAttachments(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	p := NewWithClient("", mock)

	_, err := p.Send(context.Background(), &resend.Payload{
		From:    "sender@example.com",
		To:      resend.Recipients{"to@example.com"},
		Subject: "With Attachment",
		HTML:    "<p>See attachment</p>",
		Text:    "See attachment",
		Headers: map[string]string{"x-entity-ref-id": "42"},
		Attachments: []resend.PayloadAttachment{
			{Content: "aGVsbG8gd29ybGQ=", Filename: "hello.txt"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	input := mock.lastInput
	if input.Content.Raw == nil {
		t.Fatal("expected raw content for email with attachments")
	}

	msg, err := mail.ReadMessage(bytes.NewReader(input.Content.Raw.Data))
	if err != nil {
		t.Fatalf("raw message does not parse: %v", err)
	}
	if got := msg.Header.Get("X-Entity-Ref-Id"); got != "42" {
		t.Errorf("custom header: got %q, want %q", got, "42")
	}
	if got := msg.Header.Get("From"); got != "sender@example.com" {
		t.Errorf("From: got %q", got)
	}

	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/mixed" {
		t.Fatalf("Content-Type: got %q (%v)", mediaType, err)
	}

	mr := multipart.NewReader(msg.Body, params["boundary"])

	body, err := mr.NextPart()
	if err != nil {
		t.Fatalf("body part: %v", err)
	}
	if !strings.HasPrefix(body.Header.Get("Content-Type"), "multipart/alternative") {
		t.Errorf("body part Content-Type: got %q", body.Header.Get("Content-Type"))
	}

	att, err := mr.NextPart()
	if err != nil {
		t.Fatalf("attachment part: %v", err)
	}
	if got := att.Header.Get("Content-Type"); !strings.HasPrefix(got, "text/plain") {
		t.Errorf("attachment Content-Type: got %q", got)
	}
	if got := att.FileName(); got != "hello.txt" {
		t.Errorf("attachment filename: got %q, want %q", got, "hello.txt")
	}
	encoded, _ := io.ReadAll(att)
	if string(encoded) != "aGVsbG8gd29ybGQ=" {
		t.Errorf("attachment content: got %q", encoded)
	}
}

func TestSend_PathAttachmentRejected(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	p := NewWithClient("", mock)

	_, err := p.Send(context.Background(), &resend.Payload{
		From:        "sender@example.com",
		To:          resend.Recipients{"to@example.com"},
		Subject:     "Hosted",
		Text:        "x",
		Attachments: []resend.PayloadAttachment{{Path: "https://example.com/a.pdf"}},
	})
	if !errors.Is(err, ErrPathAttachment) {
		t.Fatalf("expected ErrPathAttachment, got %v", err)
	}
	if mock.callCount != 0 {
		t.Errorf("call count: got %d, want 0", mock.callCount)
	}
}

func TestSend_InvalidHeadersRejected(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		headers map[string]string
		to      string
	}{
		{name: "line break in value", headers: map[string]string{"X-Ref": "1\r\nBcc: evil@attacker.example"}},
		{name: "bare newline in value", headers: map[string]string{"X-Ref": "1\nBcc: evil@attacker.example"}},
		{name: "content type", headers: map[string]string{"Content-Type": "text/plain"}},
		{name: "mime version lower case", headers: map[string]string{"mime-version": "2.0"}},
		{name: "bcc", headers: map[string]string{"Bcc": "hidden@example.com"}},
		{name: "colon in name", headers: map[string]string{"X-A: b": "c"}},
		{name: "line break in address", headers: map[string]string{"X-Ok": "1"}, to: "to@example.com\r\nBcc: evil@attacker.example"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			to := tt.to
			if to == "" {
				to = "to@example.com"
			}
			mock := &mockSESClient{}
			p := NewWithClient("", mock)

			_, err := p.Send(context.Background(), &resend.Payload{
				From:    "sender@example.com",
				To:      resend.Recipients{to},
				Subject: "Headers",
				Text:    "x",
				Headers: tt.headers,
			})
			if !errors.Is(err, ErrInvalidHeader) {
				t.Fatalf("expected ErrInvalidHeader, got %v", err)
			}
			if mock.callCount != 0 {
				t.Errorf("call count: got %d, want 0", mock.callCount)
			}
		})
	}
}

func TestBuildRawMessage_CustomHeaderStaysOnOneLine(t *testing.T) {
	t.Parallel()

	raw, err := buildRawMessage(&resend.Payload{
		From:    "sender@example.com",
		To:      resend.Recipients{"to@example.com"},
		Subject: "Headers",
		Text:    "x",
		Headers: map[string]string{"x-entity-ref-id": "inv-42"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("failed to parse raw message: %v", err)
	}
	if got := msg.Header.Get("X-Entity-Ref-Id"); got != "inv-42" {
		t.Errorf("X-Entity-Ref-Id: got %q, want %q", got, "inv-42")
	}
	if got := msg.Header.Get("Bcc"); got != "" {
		t.Errorf("Bcc: got %q, want none", got)
	}
	if got := len(msg.Header["Content-Type"]); got != 1 {
		t.Errorf("Content-Type headers: got %d, want 1", got)
	}
}

func TestSend_APIError(t *testing.T) {
	t.Parallel()

	apiErr := errors.New("MessageRejected: Email address is not verified")
	mock := &mockSESClient{
		sendFn: func(context.Context, *sesv2.SendEmailInput, ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
			return nil, apiErr
		},
	}
	p := NewWithClient("", mock)

	_, err := p.Send(context.Background(), &resend.Payload{
		From: "sender@example.com", To: resend.Recipients{"to@example.com"}, Subject: "x", Text: "x",
	})
	if !errors.Is(err, apiErr) {
		t.Errorf("expected wrapped API error, got %v", err)
	}
	if mock.callCount != 1 {
		t.Errorf("call count: got %d, want 1 (no retries)", mock.callCount)
	}
}

func TestBuildRawMessage_SingleBodyAndNonBase64(t *testing.T) {
	t.Parallel()

	raw, err := buildRawMessage(&resend.Payload{
		From:        "sender@example.com",
		To:          resend.Recipients{"to@example.com"},
		Subject:     "Grüße",
		Text:        "plain only",
		Attachments: []resend.PayloadAttachment{{Content: "AAAA", OmitFilename: true}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := string(raw)
	if !strings.Contains(s, "Subject: =?UTF-8?q?") {
		t.Errorf("non-ASCII subject should be Q-encoded:\n%s", s)
	}
	if !strings.Contains(s, "Content-Type: text/plain; charset=UTF-8") {
		t.Errorf("missing text body part:\n%s", s)
	}
	if !strings.Contains(s, "Content-Type: application/octet-stream") {
		t.Errorf("unnamed attachment should default to octet-stream:\n%s", s)
	}

	_, err = buildRawMessage(&resend.Payload{
		From: "a@x.com", To: resend.Recipients{"b@x.com"}, Subject: "x", Text: "x",
		Attachments: []resend.PayloadAttachment{{Content: "not base64!", Filename: "a.txt"}},
	})
	if err == nil {
		t.Error("expected error for non-base64 content")
	}
}

func TestEncodeBase64WithLineBreaks(t *testing.T) {
	t.Parallel()

	data := bytes.Repeat([]byte("a"), 100)
	encoded := encodeBase64WithLineBreaks(data)

	lines := strings.Split(encoded, "\r\n")
	if len(lines) != 2 {
		t.Fatalf("lines: got %d, want 2", len(lines))
	}
	if len(lines[0]) != 76 {
		t.Errorf("first line length: got %d, want 76", len(lines[0]))
	}
}

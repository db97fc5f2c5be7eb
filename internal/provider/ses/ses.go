// Package ses implements a Provider that sends normalized payloads via AWS
// SES v2.
package ses

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/textproto"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/shineum/resend-lite/resend"
)

// ErrPathAttachment is returned for attachments that reference a URL. SES
// only accepts inline content.
var ErrPathAttachment = errors.New("ses: path attachments are not supported")

// ErrInvalidHeader is returned for custom headers that would break the raw
// message: line breaks in a name or value, or a name the message itself sets.
var ErrInvalidHeader = errors.New("ses: invalid custom header")

// reservedHeaders are written by buildRawMessage and cannot be overridden.
var reservedHeaders = map[string]bool{
	"From":                      true,
	"To":                        true,
	"Cc":                        true,
	"Bcc":                       true,
	"Reply-To":                  true,
	"Subject":                   true,
	"Mime-Version":              true,
	"Content-Type":              true,
	"Content-Transfer-Encoding": true,
}

// Config holds the configuration for creating a Provider.
type Config struct {
	Region           string
	AccessKeyID      string
	SecretAccessKey  string
	ConfigurationSet string
}

// Provider sends emails via the AWS SES v2 API.
type Provider struct {
	configurationSet string
	client           SendEmailAPI
}

// SendEmailAPI is the interface for the SES v2 SendEmail operation.
// Used for testing with mock implementations.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// New creates a new Provider with the given configuration. Without static
// keys the default AWS credential chain is used.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	var opts []func(*awsconfig.LoadOptions) error

	opts = append(opts, awsconfig.WithRegion(cfg.Region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Provider{
		configurationSet: cfg.ConfigurationSet,
		client:           sesv2.NewFromConfig(awsCfg),
	}, nil
}

// NewWithClient creates a Provider with a custom client, used for testing.
func NewWithClient(configurationSet string, client SendEmailAPI) *Provider {
	return &Provider{
		configurationSet: configurationSet,
		client:           client,
	}
}

// Send delivers a payload via AWS SES v2. Payloads with attachments or
// custom headers go out as a raw MIME message; everything else uses the
// SES simple format. The SES message id is returned as the response id.
func (p *Provider) Send(ctx context.Context, msg *resend.Payload) (*resend.SendEmailResponse, error) {
	var input *sesv2.SendEmailInput

	if len(msg.Attachments) > 0 || len(msg.Headers) > 0 {
		raw, err := buildRawMessage(msg)
		if err != nil {
			return nil, fmt.Errorf("failed to build raw message: %w", err)
		}
		input = &sesv2.SendEmailInput{
			Content: &types.EmailContent{
				Raw: &types.RawMessage{
					Data: raw,
				},
			},
		}
	} else {
		input = buildSimpleInput(msg)
	}

	input.Destination = &types.Destination{
		ToAddresses:  msg.To,
		CcAddresses:  msg.Cc,
		BccAddresses: msg.Bcc,
	}
	input.ReplyToAddresses = msg.ReplyTo
	input.EmailTags = buildTags(msg.Tags)
	if p.configurationSet != "" {
		input.ConfigurationSetName = aws.String(p.configurationSet)
	}

	out, err := p.client.SendEmail(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("SES API request failed: %w", err)
	}

	id := aws.ToString(out.MessageId)
	slog.DebugContext(ctx, "SES accepted message", "message_id", id)

	return &resend.SendEmailResponse{ID: id}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "ses"
}

// buildSimpleInput creates a SES SendEmailInput for plain messages.
func buildSimpleInput(msg *resend.Payload) *sesv2.SendEmailInput {
	body := &types.Body{}

	if msg.HTML != "" {
		body.Html = &types.Content{
			Data:    aws.String(msg.HTML),
			Charset: aws.String("UTF-8"),
		}
	}
	if msg.Text != "" {
		body.Text = &types.Content{
			Data:    aws.String(msg.Text),
			Charset: aws.String("UTF-8"),
		}
	}

	return &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From),
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(msg.Subject),
					Charset: aws.String("UTF-8"),
				},
				Body: body,
			},
		},
	}
}

func buildTags(tags []resend.Tag) []types.MessageTag {
	if len(tags) == 0 {
		return nil
	}
	out := make([]types.MessageTag, 0, len(tags))
	for _, tag := range tags {
		out = append(out, types.MessageTag{
			Name:  aws.String(tag.Name),
			Value: aws.String(tag.Value),
		})
	}
	return out
}

// buildRawMessage constructs a multipart/mixed MIME message. When both
// bodies are present they are nested in a multipart/alternative part.
func buildRawMessage(msg *resend.Payload) ([]byte, error) {
	if err := checkHeaders(msg); err != nil {
		return nil, err
	}

	var buf bytes.Buffer

	// Write headers
	fmt.Fprintf(&buf, "From: %s\r\n", msg.From)
	if len(msg.To) > 0 {
		fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(msg.To, ", "))
	}
	if len(msg.Cc) > 0 {
		fmt.Fprintf(&buf, "Cc: %s\r\n", strings.Join(msg.Cc, ", "))
	}
	if len(msg.ReplyTo) > 0 {
		fmt.Fprintf(&buf, "Reply-To: %s\r\n", strings.Join(msg.ReplyTo, ", "))
	}
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("UTF-8", msg.Subject))
	for _, key := range sortedKeys(msg.Headers) {
		fmt.Fprintf(&buf, "%s: %s\r\n", textproto.CanonicalMIMEHeaderKey(key), msg.Headers[key])
	}
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")

	writer := multipart.NewWriter(&buf)
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", writer.Boundary())

	if err := writeBody(writer, msg); err != nil {
		return nil, err
	}

	// Write attachments
	for i, att := range msg.Attachments {
		if att.Path != "" {
			return nil, fmt.Errorf("attachment %d: %w", i, ErrPathAttachment)
		}
		data, err := base64.StdEncoding.DecodeString(att.Content)
		if err != nil {
			return nil, fmt.Errorf("attachment %d: content is not base64: %w", i, err)
		}

		filename := att.Filename
		if att.OmitFilename {
			filename = ""
		}

		attHeader := make(textproto.MIMEHeader)
		attHeader.Set("Content-Type", contentType(filename))
		attHeader.Set("Content-Transfer-Encoding", "base64")
		if filename != "" {
			attHeader.Set("Content-Disposition",
				fmt.Sprintf("attachment; filename=%s", mime.QEncoding.Encode("UTF-8", filename)))
		} else {
			attHeader.Set("Content-Disposition", "attachment")
		}

		part, err := writer.CreatePart(attHeader)
		if err != nil {
			return nil, fmt.Errorf("failed to create attachment part: %w", err)
		}
		part.Write([]byte(encodeBase64WithLineBreaks(data)))
	}

	writer.Close()
	return buf.Bytes(), nil
}

func writeBody(writer *multipart.Writer, msg *resend.Payload) error {
	if msg.HTML == "" || msg.Text == "" {
		bodyHeader := make(textproto.MIMEHeader)
		content := msg.Text
		bodyHeader.Set("Content-Type", "text/plain; charset=UTF-8")
		if msg.HTML != "" {
			content = msg.HTML
			bodyHeader.Set("Content-Type", "text/html; charset=UTF-8")
		}
		part, err := writer.CreatePart(bodyHeader)
		if err != nil {
			return fmt.Errorf("failed to create body part: %w", err)
		}
		part.Write([]byte(content))
		return nil
	}

	var alt bytes.Buffer
	altWriter := multipart.NewWriter(&alt)
	for _, body := range []struct{ contentType, content string }{
		{"text/plain; charset=UTF-8", msg.Text},
		{"text/html; charset=UTF-8", msg.HTML},
	} {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Type", body.contentType)
		part, err := altWriter.CreatePart(h)
		if err != nil {
			return fmt.Errorf("failed to create body part: %w", err)
		}
		part.Write([]byte(body.content))
	}
	altWriter.Close()

	altHeader := make(textproto.MIMEHeader)
	altHeader.Set("Content-Type", fmt.Sprintf("multipart/alternative; boundary=%q", altWriter.Boundary()))
	part, err := writer.CreatePart(altHeader)
	if err != nil {
		return fmt.Errorf("failed to create alternative part: %w", err)
	}
	part.Write(alt.Bytes())
	return nil
}

// checkHeaders rejects custom headers and addresses that cannot be written
// verbatim into the header block.
func checkHeaders(msg *resend.Payload) error {
	for _, key := range sortedKeys(msg.Headers) {
		canonical := textproto.CanonicalMIMEHeaderKey(key)
		switch {
		case key == "" || strings.ContainsAny(key, "\r\n: \t"):
			return fmt.Errorf("%w: name %q", ErrInvalidHeader, key)
		case reservedHeaders[canonical]:
			return fmt.Errorf("%w: %s is set by the message", ErrInvalidHeader, canonical)
		case strings.ContainsAny(msg.Headers[key], "\r\n"):
			return fmt.Errorf("%w: %s contains a line break", ErrInvalidHeader, canonical)
		}
	}

	addresses := append([]string{msg.From}, msg.To...)
	addresses = append(addresses, msg.Cc...)
	addresses = append(addresses, msg.ReplyTo...)
	for _, addr := range addresses {
		if strings.ContainsAny(addr, "\r\n") {
			return fmt.Errorf("%w: address %q contains a line break", ErrInvalidHeader, addr)
		}
	}
	return nil
}

func contentType(filename string) string {
	if ct := mime.TypeByExtension(filepath.Ext(filename)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// encodeBase64WithLineBreaks encodes bytes to base64 with 76-character line breaks per RFC 2045.
func encodeBase64WithLineBreaks(data []byte) string {
	encoded := base64.StdEncoding.EncodeToString(data)
	var lines []string
	for i := 0; i < len(encoded); i += 76 {
		end := min(i+76, len(encoded))
		lines = append(lines, encoded[i:end])
	}
	return strings.Join(lines, "\r\n")
}

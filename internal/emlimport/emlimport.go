// Package emlimport converts RFC 5322 messages (.eml files) into send
// requests, with MIME multipart and charset support.
package emlimport

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"

	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"

	"github.com/shineum/resend-lite/resend"
)

var wordDecoder = &mime.WordDecoder{CharsetReader: charsetReader}

// Parse parses a raw RFC 5322 message into a send request. Text and HTML
// bodies are decoded to UTF-8, attachments become in-memory content and
// X- headers are carried over as custom headers. Unrecognized MIME parts
// are logged as warnings and skipped.
func Parse(raw []byte) (*resend.SendEmailRequest, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	req := &resend.SendEmailRequest{
		From:    decodeHeader(msg.Header.Get("From")),
		Subject: decodeHeader(msg.Header.Get("Subject")),
		To:      parseAddressList(msg.Header.Get("To")),
		Cc:      parseAddressList(msg.Header.Get("Cc")),
		Bcc:     parseAddressList(msg.Header.Get("Bcc")),
		ReplyTo: parseAddressList(msg.Header.Get("Reply-To")),
		Headers: customHeaders(msg.Header),
	}

	contentType := msg.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}
	encoding := msg.Header.Get("Content-Transfer-Encoding")

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		// If content type is unparseable, treat as plain text
		slog.Warn("failed to parse content type, treating as plain text",
			"content_type", contentType,
			"error", err,
		)
		body, readErr := readContent(msg.Body, encoding)
		if readErr != nil {
			return nil, fmt.Errorf("failed to read message body: %w", readErr)
		}
		req.Text = string(body)
		return req, nil
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return nil, fmt.Errorf("multipart message missing boundary")
		}
		if err := parseMultipart(msg.Body, boundary, req); err != nil {
			return nil, fmt.Errorf("failed to parse multipart message: %w", err)
		}
		return req, nil
	}

	body, err := readContent(msg.Body, encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to read message body: %w", err)
	}
	switch mediaType {
	case "text/plain":
		req.Text = decodeCharset(body, params["charset"])
	case "text/html":
		req.HTML = decodeCharset(body, params["charset"])
	default:
		slog.Warn("unrecognized top-level content type",
			"content_type", mediaType,
		)
		req.Text = string(body)
	}

	return req, nil
}

// parseMultipart processes a multipart MIME body, extracting text/plain and
// text/html parts and attachments.
func parseMultipart(body io.Reader, boundary string, req *resend.SendEmailRequest) error {
	reader := multipart.NewReader(body, boundary)

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read next part: %w", err)
		}

		partContentType := part.Header.Get("Content-Type")
		if partContentType == "" {
			partContentType = "text/plain"
		}

		mediaType, params, err := mime.ParseMediaType(partContentType)
		if err != nil {
			slog.Warn("failed to parse part content type, skipping",
				"content_type", partContentType,
				"error", err,
			)
			continue
		}

		contentDisposition := part.Header.Get("Content-Disposition")
		isAttachment := strings.HasPrefix(strings.ToLower(contentDisposition), "attachment")

		// Check for nested multipart
		if strings.HasPrefix(mediaType, "multipart/") {
			nestedBoundary := params["boundary"]
			if nestedBoundary == "" {
				slog.Warn("nested multipart missing boundary, skipping")
				continue
			}
			if err := parseMultipart(part, nestedBoundary, req); err != nil {
				slog.Warn("failed to parse nested multipart",
					"error", err,
				)
			}
			continue
		}

		// multipart.Reader already strips quoted-printable
		content, err := readContent(part, part.Header.Get("Content-Transfer-Encoding"))
		if err != nil {
			slog.Warn("failed to read part content",
				"content_type", mediaType,
				"error", err,
			)
			continue
		}

		if isAttachment {
			req.Attachments = append(req.Attachments,
				resend.AttachBytes(extractFilename(part, params), content))
			continue
		}

		switch mediaType {
		case "text/plain":
			if req.Text == "" {
				req.Text = decodeCharset(content, params["charset"])
			}
		case "text/html":
			if req.HTML == "" {
				req.HTML = decodeCharset(content, params["charset"])
			}
		default:
			// Inline parts with a name are still attachments
			if filename := namedFile(part, params); filename != "" {
				req.Attachments = append(req.Attachments, resend.AttachBytes(filename, content))
			} else {
				slog.Warn("unrecognized MIME part, skipping",
					"content_type", mediaType,
					"disposition", contentDisposition,
				)
			}
		}
	}

	return nil
}

// readContent reads r to the end and undoes its Content-Transfer-Encoding.
func readContent(r io.Reader, encoding string) ([]byte, error) {
	encoding = strings.ToLower(strings.TrimSpace(encoding))
	if encoding == "quoted-printable" {
		r = quotedprintable.NewReader(r)
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	if encoding != "base64" {
		return raw, nil
	}

	cleaned := strings.NewReplacer("\r", "", "\n", "", " ", "").Replace(string(raw))
	decoded, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		// Try with RawStdEncoding for unpadded base64
		decoded, err = base64.RawStdEncoding.DecodeString(cleaned)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 content: %w", err)
		}
	}
	return decoded, nil
}

// decodeCharset converts body from the named charset to UTF-8. Unknown
// charsets and undecodable input are returned unchanged.
func decodeCharset(body []byte, charset string) string {
	charset = strings.ToLower(strings.TrimSpace(charset))
	if charset == "" || charset == "utf-8" || charset == "us-ascii" {
		return string(body)
	}

	enc, err := ianaindex.MIME.Encoding(charset)
	if err != nil || enc == nil {
		slog.Warn("unsupported charset, using body as is", "charset", charset)
		return string(body)
	}

	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		slog.Warn("failed to decode body charset", "charset", charset, "error", err)
		return string(body)
	}
	return string(decoded)
}

func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	enc, err := ianaindex.MIME.Encoding(strings.ToLower(charset))
	if err != nil || enc == nil {
		return nil, fmt.Errorf("unsupported charset %q", charset)
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}

// decodeHeader decodes RFC 2047 encoded words. Undecodable values are
// returned unchanged.
func decodeHeader(v string) string {
	decoded, err := wordDecoder.DecodeHeader(v)
	if err != nil {
		return v
	}
	return decoded
}

// customHeaders returns the X- headers of a message, first value each.
func customHeaders(h mail.Header) map[string]string {
	var out map[string]string
	for key, values := range h {
		if !strings.HasPrefix(strings.ToLower(key), "x-") || len(values) == 0 {
			continue
		}
		if out == nil {
			out = make(map[string]string)
		}
		out[key] = decodeHeader(values[0])
	}
	return out
}

// namedFile returns the filename of a part from Content-Disposition or the
// Content-Type name parameter, or "".
func namedFile(part *multipart.Part, params map[string]string) string {
	if fn := part.FileName(); fn != "" {
		return fn
	}
	if name := params["name"]; name != "" {
		return decodeHeader(name)
	}
	return ""
}

// extractFilename is namedFile with a fallback derived from the media type.
func extractFilename(part *multipart.Part, params map[string]string) string {
	if fn := namedFile(part, params); fn != "" {
		return fn
	}
	if mediaType, _, err := mime.ParseMediaType(part.Header.Get("Content-Type")); err == nil {
		parts := strings.SplitN(mediaType, "/", 2)
		if len(parts) == 2 {
			return "attachment." + parts[1]
		}
	}
	return "attachment"
}

// parseAddressList splits an address list header into addresses. Display
// names are kept in "Name <addr>" form.
func parseAddressList(raw string) resend.Recipients {
	if raw == "" {
		return nil
	}

	addresses, err := (&mail.AddressParser{WordDecoder: wordDecoder}).ParseList(raw)
	if err != nil {
		// Fall back to simple comma split if RFC 5322 parsing fails
		parts := strings.Split(raw, ",")
		result := make(resend.Recipients, 0, len(parts))
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}

	result := make(resend.Recipients, 0, len(addresses))
	for _, addr := range addresses {
		if addr.Name == "" {
			result = append(result, addr.Address)
			continue
		}
		result = append(result, fmt.Sprintf("%s <%s>", addr.Name, addr.Address))
	}
	return result
}

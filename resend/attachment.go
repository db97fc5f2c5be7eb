package resend

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"io/fs"

	"golang.org/x/sync/errgroup"
)

// Attachment is a file attached to a message. Set File, or exactly one of
// Content and Path.
type Attachment struct {
	// File is an open file handle. Its content is read during normalization
	// and its name is used as the filename unless Filename is set. The
	// caller keeps ownership of the handle.
	File fs.File

	Content Content
	// Path is a URL the API fetches the attachment from.
	Path string

	Filename string
	// OmitFilename sends an explicit false filename.
	OmitFilename bool
}

// AttachFile returns an attachment read from f.
func AttachFile(f fs.File) Attachment {
	return Attachment{File: f}
}

// AttachBytes returns an attachment with in-memory content.
func AttachBytes(filename string, data []byte) Attachment {
	return Attachment{Content: ContentBytes(data), Filename: filename}
}

// AttachPath returns an attachment hosted at path.
func AttachPath(filename, path string) Attachment {
	return Attachment{Path: path, Filename: filename}
}

// Content is the body of an attachment. The set of implementations is
// closed: ContentString, ContentBytes and ContentReader.
type Content interface {
	encode(ctx context.Context) (string, error)
}

// ContentString is attachment content that is already encoded for the wire
// (normally base64). It is sent unchanged.
type ContentString string

func (c ContentString) encode(context.Context) (string, error) {
	return string(c), nil
}

// ContentBytes is raw attachment content, sent base64-encoded.
type ContentBytes []byte

func (c ContentBytes) encode(context.Context) (string, error) {
	return base64.StdEncoding.EncodeToString(c), nil
}

// ContentReader is attachment content read to the end during normalization,
// then sent base64-encoded.
type ContentReader struct {
	Reader io.Reader
}

func (c ContentReader) encode(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if c.Reader == nil {
		return "", fmt.Errorf("content reader is nil")
	}
	data, err := io.ReadAll(c.Reader)
	if err != nil {
		return "", err
	}
	return ContentBytes(data).encode(ctx)
}

func validateAttachment(index int, a Attachment) error {
	hasContent := a.Content != nil
	hasPath := a.Path != ""

	if a.File != nil {
		if hasContent || hasPath {
			return invalidAt("attachments", index, "a file handle cannot be combined with content or path")
		}
		return nil
	}

	switch {
	case hasContent && hasPath:
		return invalidAt("attachments", index, "content and path are mutually exclusive")
	case !hasContent && !hasPath:
		return invalidAt("attachments", index, "one of content or path is required")
	}
	return nil
}

// normalizeAttachments materializes every attachment concurrently. The
// output has the same order as the input.
func normalizeAttachments(ctx context.Context, in []Attachment) ([]PayloadAttachment, error) {
	if len(in) == 0 {
		return nil, nil
	}

	out := make([]PayloadAttachment, len(in))
	g, gctx := errgroup.WithContext(ctx)
	for i := range in {
		g.Go(func() error {
			normalized, err := normalizeAttachment(gctx, in[i])
			if err != nil {
				return fmt.Errorf("attachment %d: %w", i, err)
			}
			out[i] = normalized
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func normalizeAttachment(ctx context.Context, a Attachment) (PayloadAttachment, error) {
	out := PayloadAttachment{
		Filename:     a.Filename,
		OmitFilename: a.OmitFilename,
	}

	switch {
	case a.File != nil:
		info, err := a.File.Stat()
		if err != nil {
			return PayloadAttachment{}, fmt.Errorf("stat file: %w", err)
		}
		content, err := ContentReader{Reader: a.File}.encode(ctx)
		if err != nil {
			return PayloadAttachment{}, fmt.Errorf("read file %s: %w", info.Name(), err)
		}
		out.Content = content
		if out.Filename == "" {
			out.Filename = info.Name()
		}

	case a.Path != "":
		out.Path = a.Path

	default:
		content, err := a.Content.encode(ctx)
		if err != nil {
			return PayloadAttachment{}, err
		}
		out.Content = content
	}

	return out, nil
}

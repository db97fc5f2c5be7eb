// Package resend is a client for the Resend transactional email API.
//
// A request is normalized locally (body rendering, attachment encoding,
// validation) and then submitted with a single POST to /emails. The decoded
// response is returned whatever its HTTP status; see SendEmailResponse.Err.
package resend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const (
	// DefaultBaseURL is the API root used when no base URL is configured.
	DefaultBaseURL = "https://api.resend.com"

	// Version is reported in the User-Agent header.
	Version = "0.1.0"
)

// Client sends emails through the API. A Client is safe for concurrent use.
type Client struct {
	apiKey     string
	baseURL    string
	userAgent  string
	httpClient *http.Client
	renderer   Renderer
	logger     *slog.Logger

	// Emails groups the email operations.
	Emails *EmailsService
}

// EmailsService exposes Send under Client.Emails.
type EmailsService struct {
	client *Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets the API root, e.g. "http://localhost:8080".
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRenderer sets the renderer used for component bodies.
func WithRenderer(r Renderer) Option {
	return func(c *Client) {
		c.renderer = r
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithLogger sets a logger for debug records about submissions.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New creates a Client authenticating with apiKey.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		userAgent:  "resend-lite/" + Version,
		httpClient: &http.Client{},
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.Emails = &EmailsService{client: c}
	return c
}

// Send submits req with a default Client for apiKey.
func Send(ctx context.Context, req *SendEmailRequest, apiKey string) (*SendEmailResponse, error) {
	return New(apiKey).Send(ctx, req)
}

// Send normalizes req and submits it.
func (s *EmailsService) Send(ctx context.Context, req *SendEmailRequest) (*SendEmailResponse, error) {
	return s.client.Send(ctx, req)
}

// Send normalizes req and submits it. Validation and render errors are
// returned before any network call.
func (c *Client) Send(ctx context.Context, req *SendEmailRequest) (*SendEmailResponse, error) {
	p, err := Normalize(ctx, req, c.renderer)
	if err != nil {
		return nil, err
	}
	return c.SendPayload(ctx, p)
}

// SendPayload submits an already normalized payload with one POST request.
// Content-Type, Authorization and User-Agent are set first and the payload's
// custom headers are applied on top of them.
func (c *Client) SendPayload(ctx context.Context, p *Payload) (*SendEmailResponse, error) {
	body, err := p.encode()
	if err != nil {
		return nil, &TransportError{Op: "encode request", Err: err}
	}

	endpoint := c.baseURL + "/emails"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Op: "create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("User-Agent", c.userAgent)
	for key, value := range p.Headers {
		req.Header.Set(key, value)
	}

	c.logger.DebugContext(ctx, "submitting email",
		"endpoint", endpoint,
		"attachments", len(p.Attachments),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "send request", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: "read response", StatusCode: resp.StatusCode, Err: err}
	}

	if !json.Valid(raw) {
		return nil, &TransportError{Op: "decode response", StatusCode: resp.StatusCode, Err: errInvalidJSON}
	}

	// Any well-formed body is a result. Fields whose shape does not match
	// are left zero; Raw keeps the body as received.
	var out SendEmailResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		c.logger.DebugContext(ctx, "response body does not match the expected shape",
			"status", resp.StatusCode,
			"error", err,
		)
	}
	out.HTTPStatus = resp.StatusCode
	out.Raw = json.RawMessage(raw)

	return &out, nil
}

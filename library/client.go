// Package library is the client side of the library portal: the REST API
// client, the persisted session store and the signed-in session.
package library

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Headers the client sets on outbound requests.
const (
	HeaderUser      = "X-User"
	HeaderRequestID = "X-Request-ID"
)

// ContentType selects how a request body is encoded.
type ContentType int

const (
	ContentJSON ContentType = iota
	ContentForm
)

func (c ContentType) mime() string {
	if c == ContentForm {
		return "application/x-www-form-urlencoded"
	}
	return "application/json"
}

// IdentitySource supplies the cached username for the identity header.
// It is consulted on every request.
type IdentitySource interface {
	Username() (string, error)
}

// Result describes a successful response.
type Result struct {
	Status int
	// NoContent is set when the server answered 2xx with an empty body.
	// The decode target is left untouched in that case.
	NoContent bool
}

// Client is the single point of outbound communication with the library API.
type Client struct {
	baseURL  string
	http     *http.Client
	identity IdentitySource
	logger   *slog.Logger
	timeout  time.Duration
}

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// WithTimeout bounds every request, including reading the body. The
// *http.Client given to WithHTTPClient is copied, never modified.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// NewClient builds a client for the API rooted at baseURL. identity may be nil,
// in which case no identity header is ever sent.
func NewClient(baseURL string, identity IdentitySource, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{},
		identity: identity,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		hc := *c.http
		hc.Timeout = c.timeout
		c.http = &hc
	}
	return c
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// anonymous endpoints never carry the identity header.
var anonymousPaths = map[string]bool{
	"/auth/register": true,
	"/auth/login":    true,
}

// send issues one request. body is marshalled as JSON for ContentJSON and must
// be url.Values for ContentForm. out, when non-nil, receives the decoded body.
func (c *Client) send(ctx context.Context, method, path string, body any, ct ContentType, out any) (Result, error) {
	payload, err := encodeBody(body, ct)
	if err != nil {
		return Result{}, fmt.Errorf("encode %s %s: %w", method, path, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return Result{}, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", ct.mime())
	}
	req.Header.Set("Accept", "application/json")
	reqID := uuid.NewString()
	req.Header.Set(HeaderRequestID, reqID)

	if err := c.attachIdentity(req, path); err != nil {
		return Result{}, err
	}

	c.logger.Debug("api request", "method", method, "path", path, "request_id", reqID)

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read %s %s: %w", method, path, err)
	}
	text := strings.TrimSpace(string(raw))

	c.logger.Debug("api response", "method", method, "path", path, "status", resp.StatusCode, "request_id", reqID)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, newRequestError(method, path, resp.StatusCode, text)
	}
	if text == "" {
		return Result{Status: resp.StatusCode, NoContent: true}, nil
	}
	if out != nil {
		if err := decodeBody(raw, text, out); err != nil {
			return Result{}, fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	return Result{Status: resp.StatusCode}, nil
}

type identityKey struct{}

// WithIdentity makes requests issued with ctx claim username instead of the
// cached identity.
func WithIdentity(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, identityKey{}, username)
}

func (c *Client) attachIdentity(req *http.Request, path string) error {
	if p, _, _ := strings.Cut(path, "?"); anonymousPaths[p] {
		return nil
	}
	if username, ok := req.Context().Value(identityKey{}).(string); ok {
		if username != "" {
			req.Header.Set(HeaderUser, username)
		}
		return nil
	}
	if c.identity == nil {
		return nil
	}
	username, err := c.identity.Username()
	if err != nil {
		return fmt.Errorf("read cached identity: %w", err)
	}
	if username != "" {
		req.Header.Set(HeaderUser, username)
	}
	return nil
}

func encodeBody(body any, ct ContentType) (io.Reader, error) {
	if body == nil {
		return nil, nil
	}
	if ct == ContentForm {
		form, ok := body.(url.Values)
		if !ok {
			return nil, fmt.Errorf("form body must be url.Values, got %T", body)
		}
		return strings.NewReader(form.Encode()), nil
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(buf), nil
}

// decodeBody parses JSON into out. Some endpoints answer with plain status
// text; a *string target takes that text as-is.
func decodeBody(raw []byte, text string, out any) error {
	if s, ok := out.(*string); ok {
		if err := json.Unmarshal(raw, s); err != nil {
			*s = text
		}
		return nil
	}
	return json.Unmarshal(raw, out)
}

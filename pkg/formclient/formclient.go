// Package formclient fetches and decodes application/x-www-form-urlencoded
// HTTP responses, such as those of older OAuth token endpoints.
package formclient

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/epithet-ssh/formdecode/pkg/urlencoded"
)

// ContentType is the media type of form-encoded data.
const ContentType = "application/x-www-form-urlencoded"

// DefaultBodyLimit bounds the size of a response body that will be decoded.
const DefaultBodyLimit = 1 << 20

// StatusError indicates the server answered with a non-2xx status.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Message)
}

// ContentTypeError indicates the response was not form-encoded.
type ContentTypeError struct {
	ContentType string
}

func (e *ContentTypeError) Error() string {
	return fmt.Sprintf("unexpected content type %q, want %s", e.ContentType, ContentType)
}

// Client fetches form-encoded documents.
type Client struct {
	httpClient *http.Client
	bodyLimit  int
	strictType bool
	decodeOpts []urlencoded.Option
}

// New creates a new Client.
func New(options ...Option) *Client {
	client := &Client{
		httpClient: &http.Client{
			Timeout: time.Second * 30,
		},
		bodyLimit:  DefaultBodyLimit,
		strictType: true,
	}

	for _, o := range options {
		o.apply(client)
	}

	return client
}

// Option configures the client
type Option interface {
	apply(*Client)
}

type optionFunc func(*Client)

func (f optionFunc) apply(c *Client) {
	f(c)
}

// WithHTTPClient specifies the http client to use
func WithHTTPClient(httpClient *http.Client) Option {
	return optionFunc(func(c *Client) {
		c.httpClient = httpClient
	})
}

// WithBodyLimit sets the largest response body that will be decoded.
// Zero or less keeps DefaultBodyLimit.
func WithBodyLimit(n int) Option {
	return optionFunc(func(c *Client) {
		if n <= 0 {
			n = DefaultBodyLimit
		}
		c.bodyLimit = n
	})
}

// WithAnyContentType decodes responses regardless of their Content-Type.
func WithAnyContentType() Option {
	return optionFunc(func(c *Client) {
		c.strictType = false
	})
}

// WithDecodeOptions passes options through to urlencoded.Decode.
func WithDecodeOptions(opts ...urlencoded.Option) Option {
	return optionFunc(func(c *Client) {
		c.decodeOpts = append(c.decodeOpts, opts...)
	})
}

// Fetch GETs url and decodes the response body.
func (c *Client) Fetch(ctx context.Context, url string) (map[string]string, error) {
	rq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	rq.Header.Set("Accept", ContentType)

	res, err := c.httpClient.Do(rq)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	// One byte past the limit so MaxLength can reject oversized bodies.
	body, err := io.ReadAll(io.LimitReader(res.Body, int64(c.bodyLimit)+1))
	if err != nil {
		return nil, fmt.Errorf("unable to read body: %w", err)
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &StatusError{StatusCode: res.StatusCode, Message: string(body)}
	}

	if c.strictType {
		mediaType, _, err := mime.ParseMediaType(res.Header.Get("Content-Type"))
		if err != nil || mediaType != ContentType {
			return nil, &ContentTypeError{ContentType: res.Header.Get("Content-Type")}
		}
	}

	opts := append([]urlencoded.Option{urlencoded.MaxLength(c.bodyLimit)}, c.decodeOpts...)
	return urlencoded.Decode(body, opts...)
}

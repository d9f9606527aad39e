package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/nethesis/alerting-cli/pkg/alertctl/metrics"
	"github.com/nethesis/alerting-cli/pkg/alertctl/transport"
	"github.com/nethesis/alerting-cli/pkg/system"
)

const (
	DefaultTimeout = 30 * time.Second
	maxErrorBody   = 64 << 10
)

type Client struct {
	baseURL   *url.URL
	token     string
	basicUser string
	basicPass string
	userAgent string
	timeout   time.Duration
	base      http.RoundTripper
	logger    *zap.Logger
	metrics   *metrics.Recorder
	http      *http.Client
}

type Option func(*Client) error

func New(opts ...Option) (*Client, error) {
	c := &Client{
		timeout:   DefaultTimeout,
		userAgent: "alertctl",
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.baseURL == nil {
		return nil, errors.New("server is required")
	}
	c.http = &http.Client{
		Timeout:   c.timeout,
		Transport: transport.Wrap(c.base, c.logger, c.metrics),
	}
	return c, nil
}

func WithServer(server string) Option {
	return func(c *Client) error {
		server = strings.TrimRight(strings.TrimSpace(server), "/")
		if server == "" {
			return errors.New("server is required")
		}
		parsed, err := url.Parse(server)
		if err != nil {
			return fmt.Errorf("invalid server: %w", err)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return fmt.Errorf("invalid server %q: scheme must be http or https", server)
		}
		c.baseURL = parsed
		return nil
	}
}

func WithToken(token string) Option {
	return func(c *Client) error {
		c.token = token
		return nil
	}
}

// WithBasicAuth authenticates every request with key and secret.
func WithBasicAuth(key, secret string) Option {
	return func(c *Client) error {
		if key == "" || secret == "" {
			return errors.New("key and secret are required")
		}
		c.basicUser = key
		c.basicPass = secret
		return nil
	}
}

func WithUserAgent(userAgent string) Option {
	return func(c *Client) error {
		c.userAgent = userAgent
		return nil
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) error {
		if timeout > 0 {
			c.timeout = timeout
		}
		return nil
	}
}

func WithTLSConfig(caFile string, insecureSkipTLSVerify bool) Option {
	return func(c *Client) error {
		base, err := transport.Base(caFile, insecureSkipTLSVerify)
		if err != nil {
			return err
		}
		c.base = base
		return nil
	}
}

// WithTransport replaces the base round tripper. Logging and metrics still
// wrap it.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) error {
		c.base = rt
		return nil
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

func WithMetrics(rec *metrics.Recorder) Option {
	return func(c *Client) error {
		c.metrics = rec
		return nil
	}
}

// do sends body as JSON and decodes a 2xx response into out. json.RawMessage
// and []byte bodies are sent untouched. It returns the response status code.
func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) (int, error) {
	fullURL := *c.baseURL
	parsedEndpoint, err := url.Parse(endpoint)
	if err != nil {
		return 0, fmt.Errorf("invalid endpoint: %w", err)
	}
	fullURL.Path = path.Join(fullURL.Path, parsedEndpoint.Path)
	if parsedEndpoint.RawQuery != "" {
		fullURL.RawQuery = parsedEndpoint.RawQuery
	}

	var payload io.Reader
	switch b := body.(type) {
	case nil:
	case json.RawMessage:
		payload = bytes.NewReader(b)
	case []byte:
		payload = bytes.NewReader(b)
	default:
		bytesBody, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		payload = bytes.NewReader(bytesBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL.String(), payload)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	} else if c.basicUser != "" {
		req.SetBasicAuth(c.basicUser, c.basicPass)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, &NetworkError{Method: method, URL: system.RedactURL(&fullURL), Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, decodeError(resp)
	}
	if out == nil {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.StatusCode, nil
}

func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := ""
	for _, field := range []string{"message", "error"} {
		if v := gjson.GetBytes(body, field); v.Type == gjson.String && strings.TrimSpace(v.String()) != "" {
			msg = strings.TrimSpace(v.String())
			break
		}
	}
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if msg == "" {
		msg = resp.Status
	}
	return &HTTPError{StatusCode: resp.StatusCode, Message: msg}
}

// HTTPError is a non-2xx answer from the remote API.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("request failed (%d): %s", e.StatusCode, e.Message)
}

// NetworkError is a request that never produced a response.
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	cause := e.Err
	var urlErr *url.Error
	if errors.As(cause, &urlErr) {
		cause = urlErr.Err
	}
	return fmt.Sprintf("%s %s failed: %v", e.Method, e.URL, cause)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/net/publicsuffix"
)

const maxBodyBytes = 1 << 20

// session is the cookie-carrying HTTP client of one login attempt.
type session struct {
	http *http.Client
}

type reply struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	URL        *url.URL
}

func newSession(opts Options) (*session, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	return &session{http: &http.Client{
		Jar:       jar,
		Timeout:   opts.Timeout,
		Transport: opts.Transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}}, nil
}

func (s *session) send(ctx context.Context, step Step, method, target string, body any) (*reply, error) {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		payload = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, payload)
	if err != nil {
		return nil, &Error{Kind: ErrUnexpectedResponse, Step: step, Message: "invalid request target", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, &Error{Kind: ErrNetwork, Step: step, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &Error{Kind: ErrNetwork, Step: step, Err: err}
	}
	return &reply{StatusCode: resp.StatusCode, Header: resp.Header, Body: data, URL: req.URL}, nil
}

func (r *reply) failed() bool {
	return r.StatusCode < 200 || r.StatusCode > 299
}

// location resolves the Location header against the request URL.
// It returns nil when the header is absent.
func (r *reply) location() (*url.URL, error) {
	raw := r.Header.Get("Location")
	if raw == "" {
		return nil, nil
	}
	loc, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	return r.URL.ResolveReference(loc), nil
}

// message prefers the JSON "message" field and falls back to the raw body.
func (r *reply) message() string {
	if msg := gjson.GetBytes(r.Body, "message"); msg.Type == gjson.String && msg.String() != "" {
		return msg.String()
	}
	return strings.TrimSpace(string(r.Body))
}

func (r *reply) providerError(step Step) *Error {
	return newError(ErrProvider, step, r.StatusCode, r.message())
}

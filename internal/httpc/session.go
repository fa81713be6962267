// Package httpc provides the uniform HTTP session every receiver client is
// built on: a single user-agent, declarative endpoints with {named} path
// placeholders, a per-endpoint minimum-interval gate, and a uniform response
// envelope so callers branch on status codes instead of transport errors.
package httpc

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	userAgent      = "gdpoller-go/0.1"
	defaultTimeout = 30 * time.Second
)

// Endpoint declares one remote operation: an HTTP method, a path template
// with {named} placeholders, and an optional minimum interval between calls.
type Endpoint struct {
	Method   string
	Path     string
	Interval time.Duration
}

// Call carries the per-invocation pieces of a request. Format values are
// substituted into the endpoint's path template; the other fields map onto
// query parameters, form body, JSON body, extra headers and basic auth.
type Call struct {
	Params  url.Values
	Form    url.Values
	JSON    any
	Headers http.Header
	Auth    *BasicAuth
	Format  map[string]string
}

// BasicAuth is a username/password pair for receivers that authenticate via
// URL userinfo (rclone rc).
type BasicAuth struct {
	User     string
	Password string
}

// Response is the uniform envelope returned for every call. A transport
// failure yields StatusCode 0 and a non-nil Err; HTTP-level failures carry
// the receiver's status code and body so callers can implement their own
// retry policies (e.g. Kavita's 401 re-authentication).
type Response struct {
	StatusCode int
	Content    string
	JSON       map[string]any
	Err        error
	URL        string
}

// OK reports whether the response carries a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= http.StatusOK && r.StatusCode < http.StatusMultipleChoices
}

// Session executes endpoint calls. It is safe for concurrent use; the
// interval gate serialises calls per endpoint path.
type Session struct {
	client *http.Client
	logger *slog.Logger

	// sleepFunc waits between gated calls. Tests override it to avoid real
	// delays.
	sleepFunc func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	lastCall map[string]time.Time
}

// NewSession creates a session with a default-timeout HTTP client when nil
// is passed.
func NewSession(client *http.Client, logger *slog.Logger) *Session {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Session{
		client:    client,
		logger:    logger,
		sleepFunc: Sleep,
		lastCall:  make(map[string]time.Time),
	}
}

// Do expands the endpoint template, waits out the endpoint's interval gate,
// executes the request against base, and returns the response envelope.
func (s *Session) Do(ctx context.Context, base *url.URL, ep Endpoint, call Call) *Response {
	path := expandTemplate(ep.Path, call.Format)
	target := joinURL(base, path, call.Params)

	if err := s.waitInterval(ctx, ep); err != nil {
		return &Response{Err: err, URL: target}
	}

	req, err := s.buildRequest(ctx, ep.Method, target, call)
	if err != nil {
		return &Response{Err: err, URL: target}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Error("request failed",
			slog.String("method", ep.Method),
			slog.String("url", target),
			slog.String("error", err.Error()),
		)

		return &Response{Err: err, URL: target}
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return &Response{StatusCode: resp.StatusCode, Err: readErr, URL: target}
	}

	envelope := &Response{
		StatusCode: resp.StatusCode,
		Content:    strings.TrimSpace(string(body)),
		URL:        target,
	}

	var parsed map[string]any
	if json.Unmarshal(body, &parsed) == nil {
		envelope.JSON = parsed
	}

	s.logger.Debug("request completed",
		slog.String("method", ep.Method),
		slog.String("url", target),
		slog.Int("status", envelope.StatusCode),
	)

	return envelope
}

// buildRequest assembles the http.Request from the call pieces.
func (s *Session) buildRequest(ctx context.Context, method, target string, call Call) (*http.Request, error) {
	var body io.Reader

	contentType := ""

	switch {
	case call.JSON != nil:
		encoded, err := json.Marshal(call.JSON)
		if err != nil {
			return nil, err
		}

		body = bytes.NewReader(encoded)
		contentType = "application/json"

	case call.Form != nil:
		body = strings.NewReader(call.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", userAgent)

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	for key, values := range call.Headers {
		for _, v := range values {
			req.Header.Set(key, v)
		}
	}

	if call.Auth != nil {
		req.SetBasicAuth(call.Auth.User, call.Auth.Password)
	}

	return req, nil
}

// waitInterval sleeps until the endpoint's minimum interval since the last
// call has elapsed, then records the new call time. Endpoints without an
// interval pass straight through.
func (s *Session) waitInterval(ctx context.Context, ep Endpoint) error {
	if ep.Interval <= 0 {
		return nil
	}

	s.mu.Lock()
	now := time.Now()
	wait := ep.Interval - now.Sub(s.lastCall[ep.Path])

	if wait < 0 {
		wait = 0
	}

	s.lastCall[ep.Path] = now.Add(wait)
	s.mu.Unlock()

	if wait == 0 {
		return nil
	}

	s.logger.Debug("interval gate",
		slog.String("endpoint", ep.Path),
		slog.Duration("wait", wait),
	)

	return s.sleepFunc(ctx, wait)
}

// expandTemplate substitutes {name} placeholders from the format map.
// Unknown placeholders are left intact so a malformed call surfaces in the
// request URL instead of silently truncating the path.
func expandTemplate(path string, format map[string]string) string {
	if len(format) == 0 {
		return path
	}

	replacements := make([]string, 0, len(format)*2)
	for name, value := range format {
		replacements = append(replacements, "{"+name+"}", value)
	}

	return strings.NewReplacer(replacements...).Replace(path)
}

// joinURL composes the final URL from the client's base parts, the expanded
// endpoint path, and the query parameters.
func joinURL(base *url.URL, path string, params url.Values) string {
	u := *base
	u.Path = strings.TrimSuffix(u.Path, "/") + path

	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}

	return u.String()
}

// Sleep waits for d or until the context is cancelled. It is the default
// sleepFunc for Session and the shared context-aware sleep used by the
// polling and flush loops.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

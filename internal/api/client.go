// Package api is a minimal client for the web API that issues real-time
// connection sessions.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/omochice/rtm-client/internal/rtm"
)

const (
	defaultTimeout = 30 * time.Second
	maxBodySize    = 4 << 20
)

// ErrStatus is wrapped when the server answers with a non-2xx status.
var ErrStatus = errors.New("api: unexpected status")

// Error is an application-level failure reported through the response
// envelope ({"ok": false, "error": "..."}).
type Error struct {
	Method string
	Code   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("api: %s: %s", e.Method, e.Code)
}

// Response is a decoded response envelope.
type Response map[string]any

// OK reports the envelope's ok flag.
func (r Response) OK() bool {
	ok, _ := r["ok"].(bool)
	return ok
}

// Client calls web API methods with a token.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New creates a client for the API rooted at baseURL, e.g.
// "https://slack.com". Methods are posted to baseURL + "/api/" + method.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call posts params and the token form-encoded to method and returns the
// decoded envelope. A response with ok=false is returned as *Error.
func (c *Client) Call(ctx context.Context, method string, params url.Values) (Response, error) {
	form := url.Values{}
	for k, vs := range params {
		form[k] = append([]string(nil), vs...)
	}
	form.Set("token", c.token)

	endpoint := c.baseURL + "/api/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", method, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("api call", "method", method, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s returned %s", ErrStatus, method, resp.Status)
	}

	var out Response
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	if !out.OK() {
		code, _ := out["error"].(string)
		if code == "" {
			code = "unknown_error"
		}
		return out, &Error{Method: method, Code: code}
	}
	return out, nil
}

// ConnectRTM calls rtm.connect and returns the session it describes.
func (c *Client) ConnectRTM(ctx context.Context) (rtm.Session, error) {
	resp, err := c.Call(ctx, "rtm.connect", nil)
	if err != nil {
		return rtm.Session{}, err
	}
	session, err := rtm.SessionFromBootstrap(resp)
	if err != nil {
		return rtm.Session{}, fmt.Errorf("rtm.connect: %w", err)
	}
	c.logger.Info("session issued", "host", session.Host())
	return session, nil
}

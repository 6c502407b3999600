// Package backend is the REST client every surface uses to read and mutate
// orders, deliveries and agents.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"deliverySync/internal/session"
	"deliverySync/models"
)

// DefaultTimeout bounds a single request.
const DefaultTimeout = 10 * time.Second

// Error is a non-2xx response. It unwraps to the domain error named by Code.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend: %d %s", e.StatusCode, e.Code)
	}
	return fmt.Sprintf("backend: %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Unwrap lets errors.Is match models.ErrAgentBusy and friends.
func (e *Error) Unwrap() error { return models.ErrorFromCode(e.Code) }

// Client talks to the coordination service over HTTP.
type Client struct {
	base *url.URL
	http *http.Client
	sess *session.Session
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// New returns a client for baseURL. sess supplies the bearer token; nil sends
// anonymous requests (agent self-registration).
func New(baseURL string, sess *session.Session, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("backend url %q: scheme must be http or https", baseURL)
	}
	c := &Client{base: u, http: &http.Client{Timeout: DefaultTimeout}, sess: sess}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// BaseURL returns the service root.
func (c *Client) BaseURL() string { return c.base.String() }

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := *c.base
	u.Path = c.base.Path + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return err
	}
	// Polls must see fresh state, never a cached copy.
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.sess != nil {
		tok, err := c.sess.Token()
		if err != nil {
			return err
		}
		if tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	e := &Error{StatusCode: resp.StatusCode}
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &body); err == nil {
		e.Code, e.Message = body.Error, body.Message
	} else {
		e.Message = strings.TrimSpace(string(raw))
	}
	if e.Code == "" {
		e.Code = codeForStatus(resp.StatusCode)
	}
	return e
}

// codeForStatus covers servers that answer without a JSON error body.
func codeForStatus(status int) string {
	switch status {
	case http.StatusNotFound:
		return models.ErrorCode(models.ErrNotFound)
	case http.StatusBadRequest:
		return models.ErrorCode(models.ErrInvalidArgument)
	case http.StatusForbidden:
		return models.ErrorCode(models.ErrForbidden)
	case http.StatusConflict:
		return models.ErrorCode(models.ErrVersionConflict)
	}
	return http.StatusText(status)
}

// IsStatus reports whether err is a backend response with the given status.
func IsStatus(err error, status int) bool {
	var be *Error
	return errors.As(err, &be) && be.StatusCode == status
}

func id(v int64) string { return strconv.FormatInt(v, 10) }

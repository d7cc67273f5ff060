// Package meterapi talks to a remote meter backend over its REST API.
//
// Routes, relative to the configured base URL:
//
//	GET    /meters
//	POST   /meters              {"meterNumber": "..."}
//	DELETE /meters/{id}
//	PUT    /meters/{id}/units   {"currentUnits": n, "usedUnits": n}
//
// The caller's identity is carried by the Authorization header: the value set
// on the request context with ContextWithAuthorization, or else the client
// default.
package meterapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"smart_cash_power/internal/models"
)

const (
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 1 << 10
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

type Client struct {
	baseURL       string
	authorization string
	http          *http.Client
}

type Option func(*Client)

// WithAuthorization sets the Authorization header sent with every request.
func WithAuthorization(v string) Option { return func(c *Client) { c.authorization = v } }

type authorizationKey struct{}

// ContextWithAuthorization makes requests made with ctx send v as their
// Authorization header instead of the client default.
func ContextWithAuthorization(ctx context.Context, v string) context.Context {
	return context.WithValue(ctx, authorizationKey{}, v)
}

func (c *Client) authorizationFor(ctx context.Context) string {
	if v, ok := ctx.Value(authorizationKey{}).(string); ok && v != "" {
		return v
	}
	return c.authorization
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// WithTimeout bounds every request made by the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http = &http.Client{Timeout: d}
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// meter is the remote representation. Timestamps are left out because the
// remote side formats them without a zone.
type meter struct {
	ID           int64   `json:"id"`
	MeterNumber  string  `json:"meterNumber"`
	CurrentUnits float64 `json:"currentUnits"`
	UsedUnits    float64 `json:"usedUnits"`
	Active       bool    `json:"active"`
}

func (m meter) model() models.Meter {
	return models.Meter{
		ID:           m.ID,
		MeterNumber:  m.MeterNumber,
		CurrentUnits: m.CurrentUnits,
		UsedUnits:    m.UsedUnits,
		Active:       m.Active,
	}
}

// FetchMeters returns the caller's meters.
func (c *Client) FetchMeters(ctx context.Context) ([]models.Meter, error) {
	var wire []meter
	if err := c.do(ctx, http.MethodGet, "/meters", nil, &wire); err != nil {
		return nil, err
	}
	out := make([]models.Meter, 0, len(wire))
	for _, m := range wire {
		out = append(out, m.model())
	}
	return out, nil
}

// AddMeter registers a meter number for the caller.
func (c *Client) AddMeter(ctx context.Context, meterNumber string) (models.Meter, error) {
	var wire meter
	if err := c.do(ctx, http.MethodPost, "/meters", map[string]string{"meterNumber": meterNumber}, &wire); err != nil {
		return models.Meter{}, err
	}
	return wire.model(), nil
}

// DeleteMeter removes one of the caller's meters.
func (c *Client) DeleteMeter(ctx context.Context, meterID int64) error {
	return c.do(ctx, http.MethodDelete, meterPath(meterID), nil, nil)
}

// WriteMeterUnits overwrites a meter's current and used units.
func (c *Client) WriteMeterUnits(ctx context.Context, meterID int64, u models.Units) error {
	return c.do(ctx, http.MethodPut, meterPath(meterID)+"/units", u, nil)
}

func meterPath(id int64) string {
	return "/meters/" + strconv.FormatInt(id, 10)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth := c.authorizationFor(ctx); auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
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

// CMDBSync - CMDB to Monitor Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cmdbsync

package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/cmdbsync/internal/logging"
	"github.com/tomtom215/cmdbsync/internal/metrics"
)

// maxErrorBodySize limits the maximum amount of response body read for error reporting
const maxErrorBodySize = 64 * 1024 // 64KB

// maxResponseSize bounds successful response bodies. CMDB pages are the
// largest payloads and stay well below this.
const maxResponseSize = 32 * 1024 * 1024

// Options configures a Client.
type Options struct {
	// System names the upstream in logs and metrics: cmdb, monitor, secrets.
	System  string
	BaseURL string

	// Timeout bounds each call, including reading the body. Mandatory.
	Timeout time.Duration

	RateLimit float64
	RateBurst int

	// Authorize adds credentials to every request.
	Authorize func(*http.Request)

	// Breaker overrides the default circuit breaker settings.
	Breaker BreakerSettings

	// HTTPClient replaces the default client. Tests use httptest clients.
	HTTPClient *http.Client
}

// Client executes HTTP calls against one upstream system with a per-call
// timeout, client-side throttling and a circuit breaker. Safe for concurrent use.
type Client struct {
	system    string
	baseURL   string
	timeout   time.Duration
	http      *http.Client
	authorize func(*http.Request)
	breaker   *Breaker
	limiter   *Limiter
}

// Request describes one upstream call.
type Request struct {
	// Operation labels the call in metrics and errors (fetch_devices, clone).
	Operation string
	Method    string
	Path      string
	Query     url.Values
	Header    http.Header

	// Body is JSON-encoded when non-nil.
	Body interface{}
}

// Response is a fully read upstream response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte

	// URL is the final request URL after redirects.
	URL *url.URL
}

// New creates a client for opts.System.
func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		system:    opts.System,
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		timeout:   timeout,
		http:      httpClient,
		authorize: opts.Authorize,
		breaker:   NewBreaker(opts.System+"-api", opts.Breaker),
		limiter:   NewLimiter(opts.System, opts.RateLimit, opts.RateBurst),
	}
}

// System returns the upstream name.
func (c *Client) System() string {
	return c.system
}

// BreakerState returns the circuit breaker state.
func (c *Client) BreakerState() string {
	return c.breaker.State()
}

// Do executes req. A status outside 2xx/3xx is returned as a *StatusError; errors
// meaning the upstream is unreachable wrap models.ErrUpstreamUnavailable.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, Classify(ctx, c.system, req.Operation, err)
	}

	resp, err := c.breaker.Execute(func() (*Response, error) {
		return c.roundTrip(ctx, req)
	})
	return resp, Classify(ctx, c.system, req.Operation, err)
}

// DoJSON executes req and decodes the JSON body into out.
func (c *Client) DoJSON(ctx context.Context, req Request, out interface{}) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("%s %s: failed to decode response: %w", c.system, req.Operation, err)
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, req Request) (*Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := c.newRequest(callCtx, req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		redactURLError(err)
		timedOut := errors.Is(err, context.DeadlineExceeded) || isTimeout(err)
		metrics.RecordUpstreamRequest(c.system, req.Operation, 0, timedOut, time.Since(start))
		logging.Ctx(ctx).Debug().Str("system", c.system).Str("operation", req.Operation).Err(err).Msg("Upstream request failed")
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	// 3xx only reaches here when the caller's client does not follow redirects.
	if resp.StatusCode < 200 || resp.StatusCode > 399 {
		body := readBodyForError(resp.Body)
		metrics.RecordUpstreamRequest(c.system, req.Operation, resp.StatusCode, false, time.Since(start))
		return nil, &StatusError{
			System:     c.system,
			Operation:  req.Operation,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	metrics.RecordUpstreamRequest(c.system, req.Operation, resp.StatusCode, errors.Is(err, context.DeadlineExceeded), time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	logging.Ctx(ctx).Trace().Str("system", c.system).Str("operation", req.Operation).
		Int("status", resp.StatusCode).Dur("duration", time.Since(start)).Msg("Upstream request")

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		URL:        resp.Request.URL,
	}, nil
}

func (c *Client) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	reqURL := c.baseURL + req.Path
	if len(req.Query) > 0 {
		reqURL += "?" + req.Query.Encode()
	}

	var body io.Reader = http.NoBody
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if c.authorize != nil {
		c.authorize(httpReq)
	}
	return httpReq, nil
}

// readBodyForError reads the response body for error reporting (max 64KB).
// Returns a placeholder message if reading fails.
func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return []byte("(failed to read response body)")
	}
	if len(body) == maxErrorBodySize {
		return append(body, []byte("\n... (truncated)")...)
	}
	return body
}

// redactURLError drops the query string from a transport error, since some
// upstreams take credentials as query parameters.
func redactURLError(err error) {
	var ue *url.Error
	if errors.As(err, &ue) {
		if u, perr := url.Parse(ue.URL); perr == nil {
			u.RawQuery = ""
			ue.URL = u.String()
		}
	}
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

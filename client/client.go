// Copyright 2026 The Subconscious Systems Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/google/uuid"

	subconscious "github.com/subconscious-systems/subconscious-go"
)

const (
	// DefaultBaseURL is the production API endpoint.
	DefaultBaseURL = "https://api.subconscious.dev/v1"

	defaultUserAgent = "subconscious-go/1"

	// runIDHeader carries the run identifier of a streaming response.
	// Delta protocol streams use it to seed the correlation id before
	// the first record arrives.
	runIDHeader = "X-Run-ID"

	requestIDHeader = "X-Request-ID"
)

// APIKeyEnvVar is consulted when no API key or credentials are configured.
const APIKeyEnvVar = "SUBCONSCIOUS_API_KEY"

// Client is a client for the Subconscious run API. It is safe for
// concurrent use.
type Client struct {
	opts *options

	// streamClient is the configured HTTP client with the overall
	// request timeout removed. http.Client.Timeout covers reading the
	// response body, which would cut off a stream still producing
	// events; streaming requests are bounded by ctx instead.
	streamClient *http.Client
}

// New creates a new Client with the given options.
func New(opts ...Option) (*Client, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}

	if o.apiKey == "" && o.creds == nil {
		o.apiKey = os.Getenv(APIKeyEnvVar)
	}

	if o.httpClient == http.DefaultClient {
		o.httpClient = &http.Client{
			Timeout: o.timeout,
		}
	}

	streamClient := *o.httpClient
	streamClient.Timeout = 0

	return &Client{opts: o, streamClient: &streamClient}, nil
}

// CreateRun submits a new run and returns its initial snapshot.
func (c *Client) CreateRun(ctx context.Context, req *subconscious.RunRequest) (*subconscious.Run, error) {
	if req == nil {
		return nil, &ValidationError{Field: "request", Message: "run request cannot be nil"}
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var run subconscious.Run
	if err := c.do(ctx, http.MethodPost, "/runs", req, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// GetRun retrieves the current snapshot of a run.
func (c *Client) GetRun(ctx context.Context, runID string) (*subconscious.Run, error) {
	if runID == "" {
		return nil, &ValidationError{Field: "runID", Message: "run ID cannot be empty"}
	}

	var run subconscious.Run
	if err := c.do(ctx, http.MethodGet, "/runs/"+url.PathEscape(runID), nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// CancelRun requests cancellation of a run and returns the resulting
// snapshot. Cancellation is asynchronous server-side; the returned status
// may still be non-terminal.
func (c *Client) CancelRun(ctx context.Context, runID string) (*subconscious.Run, error) {
	if runID == "" {
		return nil, &ValidationError{Field: "runID", Message: "run ID cannot be empty"}
	}

	var run subconscious.Run
	if err := c.do(ctx, http.MethodPost, "/runs/"+url.PathEscape(runID)+"/cancel", nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns a page of runs, newest first.
func (c *Client) ListRuns(ctx context.Context, params *subconscious.ListRunsParams) (*subconscious.RunPage, error) {
	path := "/runs"
	if params != nil {
		q := url.Values{}
		if params.Limit > 0 {
			q.Set("limit", strconv.Itoa(params.Limit))
		}
		if params.Cursor != "" {
			q.Set("cursor", params.Cursor)
		}
		if params.Status != "" {
			q.Set("status", string(params.Status))
		}
		if len(q) > 0 {
			path += "?" + q.Encode()
		}
	}

	var page subconscious.RunPage
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// StreamRun submits a run and returns a live event stream for it.
//
// The returned Stream is single-pass and owned by the caller; it must be
// closed (draining it closes it too). Non-2xx responses are mapped to the
// error taxonomy before any stream is returned. The request timeout does
// not apply to the stream; its lifetime is bounded only by ctx.
func (c *Client) StreamRun(ctx context.Context, req *subconscious.RunRequest) (*Stream, error) {
	if req == nil {
		return nil, &ValidationError{Field: "request", Message: "run request cannot be nil"}
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, "/runs/stream", req)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send stream request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, parseAPIError(resp)
	}

	return newStream(c.opts.protocol, resp)
}

// WaitForRun polls GetRun until the run reaches a terminal status.
//
// A nil opts uses DefaultPollInterval and no overall timeout. Context
// cancellation surfaces as ctx.Err(), distinct from API errors, so callers
// can tell a voluntary cancellation from a failed run (which is returned
// as a normal snapshot with a terminal status, not an error).
func (c *Client) WaitForRun(ctx context.Context, runID string, opts *PollOptions) (*subconscious.Run, error) {
	interval := DefaultPollInterval
	if opts != nil && opts.Interval > 0 {
		interval = opts.Interval
	}
	if opts != nil && opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	for {
		run, err := c.GetRun(ctx, runID)
		if err != nil {
			return nil, err
		}
		if run.Status.Terminal() {
			return run, nil
		}

		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// DefaultPollInterval is the delay between status checks in WaitForRun.
const DefaultPollInterval = 2 * time.Second

// PollOptions configures WaitForRun.
type PollOptions struct {
	// Interval is the delay between status checks.
	Interval time.Duration
	// Timeout bounds the total wait. Zero means no bound beyond ctx.
	Timeout time.Duration
}

// newRequest builds an authenticated request with the standard headers.
func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.opts.baseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", c.opts.userAgent)
	req.Header.Set(requestIDHeader, uuid.NewString())

	if err := c.applyAuth(req); err != nil {
		return nil, fmt.Errorf("apply auth: %w", err)
	}
	return req, nil
}

// do issues a plain request/response call and decodes the JSON body into
// out when the status is 2xx.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.opts.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseAPIError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.UnmarshalRead(resp.Body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// applyAuth applies authentication to a request.
func (c *Client) applyAuth(req *http.Request) error {
	if c.opts.creds != nil {
		header, err := c.opts.creds.ToAuthHeader()
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", header)
		return nil
	}

	if c.opts.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.apiKey)
	}
	return nil
}

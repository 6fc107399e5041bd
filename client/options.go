// Copyright 2026 The Subconscious Systems Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"net/http"
	"time"

	"github.com/subconscious-systems/subconscious-go/auth"
)

// Protocol selects the wire grammar applied to streaming responses.
//
// The two grammars are mutually exclusive: payload shapes collide between
// them, so the choice is made once at client construction rather than
// guessed per record.
type Protocol int

const (
	// ProtocolRich decodes full typed run events (run.started,
	// run.completed, reasoning, tool.call, ...).
	ProtocolRich Protocol = iota
	// ProtocolDelta decodes the OpenAI-compatible incremental-text
	// grammar ([DONE] sentinel, choices[0].delta.content).
	ProtocolDelta
)

// String returns the string representation of the protocol.
func (p Protocol) String() string {
	switch p {
	case ProtocolRich:
		return "rich"
	case ProtocolDelta:
		return "delta"
	default:
		return "unknown"
	}
}

// Option configures a Client.
type Option func(*options) error

// options holds all configuration for a Client.
type options struct {
	baseURL    string
	apiKey     string
	creds      *auth.Credentials
	httpClient *http.Client
	timeout    time.Duration
	userAgent  string
	protocol   Protocol
}

// defaultOptions returns default client options.
func defaultOptions() *options {
	return &options{
		baseURL:    DefaultBaseURL,
		timeout:    60 * time.Second,
		userAgent:  defaultUserAgent,
		protocol:   ProtocolRich,
		httpClient: http.DefaultClient,
	}
}

// WithBaseURL sets the base URL of the API.
func WithBaseURL(url string) Option {
	return func(o *options) error {
		if url == "" {
			return &ValidationError{Field: "baseURL", Message: "base URL cannot be empty"}
		}
		o.baseURL = url
		return nil
	}
}

// WithAPIKey sets the API key used to authenticate requests.
func WithAPIKey(key string) Option {
	return func(o *options) error {
		o.apiKey = key
		return nil
	}
}

// WithCredentials sets full credentials (bearer token or JWT) instead of
// a plain API key.
func WithCredentials(creds *auth.Credentials) Option {
	return func(o *options) error {
		if creds == nil {
			return &ValidationError{Field: "credentials", Message: "credentials cannot be nil"}
		}
		o.creds = creds
		return nil
	}
}

// WithHTTPClient sets a custom HTTP client. The client is used as
// configured, including its Timeout, which takes precedence over
// WithTimeout. Streaming requests run on a copy of the client with the
// overall timeout removed, so a custom Timeout never cuts off a live
// stream.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) error {
		if client == nil {
			return &ValidationError{Field: "httpClient", Message: "HTTP client cannot be nil"}
		}
		o.httpClient = client
		return nil
	}
}

// WithTimeout sets the overall timeout for non-streaming requests. It
// configures the client's own HTTP client and is ignored when
// WithHTTPClient supplies one; streaming requests are never subject to
// it.
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) error {
		if timeout <= 0 {
			return &ValidationError{Field: "timeout", Message: "timeout must be positive"}
		}
		o.timeout = timeout
		return nil
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(o *options) error {
		if ua == "" {
			return &ValidationError{Field: "userAgent", Message: "user agent cannot be empty"}
		}
		o.userAgent = ua
		return nil
	}
}

// WithProtocol selects the streaming wire grammar. The default is
// ProtocolRich.
func WithProtocol(p Protocol) Option {
	return func(o *options) error {
		if p != ProtocolRich && p != ProtocolDelta {
			return &ValidationError{Field: "protocol", Message: "unknown protocol"}
		}
		o.protocol = p
		return nil
	}
}

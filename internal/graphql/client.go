// Package graphql is a minimal GraphQL-over-HTTP client for the project gateway.
//
// It sends {query, variables} as a JSON POST, attaches the session cookie and the
// client identification headers, and treats a non-empty "errors" array as a failure.
package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Request is one GraphQL operation.
type Request struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// Response holds the decoded "data" object, keyed by top-level field name.
type Response struct {
	Data map[string]json.RawMessage `json:"data"`
}

// Error reports GraphQL-level errors returned alongside (or instead of) data.
type Error struct {
	Messages []string
}

func (e *Error) Error() string {
	return "graphql: " + strings.Join(e.Messages, "; ")
}

// StatusError reports a non-2xx HTTP response from the gateway.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("graphql: unexpected HTTP status %d: %s", e.StatusCode, e.Body)
}

// Options configures a Client.
type Options struct {
	Endpoint      string         // Gateway URL requests are POSTed to
	Origin        string         // Origin the cookie belongs to; also sent as the Origin header
	ClientName    string         // atl-client-name header
	ClientVersion string         // atl-client-version header
	Cookies       CookieProvider // Optional; no Cookie header when nil
	Timeout       time.Duration  // Per-request timeout; 0 means none
	HTTPClient    *http.Client   // Optional; defaults to a client with Timeout
}

// Client executes GraphQL requests. Safe for concurrent use.
type Client struct {
	endpoint      string
	origin        string
	clientName    string
	clientVersion string
	cookies       CookieProvider
	http          *http.Client
}

// NewClient validates opts and builds a Client.
func NewClient(opts Options) (*Client, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("graphql endpoint cannot be empty")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	return &Client{
		endpoint:      opts.Endpoint,
		origin:        opts.Origin,
		clientName:    opts.ClientName,
		clientVersion: opts.ClientVersion,
		cookies:       opts.Cookies,
		http:          httpClient,
	}, nil
}

// maxErrorBody bounds how much of a failed response body ends up in errors and logs.
const maxErrorBody = 512

// Query executes req and returns its data. Transport failures, non-2xx statuses,
// undecodable bodies and GraphQL errors are all returned as errors.
func (c *Client) Query(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	if err := c.setHeaders(ctx, httpReq); err != nil {
		return nil, err
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(respBody), maxErrorBody)}
	}

	var envelope struct {
		Data   map[string]json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(envelope.Errors) > 0 {
		gqlErr := &Error{}
		for _, e := range envelope.Errors {
			gqlErr.Messages = append(gqlErr.Messages, e.Message)
		}
		return nil, gqlErr
	}

	return &Response{Data: envelope.Data}, nil
}

func (c *Client) setHeaders(ctx context.Context, req *http.Request) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.origin != "" {
		req.Header.Set("Origin", c.origin)
	}
	if c.clientName != "" {
		req.Header.Set("atl-client-name", c.clientName)
	}
	if c.clientVersion != "" {
		req.Header.Set("atl-client-version", c.clientVersion)
	}

	if c.cookies != nil {
		cookie, err := c.cookies.CookieHeader(ctx, c.origin)
		if err != nil {
			return fmt.Errorf("failed to read cookies for %s: %w", c.origin, err)
		}
		if cookie != "" {
			req.Header.Set("Cookie", cookie)
		}
	}

	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

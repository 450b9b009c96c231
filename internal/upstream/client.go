package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/woozymasta/regionscan/internal/metrics"
	"github.com/woozymasta/regionscan/internal/vars"
)

// maxBodySize caps how much of an upstream response is read.
const maxBodySize = 4 << 20

// Client performs JSON requests against a single upstream API.
type Client struct {
	// HTTP is the underlying client. It carries the request timeout.
	HTTP *http.Client

	// API labels errors and metrics, e.g. "games".
	API string

	// Header is added to every request. Per-call headers take precedence.
	Header http.Header
}

// New returns a client for api with the given per-request timeout.
func New(api string, timeout time.Duration) *Client {
	return &Client{
		HTTP:   &http.Client{Timeout: timeout},
		API:    api,
		Header: http.Header{"User-Agent": []string{vars.UserAgent()}},
	}
}

// errorEnvelope covers both the Roblox {"errors":[{"message"}]} and the
// flat {"message"} error bodies.
type errorEnvelope struct {
	Message string `json:"message"`
	Errors  []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// GetJSON issues a GET to url and decodes the response body into out.
func (c *Client) GetJSON(ctx context.Context, url string, header http.Header, out any) error {
	return c.do(ctx, http.MethodGet, url, header, nil, out)
}

// PostJSON encodes body, POSTs it to url and decodes the response into out.
func (c *Client) PostJSON(ctx context.Context, url string, header http.Header, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s api: encode request: %w", c.API, err)
	}

	h := header.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set("Content-Type", "application/json")

	return c.do(ctx, http.MethodPost, url, h, bytes.NewReader(payload), out)
}

func (c *Client) do(ctx context.Context, method, url string, header http.Header, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("%s api: build request: %w", c.API, err)
	}

	for k, v := range c.Header {
		req.Header[k] = v
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues(c.API, "error").Inc()
		return fmt.Errorf("%s api: %w", c.API, err)
	}
	defer func() { _ = resp.Body.Close() }()

	metrics.UpstreamRequests.WithLabelValues(c.API, strconv.Itoa(resp.StatusCode)).Inc()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("%s api: read response: %w", c.API, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{API: c.API, Status: resp.StatusCode}

		var env errorEnvelope
		if json.Unmarshal(data, &env) == nil {
			if len(env.Errors) > 0 && env.Errors[0].Message != "" {
				se.Message = env.Errors[0].Message
			} else {
				se.Message = env.Message
			}
		}

		return se
	}

	if out == nil {
		return nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s api: decode response: %w", c.API, err)
	}

	return nil
}

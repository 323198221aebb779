package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/common/version"

	"github.com/hatcher/pilot/pkg/logs"
)

// ErrNotFound is returned by DoJSON for 404 responses so callers can treat
// record absence as a normal condition.
var ErrNotFound = errors.New("httpx: not found")

// Client is a thin wrapper around http.Client bound to one base URL.
type Client struct {
	Client  *http.Client
	BaseURL string
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		Client: &http.Client{
			Timeout: timeout,
		},
		BaseURL: baseURL,
	}
}

// NewDefaultClient uses a 30 second request timeout.
func NewDefaultClient(baseURL string) *Client {
	return NewClient(baseURL, 30*time.Second)
}

func (c *Client) buildRequest(ctx context.Context, option *RequestOption) (*http.Request, error) {
	var body io.Reader
	if option.Body != nil {
		if raw, ok := option.Body.([]byte); ok {
			body = bytes.NewReader(raw)
		} else {
			data, err := json.Marshal(option.Body)
			if err != nil {
				return nil, errors.Wrap(err, "marshal request body")
			}
			body = bytes.NewReader(data)
		}
	}
	reqURL := c.BaseURL + option.Path
	if len(option.Query) > 0 {
		params := url.Values{}
		for key, value := range option.Query {
			params.Add(key, value)
		}
		reqURL = fmt.Sprintf("%s?%s", reqURL, params.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, option.Method.String(), reqURL, body)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("User-Agent", "pilot/"+version.Version)
	req.Header.Set("X-Request-ID", option.RequestID)
	if option.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range option.Headers {
		req.Header.Set(key, value)
	}
	return req, nil
}

// Do sends the request and returns the raw response. The caller owns the body.
func (c *Client) Do(ctx context.Context, opts ...Option) (*http.Response, error) {
	option := newRequestOption(opts...)
	req, err := c.buildRequest(ctx, option)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", option.Method, option.Path)
	}
	logs.Debugf("%s %s -> %d (%s, request_id=%s)",
		option.Method, option.Path, resp.StatusCode, time.Since(start).Round(time.Millisecond), option.RequestID)
	return resp, nil
}

// DoJSON sends the request and decodes a 2xx JSON response into out.
// A 404 maps to ErrNotFound; other non-2xx statuses become errors carrying
// a trimmed response body. out may be nil when the body is irrelevant.
func (c *Client) DoJSON(ctx context.Context, out interface{}, opts ...Option) error {
	resp, err := c.Do(ctx, opts...)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return errors.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode response body")
	}
	return nil
}

// Stream opens a long-lived response body (an event feed). The per-request
// timeout is bypassed; lifetime is governed by ctx. The caller must close
// the returned body.
func (c *Client) Stream(ctx context.Context, opts ...Option) (io.ReadCloser, error) {
	option := newRequestOption(opts...)
	option.Headers["Accept"] = "text/event-stream"
	req, err := c.buildRequest(ctx, option)
	if err != nil {
		return nil, err
	}
	streamClient := &http.Client{Transport: c.Client.Transport}
	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "stream %s", option.Path)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, errors.Errorf("stream %s: unexpected status %d", option.Path, resp.StatusCode)
	}
	return resp.Body, nil
}

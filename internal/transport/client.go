package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	gmvErrors "github.com/harunnryd/gmvctl/internal/errors"
	"github.com/harunnryd/gmvctl/internal/logger"
)

// Client is the single HTTP boundary of the console. Every request carries
// the session cookie jar and a generated X-Request-ID; bodies are JSON;
// non-2xx responses are normalized into *errors.APIError and transport-level
// failures run through the error mapper.
type Client struct {
	base   *url.URL
	http   *http.Client
	mapper gmvErrors.ErrorMapper
}

func New(baseURL string, timeout time.Duration) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", baseURL, err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	return &Client{
		base: base,
		http: &http.Client{
			Jar:     jar,
			Timeout: timeout,
		},
		mapper: gmvErrors.NewDefaultErrorMapper(),
	}, nil
}

// NewWithHTTPClient is used by tests to inject a preconfigured client.
func NewWithHTTPClient(baseURL string, hc *http.Client) (*Client, error) {
	c, err := New(baseURL, 0)
	if err != nil {
		return nil, err
	}
	if hc.Jar == nil {
		hc.Jar = c.http.Jar
	}
	c.http = hc
	return c, nil
}

func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, body, nil, out)
}

func (c *Client) PostWithQuery(ctx context.Context, path string, query url.Values, body, out any) error {
	return c.do(ctx, http.MethodPost, path, query, body, nil, out)
}

func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPut, path, nil, body, nil, out)
}

func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPatch, path, nil, body, nil, out)
}

func (c *Client) Delete(ctx context.Context, path string, query url.Values) error {
	return c.do(ctx, http.MethodDelete, path, query, nil, nil, nil)
}

// ConditionalGet issues a GET with If-None-Match when etag is non-empty.
// A 304 reply returns notModified=true and the etag passed in; a fresh reply
// decodes into out and returns the new entity tag from the ETag header.
func (c *Client) ConditionalGet(ctx context.Context, path string, query url.Values, etag string, out any) (newETag string, notModified bool, err error) {
	headers := http.Header{}
	if etag != "" {
		headers.Set("If-None-Match", etag)
	}

	resp, err := c.roundTrip(ctx, http.MethodGet, path, query, nil, headers)
	if err != nil {
		return "", false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		io.Copy(io.Discard, resp.Body)
		return etag, true, nil
	}

	if err := c.decodeResponse(resp, out); err != nil {
		return "", false, err
	}

	return resp.Header.Get("ETag"), false, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, headers http.Header, out any) error {
	resp, err := c.roundTrip(ctx, method, path, query, body, headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return c.decodeResponse(resp, out)
}

func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, body any, headers http.Header) (*http.Response, error) {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	ctx = logger.WithRequestID(ctx, ulid.Make().String())

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", logger.GetRequestID(ctx))
	for key, values := range headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, c.mapper.MapError(fmt.Errorf("request failed: %w", err))
	}

	slog.Debug("HTTP request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"request_id", logger.GetRequestID(ctx),
		"elapsed_ms", time.Since(started).Milliseconds(),
	)

	return resp, nil
}

func (c *Client) decodeResponse(resp *http.Response, out any) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return gmvErrors.Transient("read response body: " + err.Error())
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := decodeAPIError(resp.StatusCode, data)
		slog.Debug("API error", "status", resp.StatusCode, "category", c.mapper.Category(err))
		return err
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

// errorEnvelope matches the two envelope shapes the backend emits:
// {"error": {"code": ..., "message": ...}} and {"detail": ...}.
type errorEnvelope struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Detail string `json:"detail"`
}

func decodeAPIError(status int, body []byte) error {
	var envelope errorEnvelope
	code := ""
	message := ""

	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &envelope); err == nil {
			if envelope.Error != nil {
				code = envelope.Error.Code
				message = envelope.Error.Message
			} else if envelope.Detail != "" {
				message = envelope.Detail
			}
		}
	}

	return gmvErrors.NewAPIError(status, code, message, json.RawMessage(body))
}

//nolint:revive // Struct field names match API responses
package api

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/imroc/req/v3"

	"workerwatch/internal/errors"
	"workerwatch/internal/log"
)

// DefaultBaseURL is the Cloudflare v4 API root
const DefaultBaseURL = "https://api.cloudflare.com/client/v4"

// Client talks to the platform API with bearer-token auth
type Client struct {
	BaseURL string
	Token   string
	Client  *req.Client
}

// New creates an API client for the given token
func New(token string) (*Client, error) {
	if token == "" {
		return nil, errors.ErrNoToken
	}
	return &Client{
		BaseURL: DefaultBaseURL,
		Token:   token,
		Client:  createOptimizedClient(),
	}, nil
}

// createOptimizedClient creates an HTTP client with sane pooling defaults
func createOptimizedClient() *req.Client {
	client := req.C().
		SetUserAgent("workerwatch").
		SetTLSClientConfig(&tls.Config{MinVersion: tls.VersionTLS12}).
		SetTimeout(30 * time.Second).
		EnableKeepAlives()

	transport := client.GetTransport()
	if transport != nil {
		transport.SetMaxIdleConns(100).
			SetIdleConnTimeout(90 * time.Second).
			SetMaxConnsPerHost(10)
	}

	return client
}

// Error is one entry of the API error array
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// envelope is the standard v4 response wrapper
type envelope struct {
	Success bool            `json:"success"`
	Errors  []Error         `json:"errors"`
	Result  json.RawMessage `json:"result"`
}

func (e *envelope) errorString() string {
	if len(e.Errors) == 0 {
		return "request was not successful"
	}
	parts := make([]string, 0, len(e.Errors))
	for _, apiErr := range e.Errors {
		parts = append(parts, fmt.Sprintf("%s (code %d)", apiErr.Message, apiErr.Code))
	}
	return strings.Join(parts, "; ")
}

// requestExecutor is a function that executes an HTTP request
type requestExecutor func(*req.Request, string) (*req.Response, error)

// doRequest handles common HTTP request logic
func (c *Client) doRequest(ctx context.Context, method, path string, result any, executor requestExecutor) error {
	if c == nil || c.Client == nil {
		return fmt.Errorf("API client is not initialized")
	}

	var urlBuilder strings.Builder
	urlBuilder.Grow(len(c.BaseURL) + len(path))
	urlBuilder.WriteString(c.BaseURL)
	urlBuilder.WriteString(path)
	fullURL := urlBuilder.String()

	log.DebugH2("%s %s", method, fullURL)

	request := c.Client.R().SetContext(ctx).SetBearerAuthToken(c.Token)
	resp, err := executor(request, fullURL)
	if err != nil {
		return errors.Wrapf(errors.ErrAPIConnection, "%s %s: %v", method, fullURL, err)
	}

	switch resp.StatusCode {
	case 401, 403:
		return errors.Wrapf(errors.ErrInvalidToken, "status %d", resp.StatusCode)
	case 429:
		return errors.ErrRateLimited
	}

	var env envelope
	if err := resp.UnmarshalJson(&env); err != nil {
		return errors.Wrapf(errors.ErrAPIResponse, "status %d: %v", resp.StatusCode, err)
	}
	if !env.Success {
		return errors.Wrapf(errors.ErrAPIResponse, "%s", env.errorString())
	}

	if result != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, result); err != nil {
			return errors.Wrapf(errors.ErrAPIResponse, "decoding result: %v", err)
		}
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	return c.doRequest(ctx, "GET", path, result, func(r *req.Request, url string) (*req.Response, error) {
		return r.Get(url)
	})
}

func (c *Client) post(ctx context.Context, path string, body any, result any) error {
	return c.doRequest(ctx, "POST", path, result, func(r *req.Request, url string) (*req.Response, error) {
		if body != nil {
			r.SetBodyJsonMarshal(body)
		}
		return r.Post(url)
	})
}

func (c *Client) delete(ctx context.Context, path string, result any) error {
	return c.doRequest(ctx, "DELETE", path, result, func(r *req.Request, url string) (*req.Response, error) {
		return r.Delete(url)
	})
}

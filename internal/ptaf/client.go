// Package ptaf is a small client for the WAF management REST API
// (/api/ptaf/v4). It covers the verbs the backup and restore runs need:
// JSON GET/POST/PATCH, raw GET and multipart POST, all authenticated with a
// bearer token obtained from Authenticate.
package ptaf

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"

	"github.com/edvin/wafbackup/internal/config"
	"github.com/edvin/wafbackup/internal/metrics"
)

type Client struct {
	BaseURL     string
	Username    string
	Password    string
	Fingerprint string
	// Retries is the number of attempts for GET requests. Anything that
	// changes tenant state is sent exactly once.
	Retries    uint
	HTTPClient *http.Client

	logger zerolog.Logger
	token  string
}

type Response struct {
	StatusCode int
	Body       json.RawMessage
}

// StatusError is returned for every response with status >= 400.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// IsStatus reports whether err carries an API response with the given status.
func IsStatus(err error, status int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == status
}

func NewClient(baseURL string, tenant config.Tenant, logger zerolog.Logger) *Client {
	return &Client{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		Username:    tenant.Username,
		Password:    tenant.Password,
		Fingerprint: "testuser",
		Retries:     1,
		HTTPClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger.With().Str("component", "ptaf-client").Str("base_url", baseURL).Logger(),
	}
}

// NewFromConfig builds a client for one tenant using the run-wide transport
// settings (TLS, timeout, retries, fingerprint).
func NewFromConfig(cfg *config.Config, tenant config.Tenant, logger zerolog.Logger) (*Client, error) {
	tlsConfig, err := cfg.TLS()
	if err != nil {
		return nil, err
	}

	c := NewClient(tenant.BaseURL(), tenant, logger)
	c.Fingerprint = cfg.Fingerprint
	c.Retries = uint(cfg.HTTPRetries)
	c.HTTPClient = &http.Client{
		Timeout:   cfg.HTTPTimeout,
		Transport: &http.Transport{TLSClientConfig: tlsConfig, Proxy: http.ProxyFromEnvironment},
	}
	return c, nil
}

// Token returns the bearer token obtained by Authenticate.
func (c *Client) Token() string {
	return c.token
}

// Authenticate exchanges username and password for an access token. It must
// be called before the client is shared between goroutines; the token is not
// refreshed, so a run that outlives it fails with 401.
func (c *Client) Authenticate(ctx context.Context) error {
	payload := map[string]string{
		"username":    c.Username,
		"password":    c.Password,
		"fingerprint": c.Fingerprint,
	}

	resp, err := c.do(ctx, http.MethodPost, "/auth/refresh_tokens", payload)
	if err != nil {
		return fmt.Errorf("authenticate %s: %w", c.Username, err)
	}

	var result struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return fmt.Errorf("decode auth response: %w", err)
	}
	if result.AccessToken == "" {
		return fmt.Errorf("authenticate %s: no access_token in response", c.Username)
	}

	c.token = result.AccessToken
	c.logger.Debug().Str("username", c.Username).Msg("authenticated")
	return nil
}

func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	var resp *Response
	err := retry.Do(
		func() error {
			var err error
			resp, err = c.do(ctx, http.MethodGet, path, nil)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(max(c.Retries, 1)),
		retry.Delay(500*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn().Err(err).Str("path", path).Uint("attempt", n+1).Msg("retrying request")
		}),
	)
	return resp, err
}

// GetJSON fetches path and decodes the response body into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	resp, err := c.Get(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// GetText fetches path and returns the raw body, for endpoints serving files.
func (c *Client) GetText(ctx context.Context, path string) (string, error) {
	resp, err := c.Get(ctx, path)
	if err != nil {
		return "", err
	}
	return string(resp.Body), nil
}

func (c *Client) PostJSON(ctx context.Context, path string, body any) (*Response, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

func (c *Client) PatchJSON(ctx context.Context, path string, body any) (*Response, error) {
	return c.do(ctx, http.MethodPatch, path, body)
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*Response, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	contentType := ""
	if body != nil {
		contentType = "application/json"
	}
	return c.send(ctx, method, path, reqBody, contentType)
}

func (c *Client) send(ctx context.Context, method, path string, reqBody io.Reader, contentType string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		metrics.HTTPRequests.WithLabelValues(method, "error").Inc()
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	metrics.HTTPRequests.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	r := &Response{
		StatusCode: resp.StatusCode,
		Body:       json.RawMessage(respBody),
	}

	if resp.StatusCode >= 400 {
		return r, &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return r, nil
}

func (c *Client) url(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.BaseURL + path
}

// retryable keeps client errors final; transport failures and 5xx may be retried.
func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Items extracts the "items" array from a collection response.
func (r *Response) Items() (json.RawMessage, error) {
	var page struct {
		Items json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(r.Body, &page); err != nil {
		return nil, fmt.Errorf("parse collection response: %w", err)
	}
	return page.Items, nil
}

// List fetches a collection endpoint and decodes its items into a slice of T.
func List[T any](ctx context.Context, c *Client, path string) ([]T, error) {
	resp, err := c.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	items, err := resp.Items()
	if err != nil {
		return nil, fmt.Errorf("parse items from %s: %w", path, err)
	}
	var out []T
	if len(items) == 0 || string(items) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(items, &out); err != nil {
		return nil, fmt.Errorf("parse items from %s: %w", path, err)
	}
	return out, nil
}

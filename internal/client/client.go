// Package client talks to the secret API over HTTP. It implements
// envelope.Remote.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"github.com/smallwat3r/secretlink/internal/domain"
	"github.com/smallwat3r/secretlink/internal/envelope"
)

var _ envelope.Remote = (*Client)(nil)

// maxResponseSize bounds how much of a response body is read.
const maxResponseSize = domain.MaxRequestBodySize

// APIError is a non-2xx response that does not map to a domain error.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

type Client struct {
	baseURL string
	http    *retryablehttp.Client
	// consume sends requests that can use up the record or an attempt.
	consume *retryablehttp.Client
}

type Option func(*retryablehttp.Client)

// WithRetry sets the retry budget and the minimum wait between attempts.
func WithRetry(max int, wait time.Duration) Option {
	return func(c *retryablehttp.Client) {
		c.RetryMax = max
		c.RetryWaitMin = wait
		c.RetryWaitMax = 4 * wait
	}
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *retryablehttp.Client) {
		c.HTTPClient.Timeout = d
	}
}

// WithLogger routes retry logging to l.
func WithLogger(l zerolog.Logger) Option {
	return func(c *retryablehttp.Client) {
		c.Logger = leveledLogger{l}
	}
}

func New(baseURL string, opts ...Option) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    newRetryClient(checkRetry, opts),
		consume: newRetryClient(checkConsumeRetry, opts),
	}
}

func newRetryClient(policy retryablehttp.CheckRetry, opts []Option) *retryablehttp.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = 15 * time.Second
	rc.Logger = nil
	rc.CheckRetry = policy
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	for _, opt := range opts {
		opt(rc)
	}
	return rc
}

// checkRetry retries connection failures and gateway errors only. Any
// other response is a definitive answer from the store.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	switch resp.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true, nil
	}
	return false, nil
}

// checkConsumeRetry is the policy for fetch and claim. The server may
// have consumed the record or counted a guess before a timeout or a
// gateway error reached us, so only a 503 from the API itself, sent when
// the store failed before touching anything, is retried.
func checkConsumeRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return false, nil
	}
	return resp.StatusCode == http.StatusServiceUnavailable, nil
}

func (c *Client) Create(ctx context.Context, env domain.Envelope) (domain.CreateRes, error) {
	var res domain.CreateRes
	err := c.do(ctx, c.http, http.MethodPost, "/api/secret", domain.CreateReq{
		Ciphertext:       env.Ciphertext,
		PasswordVerifier: env.PasswordVerifier,
	}, &res)
	return res, err
}

func (c *Client) Fetch(ctx context.Context, id string) (domain.Envelope, error) {
	var res domain.FetchRes
	err := c.do(ctx, c.consume, http.MethodGet, "/api/secret?"+url.Values{"id": {id}}.Encode(), nil, &res)
	if err != nil {
		return domain.Envelope{}, err
	}
	return domain.Envelope{Ciphertext: res.Ciphertext, PasswordVerifier: res.PasswordVerifier}, nil
}

func (c *Client) Claim(ctx context.Context, id, password string) (domain.Envelope, error) {
	var res domain.FetchRes
	err := c.do(ctx, c.consume, http.MethodPost, "/api/secret/claim", domain.ClaimReq{ID: id, Password: password}, &res)
	if err != nil {
		return domain.Envelope{}, err
	}
	return domain.Envelope{Ciphertext: res.Ciphertext}, nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	var res domain.DeleteRes
	return c.do(ctx, c.http, http.MethodDelete, "/api/secret", domain.DeleteReq{ID: id}, &res)
}

// Info returns the server's gating policy.
func (c *Client) Info(ctx context.Context) (domain.InfoRes, error) {
	var res domain.InfoRes
	err := c.do(ctx, c.http, http.MethodGet, "/api/info", nil, &res)
	return res, err
}

func (c *Client) do(ctx context.Context, hc *retryablehttp.Client, method, path string, body, out any) error {
	var payload any
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = data
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := hc.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%s %s: %w: %w", method, path, domain.ErrTransient, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%w: read response: %w", domain.ErrTransient, err)
	}
	if resp.StatusCode >= 300 {
		return responseError(resp.StatusCode, data)
	}
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// responseError maps an error response back onto the domain errors the
// server derived it from.
func responseError(status int, body []byte) error {
	var res domain.ErrorRes
	if err := json.Unmarshal(body, &res); err != nil || res.Error == "" {
		res.Error = http.StatusText(status)
	}

	switch {
	case status == http.StatusNotFound:
		return domain.ErrNotFound
	case status == http.StatusUnauthorized && res.RemainingAttempts != nil:
		return &domain.AttemptError{Remaining: *res.RemainingAttempts}
	case status == http.StatusUnauthorized:
		return domain.ErrPasswordRequired
	case status == http.StatusGone:
		return domain.ErrLockedOut
	case status == http.StatusRequestEntityTooLarge:
		return domain.ErrSecretTooLarge
	case status >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %s", domain.ErrTransient, res.Error)
	default:
		return &APIError{StatusCode: status, Message: res.Error}
	}
}

// IsRateLimited reports whether err is a 429 from the server.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests
}

// leveledLogger adapts zerolog to retryablehttp.LeveledLogger.
type leveledLogger struct {
	l zerolog.Logger
}

func (l leveledLogger) Error(msg string, kv ...any) { l.l.Error().Fields(kv).Msg(msg) }
func (l leveledLogger) Info(msg string, kv ...any)  { l.l.Info().Fields(kv).Msg(msg) }
func (l leveledLogger) Debug(msg string, kv ...any) { l.l.Debug().Fields(kv).Msg(msg) }
func (l leveledLogger) Warn(msg string, kv ...any)  { l.l.Warn().Fields(kv).Msg(msg) }

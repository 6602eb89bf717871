// Package remote is a thin request/response wrapper around the storefront
// backend's cart, wishlist and coupon resources. Pure I/O: it never mutates
// local state, callers do.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const defaultTimeout = 10 * time.Second

// TokenSource supplies the bearer token for authenticated calls and can
// refresh it once when the backend answers 401 mid-operation.
type TokenSource interface {
	Token() string
	Refresh(ctx context.Context) error
}

// Client talks to the storefront backend. All calls go through a circuit
// breaker so a flapping backend fails fast instead of piling up requests.
type Client struct {
	base    string
	httpc   *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	tokens  TokenSource
	log     logrus.FieldLogger
}

func NewClient(baseURL string, tokens TokenSource, log logrus.FieldLogger) *Client {
	settings := gobreaker.Settings{
		Name:    "remote-store",
		Timeout: 15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// only transport/5xx failures count against the breaker
			return err == nil || !IsTransient(err)
		},
	}

	return &Client{
		base: baseURL,
		httpc: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: gobreaker.NewCircuitBreaker[[]byte](settings),
		tokens:  tokens,
		log:     log,
	}
}

// SetHTTPClient replaces the underlying HTTP client (tests, custom transports).
func (c *Client) SetHTTPClient(httpc *http.Client) {
	c.httpc = httpc
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (e errorResponse) text() string {
	if e.Error != "" {
		return e.Error
	}
	return e.Message
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	return c.breaker.Execute(func() ([]byte, error) {
		data, err := c.roundTrip(ctx, method, path, query, body)
		if err == nil {
			return data, nil
		}

		// one credential refresh on 401, then a single replay
		if errors.Is(err, ErrUnauthorized) && c.tokens != nil {
			if refreshErr := c.tokens.Refresh(ctx); refreshErr != nil {
				c.log.WithError(refreshErr).Warn("token refresh failed")
				return nil, ErrUnauthorized
			}
			return c.roundTrip(ctx, method, path, query, body)
		}
		return nil, err
	})
}

func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request failed: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("build request failed: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response failed: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return data, nil
	}

	var errResp errorResponse
	_ = json.Unmarshal(data, &errResp)

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case http.StatusNotFound:
		return nil, ErrNotFound
	case http.StatusConflict:
		return nil, &ConflictError{Message: errResp.text()}
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return nil, &ValidationError{Message: errResp.text()}
	default:
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
}

// Package clients provides the shared HTTP plumbing for Tickflow's REST
// connectors: a pooled HTTP client with token-bucket rate limiting and
// exponential retry for transient failures.
package clients

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/tickflow/tickflow/pkg/errors"
	"github.com/tickflow/tickflow/pkg/logger"
)

// HTTPConfig configures the HTTP client.
type HTTPConfig struct {
	MaxIdleConns        int           `json:"max_idle_conns"`
	MaxIdleConnsPerHost int           `json:"max_idle_conns_per_host"`
	IdleConnTimeout     time.Duration `json:"idle_conn_timeout"`
	DialTimeout         time.Duration `json:"dial_timeout"`
	TLSHandshakeTimeout time.Duration `json:"tls_handshake_timeout"`
	RequestTimeout      time.Duration `json:"request_timeout"`
	KeepAlive           time.Duration `json:"keep_alive"`
	EnableHTTP2         bool          `json:"enable_http2"`

	// RateLimit is requests per second across all calls through this
	// client; RateBurst is the instantaneous allowance. Zero disables
	// limiting.
	RateLimit float64 `json:"rate_limit"`
	RateBurst int     `json:"rate_burst"`

	// Retry overrides the retry policy for transient failures; nil
	// selects DefaultRetryPolicy.
	Retry *RetryPolicy `json:"-"`
}

// DefaultHTTPConfig returns defaults tuned for polite API consumption.
func DefaultHTTPConfig() *HTTPConfig {
	return &HTTPConfig{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialTimeout:         30 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		RequestTimeout:      30 * time.Second,
		KeepAlive:           30 * time.Second,
		EnableHTTP2:         true,
		RateLimit:           5.0,
		RateBurst:           5,
	}
}

// HTTPClient wraps net/http with connection pooling, rate limiting and
// retry. One instance is meant to be shared by all requests of a
// connector.
type HTTPClient struct {
	config      *HTTPConfig
	logger      *zap.Logger
	httpClient  *http.Client
	rateLimiter RateLimiter
	retry       *RetryPolicy
}

// NewHTTPClient creates a client from the given config; nil selects
// DefaultHTTPConfig.
func NewHTTPClient(config *HTTPConfig, log *zap.Logger) *HTTPClient {
	if config == nil {
		config = DefaultHTTPConfig()
	}
	if log == nil {
		log = logger.Get()
	}
	retry := config.Retry
	if retry == nil {
		retry = DefaultRetryPolicy()
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   config.DialTimeout,
			KeepAlive: config.KeepAlive,
		}).DialContext,
		MaxIdleConns:        config.MaxIdleConns,
		MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
		IdleConnTimeout:     config.IdleConnTimeout,
		TLSHandshakeTimeout: config.TLSHandshakeTimeout,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}
	if config.EnableHTTP2 {
		// Errors here leave a working HTTP/1.1 transport.
		_ = http2.ConfigureTransport(transport)
	}

	client := &HTTPClient{
		config: config,
		logger: log.With(zap.String("component", "http_client")),
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   config.RequestTimeout,
		},
		retry: retry,
	}
	if config.RateLimit > 0 {
		client.rateLimiter = NewTokenBucket(config.RateLimit, config.RateBurst)
	}
	return client
}

// GetJSON fetches url and returns the response body, retrying transient
// failures. Non-2xx statuses are classified so the retry policy can tell
// rate limiting (429) and server errors apart from permanent failures.
func (c *HTTPClient) GetJSON(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	if c.rateLimiter != nil {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeRateLimit, "rate limiter wait aborted")
		}
	}

	var body []byte
	err := c.retry.Execute(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeValidation, "failed to build request")
		}
		req.Header.Set("Accept", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeConnection, "request failed")
		}
		defer resp.Body.Close() //nolint:errcheck

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			// Drain so the connection can be reused.
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			return classifyStatus(resp.StatusCode, url)
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeConnection, "failed to read response body")
		}
		return nil
	})
	if err != nil {
		c.logger.Warn("GET failed", zap.String("url", url), zap.Error(err))
		return nil, err
	}
	return body, nil
}

func classifyStatus(status int, url string) error {
	switch {
	case status == http.StatusTooManyRequests:
		return errors.Newf(errors.ErrorTypeRateLimit, "rate limited by %s", url)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errors.Newf(errors.ErrorTypeAuthentication, "request to %s rejected with status %d", url, status)
	case status == http.StatusRequestTimeout:
		return errors.Newf(errors.ErrorTypeTimeout, "request to %s timed out upstream", url)
	case status >= 500:
		return errors.Newf(errors.ErrorTypeConnection, "server error %d from %s", status, url)
	default:
		return errors.Newf(errors.ErrorTypeData, "unexpected status %d from %s", status, url)
	}
}

// Package client provides a JSON REST client for the platform's paged
// collection endpoints, with retry, count caching and error classification.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/c8y-parallel/pkg/cache"
	"github.com/Sternrassler/c8y-parallel/pkg/logging"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// Client is the platform REST client.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	cache      *cache.Manager
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the tenant, e.g. "https://t12345.cumulocity.com".
	BaseURL string

	// Tenant id. Prefixes the basic auth user and scopes cache keys.
	Tenant string

	// Basic auth credentials. Username is sent as "tenant/username" when
	// Tenant is set.
	Username string
	Password string

	// Token is sent as a bearer token instead of basic auth when set.
	Token string

	// UserAgent header sent with every request.
	UserAgent string

	// Timeout per HTTP attempt.
	Timeout time.Duration

	// Retry picks the policy per error class. Nil means RetryConfigForErrorClass.
	Retry func(ErrorClass) RetryConfig

	// Redis enables the collection count cache. Optional.
	Redis *redis.Client

	// CountTTL is how long a count stays cached when the response carries no
	// caching headers. Zero disables caching for such responses.
	CountTTL time.Duration
}

// DefaultConfig returns a default configuration for baseURL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:   baseURL,
		UserAgent: "c8y-parallel/1.0",
		Timeout:   30 * time.Second,
		CountTTL:  cache.DefaultTTL,
	}
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https (got %q)", cfg.BaseURL)
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry == nil {
		cfg.Retry = RetryConfigForErrorClass
	}

	c := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    base,
		config:     cfg,
		logger:     logging.NewLogger("c8y-client").With().Str("base_url", base.Host).Logger(),
	}
	if cfg.Redis != nil {
		c.cache = cache.NewManager(cfg.Redis)
	}
	return c, nil
}

// Do performs req with authentication and retry. Any non-2xx response is
// returned as an *APIError; on success the caller owns the response body.
//
// Requests with a body are only retried when req.GetBody is set.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	endpoint := req.URL.Path

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	c.authorize(req)

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", req.Method).
		Msg("Executing request")

	var resp *http.Response
	r := retrier{
		configFor: c.config.Retry,
		classify:  classifyErr,
		logger:    c.logger,
	}

	attempts := 0
	err := r.do(ctx, func() error {
		attempt := req
		if attempts > 0 && req.Body != nil {
			if req.GetBody == nil {
				return &APIError{ErrorClass: ErrorClassClient, Message: "request body cannot be replayed"}
			}
			body, err := req.GetBody()
			if err != nil {
				return fmt.Errorf("replay body: %w", err)
			}
			attempt = req.Clone(ctx)
			attempt.Body = body
		}
		attempts++

		var err error
		resp, err = c.httpClient.Do(attempt)
		if err != nil {
			c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
			errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			return err
		}

		requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

		class := classifyStatus(resp.StatusCode)
		if class == "" {
			return nil
		}

		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()

		apiErr := newAPIError(resp, body, class)
		resp = nil
		errorsTotal.WithLabelValues(string(class)).Inc()

		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", apiErr.StatusCode).
			Str("error_class", string(class)).
			Msg("Request error")
		return apiErr
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// authorize sets auth and default headers unless the caller already did.
func (c *Client) authorize(req *http.Request) {
	if req.Header.Get("Authorization") == "" {
		switch {
		case c.config.Token != "":
			req.Header.Set("Authorization", "Bearer "+c.config.Token)
		case c.config.Username != "":
			user := c.config.Username
			if c.config.Tenant != "" && !strings.Contains(user, "/") {
				user = c.config.Tenant + "/" + user
			}
			req.SetBasicAuth(user, c.config.Password)
		}
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
}

// URL resolves path and query against the base URL.
func (c *Client) URL(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = c.baseURL.Path + "/" + strings.TrimLeft(path, "/")
	u.RawQuery = query.Encode()
	return u.String()
}

// GetJSON performs a GET on path and decodes the JSON body into out.
// It returns the response headers for caching decisions.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) (http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(path, query), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return resp.Header, fmt.Errorf("decode %s: %w", path, err)
	}
	return resp.Header, nil
}

// Tenant returns the configured tenant id.
func (c *Client) Tenant() string { return c.config.Tenant }

// Cache returns the count cache, nil when no redis client was configured.
func (c *Client) Cache() *cache.Manager {
	return c.cache
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// Close releases idle connections. The redis client belongs to the caller.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

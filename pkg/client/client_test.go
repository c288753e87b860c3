package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/c8y-parallel/internal/testutil"
	"github.com/redis/go-redis/v9"
)

// setupTestRedis connects to a local Redis and skips the test when none is
// running.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

// newTestClient returns a client against mock with millisecond backoffs.
func newTestClient(t *testing.T, mock *testutil.MockPlatform, redisClient *redis.Client) *Client {
	t.Helper()

	cfg := DefaultConfig(mock.URL())
	cfg.Tenant = "t100"
	cfg.Username = "reader"
	cfg.Password = "secret"
	cfg.Retry = fastRetry
	cfg.Redis = redisClient

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name:    "missing base url",
			cfg:     Config{UserAgent: "test/1.0"},
			wantErr: "base url is required",
		},
		{
			name:    "unsupported scheme",
			cfg:     Config{BaseURL: "ftp://example.com", UserAgent: "test/1.0"},
			wantErr: "must be http or https",
		},
		{
			name:    "missing user agent",
			cfg:     Config{BaseURL: "https://t100.example.com"},
			wantErr: "user-agent is required",
		},
		{
			name: "valid config",
			cfg:  DefaultConfig("https://t100.example.com/"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("New() error = %v", err)
				}
				if c.Cache() != nil {
					t.Error("Cache() should be nil without redis")
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("New() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("https://t100.example.com")

	if cfg.BaseURL != "https://t100.example.com" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.UserAgent == "" {
		t.Error("UserAgent should have a default")
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Timeout)
	}
	if cfg.CountTTL != 30*time.Second {
		t.Errorf("CountTTL = %v, want 30s", cfg.CountTTL)
	}
}

func TestClient_URL(t *testing.T) {
	c, err := New(DefaultConfig("https://t100.example.com/base/"))
	if err != nil {
		t.Fatal(err)
	}

	got := c.URL("/inventory/managedObjects", url.Values{"type": {"c8y_Device"}})
	want := "https://t100.example.com/base/inventory/managedObjects?type=c8y_Device"
	if got != want {
		t.Errorf("URL() = %q, want %q", got, want)
	}
}

func TestDo_Headers(t *testing.T) {
	mock := testutil.NewMockPlatform()
	defer mock.Close()
	mock.SetResponse("/ping", testutil.NewJSONResponse(`{}`))

	c := newTestClient(t, mock, nil)

	var out map[string]any
	if _, err := c.GetJSON(context.Background(), "/ping", nil, &out); err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}

	h := mock.LastRequestHeader
	if h.Get("User-Agent") != c.config.UserAgent {
		t.Errorf("User-Agent = %q", h.Get("User-Agent"))
	}
	if h.Get("Accept") != "application/json" {
		t.Errorf("Accept = %q", h.Get("Accept"))
	}

	req := &http.Request{Header: http.Header{"Authorization": h.Values("Authorization")}}
	user, pass, ok := req.BasicAuth()
	if !ok || user != "t100/reader" || pass != "secret" {
		t.Errorf("BasicAuth() = %q, %q, %v", user, pass, ok)
	}
}

func TestDo_BearerToken(t *testing.T) {
	mock := testutil.NewMockPlatform()
	defer mock.Close()
	mock.SetResponse("/ping", testutil.NewJSONResponse(`{}`))

	cfg := DefaultConfig(mock.URL())
	cfg.Token = "abc"
	cfg.Username = "ignored"
	c, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}

	var out map[string]any
	if _, err := c.GetJSON(context.Background(), "/ping", nil, &out); err != nil {
		t.Fatal(err)
	}
	if got := mock.LastRequestHeader.Get("Authorization"); got != "Bearer abc" {
		t.Errorf("Authorization = %q", got)
	}
}

func TestDo_RetryOnServerError(t *testing.T) {
	mock := testutil.NewMockPlatform()
	defer mock.Close()
	mock.SetSequence("/flaky",
		testutil.NewServerErrorResponse(),
		testutil.NewServerErrorResponse(),
		testutil.NewJSONResponse(`{"ok": true}`),
	)

	c := newTestClient(t, mock, nil)

	var out struct{ OK bool }
	if _, err := c.GetJSON(context.Background(), "/flaky", nil, &out); err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if !out.OK {
		t.Error("expected decoded body")
	}
	if mock.GetRequestCount() != 3 {
		t.Errorf("Expected 3 requests, got %d", mock.GetRequestCount())
	}
}

func TestDo_NoRetryOnClientError(t *testing.T) {
	mock := testutil.NewMockPlatform()
	defer mock.Close()
	mock.SetResponse("/inventory/managedObjects/42", testutil.NewNotFoundResponse("Finding device data from database failed"))

	c := newTestClient(t, mock, nil)

	var out map[string]any
	_, err := c.GetJSON(context.Background(), "/inventory/managedObjects/42", nil, &out)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.ErrorClass != ErrorClassClient {
		t.Errorf("got status %d class %s", apiErr.StatusCode, apiErr.ErrorClass)
	}
	if apiErr.Code != "inventory/notFound" {
		t.Errorf("Code = %q", apiErr.Code)
	}
	if !IsNotFound(err) {
		t.Error("IsNotFound() = false")
	}
	if mock.GetRequestCount() != 1 {
		t.Errorf("Expected 1 request (no retry), got %d", mock.GetRequestCount())
	}
}

func TestDo_RetryOnRateLimit(t *testing.T) {
	mock := testutil.NewMockPlatform()
	defer mock.Close()
	mock.SetSequence("/limited",
		testutil.NewRateLimitResponse(),
		testutil.NewJSONResponse(`{}`),
	)

	c := newTestClient(t, mock, nil)

	var out map[string]any
	if _, err := c.GetJSON(context.Background(), "/limited", nil, &out); err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if mock.GetRequestCount() != 2 {
		t.Errorf("Expected 2 requests, got %d", mock.GetRequestCount())
	}
}

func TestDo_RetryExhausted(t *testing.T) {
	mock := testutil.NewMockPlatform()
	defer mock.Close()
	mock.SetResponse("/down", testutil.NewServerErrorResponse())

	c := newTestClient(t, mock, nil)

	var out map[string]any
	_, err := c.GetJSON(context.Background(), "/down", nil, &out)
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("Expected ErrRetryExhausted, got %v", err)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 500 {
		t.Errorf("last APIError should be wrapped, got %v", err)
	}
	if mock.GetRequestCount() != 3 {
		t.Errorf("Expected 3 requests (MaxAttempts), got %d", mock.GetRequestCount())
	}
}

func TestDo_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	baseURL := server.URL
	server.Close()

	cfg := DefaultConfig(baseURL)
	cfg.Retry = fastRetry
	c, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}

	var out map[string]any
	_, err = c.GetJSON(context.Background(), "/anything", nil, &out)
	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Expected ErrRetryExhausted after network errors, got %v", err)
	}
}

func TestGetJSON_DecodeError(t *testing.T) {
	mock := testutil.NewMockPlatform()
	defer mock.Close()
	mock.SetResponse("/broken", testutil.NewJSONResponse(`{"unterminated`))

	c := newTestClient(t, mock, nil)

	var out map[string]any
	_, err := c.GetJSON(context.Background(), "/broken", nil, &out)
	if err == nil || !strings.Contains(err.Error(), "decode /broken") {
		t.Errorf("Expected decode error, got %v", err)
	}
}

package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// mockCollection is a paged collection served by MockPlatform.
type mockCollection struct {
	itemsKey string
	docs     []Document

	// failures maps a page number to the statuses returned by its next reads.
	failures map[int][]int

	pages  []int
	counts int
}

// MockPlatform is a configurable mock REST server serving paged collections.
type MockPlatform struct {
	server      *httptest.Server
	mu          sync.RWMutex
	handlers    map[string]func(w http.ResponseWriter, r *http.Request)
	collections map[string]*mockCollection

	// Tracking
	RequestCount      int
	LastRequestHeader http.Header
}

// NewMockPlatform creates a new mock server.
func NewMockPlatform() *MockPlatform {
	mock := &MockPlatform{
		handlers:    make(map[string]func(w http.ResponseWriter, r *http.Request)),
		collections: make(map[string]*mockCollection),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		coll := mock.collections[r.URL.Path]
		mock.mu.RUnlock()

		switch {
		case exists:
			handler(w, r)
		case coll != nil:
			mock.serveCollection(w, r, coll)
		default:
			writeJSON(w, http.StatusNotFound, map[string]any{
				"error":   "general/notFound",
				"message": fmt.Sprintf("no resource at %s", r.URL.Path),
			})
		}
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockPlatform) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockPlatform) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockPlatform) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastRequestHeader = nil
	for _, c := range m.collections {
		c.pages = nil
		c.counts = 0
	}
}

// SetHandler sets a custom handler for a specific path.
func (m *MockPlatform) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockPlatform) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetSequence serves the responses in order, repeating the last one.
func (m *MockPlatform) SetSequence(path string, responses ...MockResponse) {
	var mu sync.Mutex
	next := 0
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		resp := responses[min(next, len(responses)-1)]
		next++
		mu.Unlock()

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		w.Write([]byte(resp.Body))
	})
}

// SetCollection serves docs as a paged collection at path.
//
// Supported query parameters: pageSize (default 5), currentPage (1-based,
// default 1) and withTotalPages. Any other parameter filters documents by
// top-level field equality.
func (m *MockPlatform) SetCollection(path, itemsKey string, docs []Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections[path] = &mockCollection{
		itemsKey: itemsKey,
		docs:     docs,
		failures: make(map[int][]int),
	}
}

// FailPage makes the next reads of page answer with statuses, in order.
func (m *MockPlatform) FailPage(path string, page int, statuses ...int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.collections[path]
	c.failures[page] = append(c.failures[page], statuses...)
}

// PageRequests returns the page numbers requested from path, sorted.
// Count requests are not included.
func (m *MockPlatform) PageRequests(path string) []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pages := slices.Clone(m.collections[path].pages)
	slices.Sort(pages)
	return pages
}

// CountRequests returns the number of count requests made to path.
func (m *MockPlatform) CountRequests(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collections[path].counts
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockPlatform) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

func (m *MockPlatform) serveCollection(w http.ResponseWriter, r *http.Request, c *mockCollection) {
	q := r.URL.Query()
	pageSize := intParam(q.Get("pageSize"), 5)
	page := intParam(q.Get("currentPage"), 1)
	withTotal := q.Get("withTotalPages") == "true"

	m.mu.Lock()
	if withTotal {
		c.counts++
	} else {
		c.pages = append(c.pages, page)
	}
	var status int
	if queued := c.failures[page]; !withTotal && len(queued) > 0 {
		status, c.failures[page] = queued[0], queued[1:]
	}
	docs := c.docs
	m.mu.Unlock()

	if status != 0 {
		writeJSON(w, status, map[string]any{
			"error":   "general/internalError",
			"message": fmt.Sprintf("page %d unavailable", page),
		})
		return
	}

	matched := make([]Document, 0, len(docs))
	for _, d := range docs {
		if matches(d, q) {
			matched = append(matched, d)
		}
	}

	start := min((page-1)*pageSize, len(matched))
	end := min(start+pageSize, len(matched))

	stats := map[string]any{"pageSize": pageSize, "currentPage": page}
	if withTotal {
		stats["totalPages"] = (len(matched) + pageSize - 1) / pageSize
	}

	writeJSON(w, http.StatusOK, map[string]any{
		c.itemsKey:   matched[start:end],
		"statistics": stats,
	})
}

var pagingParams = map[string]bool{"pageSize": true, "currentPage": true, "withTotalPages": true}

func matches(d Document, q map[string][]string) bool {
	for key, values := range q {
		if pagingParams[key] {
			continue
		}
		if !slices.Contains(values, fmt.Sprint(d[key])) {
			return false
		}
	}
	return true
}

func intParam(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// NewJSONResponse creates a standard 200 OK JSON response.
func NewJSONResponse(data string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "general/tooManyRequests", "message": "Too many requests"}`,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "general/internalError", "message": "Internal server error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

// NewNotFoundResponse creates a 404 response with a platform error body.
func NewNotFoundResponse(message string) MockResponse {
	body, _ := json.Marshal(map[string]string{"error": "inventory/notFound", "message": message})
	return MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       string(body),
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

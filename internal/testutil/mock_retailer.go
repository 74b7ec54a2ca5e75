// Package testutil provides testing utilities for the price gateway.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Upstream paths served by MockRetailer, relative to URL().
const (
	PathToken     = "/connect/oauth2/token"
	PathLocations = "/locations"
	PathProducts  = "/products"

	apiPrefix = "/v1"
)

// Canned data served by default.
const (
	TestZip         = "85016"
	TestStoreID     = "01400943"
	TestUPC         = "012345678905"
	TestAccessToken = "test-access-token"
)

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockRetailer is a configurable mock of the retailer API: OAuth token,
// store locator and product search.
type MockRetailer struct {
	server *httptest.Server

	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc
	counts   map[string]int
	stores   map[string]string
	products map[string]string

	lastHeader http.Header
	lastQuery  url.Values
}

// NewMockRetailer creates a mock retailer knowing TestZip -> TestStoreID and
// TestUPC at 3.49 with no promotion.
func NewMockRetailer() *MockRetailer {
	mock := &MockRetailer{
		handlers: make(map[string]http.HandlerFunc),
		counts:   make(map[string]int),
		stores:   map[string]string{TestZip: TestStoreID},
		products: map[string]string{
			TestUPC: ProductJSON(TestUPC, "Kroger", "Kroger 2% Reduced Fat Milk", "3.49", "0"),
		},
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, apiPrefix)

		mock.mu.Lock()
		mock.counts[path]++
		mock.lastHeader = r.Header.Clone()
		mock.lastQuery = r.URL.Query()
		handler, exists := mock.handlers[path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		switch path {
		case PathToken:
			mock.tokenHandler(w, r)
		case PathLocations:
			mock.locationsHandler(w, r)
		case PathProducts:
			mock.productsHandler(w, r)
		default:
			writeJSON(w, http.StatusNotFound, `{"errors":{"reason":"not found"}}`)
		}
	}))

	return mock
}

// URL returns the API base URL to configure the client with.
func (m *MockRetailer) URL() string {
	return m.server.URL + apiPrefix
}

// Close shuts down the mock server.
func (m *MockRetailer) Close() {
	m.server.Close()
}

// Reset clears request counters and custom handlers.
func (m *MockRetailer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts = make(map[string]int)
	m.handlers = make(map[string]http.HandlerFunc)
	m.lastHeader = nil
	m.lastQuery = nil
}

// LastRequestHeader returns the header of the most recent request.
func (m *MockRetailer) LastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastHeader.Clone()
}

// LastQuery returns the query of the most recent request.
func (m *MockRetailer) LastQuery() url.Values {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastQuery
}

// SetHandler overrides the handler for path (e.g. PathLocations).
func (m *MockRetailer) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for path.
func (m *MockRetailer) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		writeJSON(w, resp.StatusCode, resp.Body)
	})
}

// ClearHandler restores the default handler for path.
func (m *MockRetailer) ClearHandler(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, path)
}

// SetStore makes zip resolve to storeID. An empty storeID removes the store.
func (m *MockRetailer) SetStore(zip, storeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if storeID == "" {
		delete(m.stores, zip)
		return
	}
	m.stores[zip] = storeID
}

// SetProduct registers the product object returned for upc. An empty body
// removes the product.
func (m *MockRetailer) SetProduct(upc, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if body == "" {
		delete(m.products, upc)
		return
	}
	m.products[upc] = body
}

// RequestCount returns the number of requests made to path.
func (m *MockRetailer) RequestCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counts[path]
}

// TotalRequests returns the number of requests made to any path.
func (m *MockRetailer) TotalRequests() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, n := range m.counts {
		total += n
	}
	return total
}

func (m *MockRetailer) tokenHandler(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := r.BasicAuth(); !ok || r.Method != http.MethodPost {
		writeJSON(w, http.StatusUnauthorized, `{"error":"invalid_client"}`)
		return
	}
	if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "client_credentials" {
		writeJSON(w, http.StatusBadRequest, `{"error":"unsupported_grant_type"}`)
		return
	}
	writeJSON(w, http.StatusOK, fmt.Sprintf(`{"access_token":%q,"expires_in":1800,"token_type":"bearer"}`, TestAccessToken))
}

func (m *MockRetailer) authorized(w http.ResponseWriter, r *http.Request) bool {
	if r.Header.Get("Authorization") != "Bearer "+TestAccessToken {
		writeJSON(w, http.StatusUnauthorized, `{"errors":{"reason":"invalid token"}}`)
		return false
	}
	return true
}

func (m *MockRetailer) locationsHandler(w http.ResponseWriter, r *http.Request) {
	if !m.authorized(w, r) {
		return
	}

	m.mu.RLock()
	storeID, ok := m.stores[r.URL.Query().Get("filter.zipCode.near")]
	m.mu.RUnlock()

	if !ok {
		writeJSON(w, http.StatusOK, `{"data":[],"meta":{"pagination":{"total":0}}}`)
		return
	}
	writeJSON(w, http.StatusOK, fmt.Sprintf(`{"data":[{"locationId":%q,"chain":"KROGER"}]}`, storeID))
}

func (m *MockRetailer) productsHandler(w http.ResponseWriter, r *http.Request) {
	if !m.authorized(w, r) {
		return
	}

	query := r.URL.Query()
	upc := query.Get("filter.term")
	if upc == "" {
		upc = query.Get("filter.productId")
	}

	m.mu.RLock()
	body, ok := m.products[upc]
	m.mu.RUnlock()

	if !ok || query.Get("filter.locationId") == "" {
		writeJSON(w, http.StatusOK, `{"data":[]}`)
		return
	}
	writeJSON(w, http.StatusOK, `{"data":[`+body+`]}`)
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if body != "" {
		_, _ = w.Write([]byte(body))
	}
}

// ProductJSON builds a product search record with one item. regular and promo
// are raw JSON values; pass "" to omit a price field.
func ProductJSON(upc, brand, description, regular, promo string) string {
	price := map[string]json.RawMessage{}
	if regular != "" {
		price["regular"] = json.RawMessage(regular)
	}
	if promo != "" {
		price["promo"] = json.RawMessage(promo)
	}

	record := map[string]any{
		"productId":   upc,
		"upc":         upc,
		"description": description,
		"items":       []any{map[string]any{"price": price}},
	}
	if brand != "" {
		record["brand"] = brand
	}

	data, err := json.Marshal(record)
	if err != nil {
		panic(err)
	}
	return string(data)
}

// NewRateLimitResponse creates a 429 response with a Retry-After header.
func NewRateLimitResponse(retryAfter time.Duration) MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"errors":{"reason":"rate limit exceeded"}}`,
		Headers: map[string]string{
			"Retry-After": fmt.Sprintf("%d", int(retryAfter.Seconds())),
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"errors":{"reason":"internal server error"}}`,
	}
}

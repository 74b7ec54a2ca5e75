package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/price-getter/internal/app"
	"github.com/Sternrassler/price-getter/internal/config"
	"github.com/Sternrassler/price-getter/internal/testutil"
	"github.com/Sternrassler/price-getter/pkg/product"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(baseURL string) config.Config {
	return config.Config{
		ClientID:              "id",
		ClientSecret:          "secret",
		Scope:                 "product.compact",
		BaseURL:               baseURL,
		UserAgent:             "priceGetter/1.0",
		RetailerName:          "Kroger",
		Port:                  "4000",
		UpstreamTimeout:       10 * time.Second,
		UpstreamMaxAttempts:   1,
		SearchFilter:          product.FilterTerm,
		LocationCacheTTL:      24 * time.Hour,
		TokenSafetyMargin:     60 * time.Second,
		MemoryCacheMaxEntries: 100,
		BatchMaxConcurrency:   2,
		LogLevel:              "info",
	}
}

type testEnv struct {
	mock    *testutil.MockRetailer
	handler http.Handler
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	mock := testutil.NewMockRetailer()
	t.Cleanup(mock.Close)

	cfg := testConfig(mock.URL())
	if mutate != nil {
		mutate(&cfg)
	}

	a, err := app.New(context.Background(), cfg, app.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	srv := New(Config{
		Addr:            cfg.Addr(),
		RetailerName:    cfg.RetailerName,
		UpstreamTimeout: cfg.UpstreamTimeout,
	}, a.Prices, a.Batch, a.Ready)

	return &testEnv{mock: mock, handler: srv.Handler()}
}

func (e *testEnv) get(t *testing.T, target string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

	var body map[string]interface{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	}
	return rec, body
}

func TestPrice_Success(t *testing.T) {
	env := newTestEnv(t, nil)

	rec, _ := env.get(t, "/api/price?upc=012345678905&zip=85016")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`{"upc":"012345678905","brand":"Kroger","description":"Kroger 2% Reduced Fat Milk","price":{"regular":3.49,"promo":0}}`,
		rec.Body.String())
	assert.Equal(t, testutil.TestStoreID, env.mock.LastQuery().Get("filter.locationId"))
	assert.Equal(t, "012345678905", env.mock.LastQuery().Get("filter.term"))
}

func TestPrice_MissingParameters(t *testing.T) {
	tests := []string{
		"/api/price?zip=85016",
		"/api/price?upc=012345678905",
		"/api/price",
		"/api/price?upc=&zip=85016",
	}

	for _, target := range tests {
		t.Run(target, func(t *testing.T) {
			env := newTestEnv(t, nil)

			rec, body := env.get(t, target)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "Missing required query parameters: upc and zip.", body["error"])
			assert.Zero(t, env.mock.TotalRequests(), "no upstream call on validation failure")
		})
	}
}

func TestPrice_NoStore(t *testing.T) {
	env := newTestEnv(t, nil)

	rec, body := env.get(t, "/api/price?upc=012345678905&zip=00000")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "No Kroger store found for ZIP code 00000.", body["error"])
	assert.NotContains(t, body, "details")
	assert.Zero(t, env.mock.RequestCount(testutil.PathProducts))
}

func TestPrice_ProductNotFound(t *testing.T) {
	env := newTestEnv(t, nil)

	rec, body := env.get(t, "/api/price?upc=999999999999&zip=85016")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t,
		"Product with UPC 999999999999 not found at the determined Kroger store (Location ID: 01400943).",
		body["error"])
}

func TestPrice_ProductWithoutItems(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mock.SetProduct("111111111111", `{"upc":"111111111111","description":"Ghost","items":[]}`)

	rec, body := env.get(t, "/api/price?upc=111111111111&zip=85016")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, body["error"], "111111111111")
	assert.Contains(t, body["error"], testutil.TestStoreID)
}

func TestPrice_LocatorNetworkError(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mock.SetHandler(testutil.PathLocations, func(w http.ResponseWriter, r *http.Request) {
		conn, _, err := w.(http.Hijacker).Hijack()
		if err == nil {
			conn.Close()
		}
	})

	rec, body := env.get(t, "/api/price?upc=012345678905&zip=85016")

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "Failed to retrieve data from Kroger.", body["error"])
	assert.NotEmpty(t, body["details"])
}

func TestPrice_UpstreamFailures(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		resp    testutil.MockResponse
		details string
	}{
		{
			name:    "token rejected",
			path:    testutil.PathToken,
			resp:    testutil.MockResponse{StatusCode: http.StatusUnauthorized, Body: `{"error":"invalid_client"}`},
			details: `{"error":"invalid_client"}`,
		},
		{
			name:    "locator 500",
			path:    testutil.PathLocations,
			resp:    testutil.NewServerErrorResponse(),
			details: `{"errors":{"reason":"internal server error"}}`,
		},
		{
			name:    "products 503",
			path:    testutil.PathProducts,
			resp:    testutil.MockResponse{StatusCode: http.StatusServiceUnavailable, Body: `maintenance`},
			details: "maintenance",
		},
		{
			name:    "rate limited",
			path:    testutil.PathProducts,
			resp:    testutil.NewRateLimitResponse(0),
			details: `{"errors":{"reason":"rate limit exceeded"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			env.mock.SetResponse(tt.path, tt.resp)

			rec, body := env.get(t, "/api/price?upc=012345678905&zip=85016")

			assert.Equal(t, http.StatusBadGateway, rec.Code)
			assert.Equal(t, "Failed to retrieve data from Kroger.", body["error"])
			assert.Equal(t, tt.details, body["details"])
		})
	}
}

func TestPrice_Timeout(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.UpstreamTimeout = 100 * time.Millisecond })
	env.mock.SetResponse(testutil.PathProducts, testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"data":[]}`,
		Delay:      500 * time.Millisecond,
	})

	rec, body := env.get(t, "/api/price?upc=012345678905&zip=85016")

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "Failed to retrieve data from Kroger.", body["error"])
	assert.Equal(t, "request to Kroger timed out after 100ms", body["details"])
	assert.Equal(t, 1, env.mock.RequestCount(testutil.PathProducts), "timeouts are not retried")
}

func TestPrice_LocationCachedPriceNot(t *testing.T) {
	env := newTestEnv(t, nil)

	rec, _ := env.get(t, "/api/price?upc=012345678905&zip=85016")
	require.Equal(t, http.StatusOK, rec.Code)

	// A failing locator cannot affect a cached ZIP.
	env.mock.SetResponse(testutil.PathLocations, testutil.NewServerErrorResponse())
	env.mock.SetProduct(testutil.TestUPC,
		testutil.ProductJSON(testutil.TestUPC, "Kroger", "Kroger 2% Reduced Fat Milk", "3.79", "2.99"))

	rec, body := env.get(t, "/api/price?upc=012345678905&zip=85016")
	require.Equal(t, http.StatusOK, rec.Code)

	priceBody := body["price"].(map[string]interface{})
	assert.Equal(t, 3.79, priceBody["regular"])
	assert.Equal(t, 2.99, priceBody["promo"])

	assert.Equal(t, 1, env.mock.RequestCount(testutil.PathToken))
	assert.Equal(t, 1, env.mock.RequestCount(testutil.PathLocations))
	assert.Equal(t, 2, env.mock.RequestCount(testutil.PathProducts))
}

func TestPrice_WhitespaceAroundParameters(t *testing.T) {
	env := newTestEnv(t, nil)

	rec, body := env.get(t, "/api/price?upc=%20012345678905&zip=85016%20")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, testutil.TestUPC, body["upc"])
	assert.Equal(t, testutil.TestUPC, env.mock.LastQuery().Get("filter.term"))

	rec, _ = env.get(t, "/api/price?upc=012345678905&zip=85016")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, env.mock.RequestCount(testutil.PathLocations))

	rec, body = env.get(t, "/api/prices?upc=012345678905&zip=%2085016")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, testutil.TestZip, body["zip"])
	assert.Equal(t, 1, env.mock.RequestCount(testutil.PathLocations))
}

func TestPrice_TokenRequestNotRetried(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) { cfg.UpstreamMaxAttempts = 3 })
	env.mock.SetResponse(testutil.PathToken, testutil.NewServerErrorResponse())

	rec, body := env.get(t, "/api/price?upc=012345678905&zip=85016")

	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.NotEmpty(t, body["details"])
	assert.Equal(t, 1, env.mock.RequestCount(testutil.PathToken))
	assert.Zero(t, env.mock.RequestCount(testutil.PathLocations))
}

func TestPrice_TransientLocatorFailureNotCached(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mock.SetResponse(testutil.PathLocations, testutil.NewServerErrorResponse())

	rec, _ := env.get(t, "/api/price?upc=012345678905&zip=85016")
	require.Equal(t, http.StatusBadGateway, rec.Code)

	env.mock.ClearHandler(testutil.PathLocations)

	rec, _ = env.get(t, "/api/price?upc=012345678905&zip=85016")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPrice_RejectedTokenIsRefreshed(t *testing.T) {
	env := newTestEnv(t, nil)

	rec, _ := env.get(t, "/api/price?upc=012345678905&zip=85016")
	require.Equal(t, http.StatusOK, rec.Code)

	env.mock.SetResponse(testutil.PathProducts, testutil.MockResponse{StatusCode: http.StatusUnauthorized, Body: `{"errors":{"reason":"expired"}}`})
	rec, _ = env.get(t, "/api/price?upc=012345678905&zip=85016")
	require.Equal(t, http.StatusBadGateway, rec.Code)

	env.mock.ClearHandler(testutil.PathProducts)
	rec, _ = env.get(t, "/api/price?upc=012345678905&zip=85016")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 2, env.mock.RequestCount(testutil.PathToken))
}

func TestPrice_RateLimitCooldown(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mock.SetResponse(testutil.PathProducts, testutil.NewRateLimitResponse(time.Minute))

	rec, _ := env.get(t, "/api/price?upc=012345678905&zip=85016")
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Equal(t, 1, env.mock.RequestCount(testutil.PathProducts))

	env.mock.ClearHandler(testutil.PathProducts)
	rec, body := env.get(t, "/api/price?upc=012345678905&zip=85016")

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, body["details"], "cooldown")
	assert.Equal(t, 1, env.mock.RequestCount(testutil.PathProducts), "no upstream call during cooldown")
}

func TestPrices_Batch(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mock.SetProduct("000000000002", testutil.ProductJSON("000000000002", "", "Eggs", "2.99", ""))

	rec, _ := env.get(t, "/api/prices?zip=85016&upc=012345678905&upc=999999999999,000000000002")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"zip":"85016",
		"locationId":"01400943",
		"results":[
			{"upc":"012345678905","status":200,"quote":{"upc":"012345678905","brand":"Kroger","description":"Kroger 2% Reduced Fat Milk","price":{"regular":3.49,"promo":0}}},
			{"upc":"999999999999","status":404,"error":"Product with UPC 999999999999 not found at the determined Kroger store (Location ID: 01400943)."},
			{"upc":"000000000002","status":200,"quote":{"upc":"000000000002","brand":"N/A","description":"Eggs","price":{"regular":2.99,"promo":0}}}
		]
	}`, rec.Body.String())
	assert.Equal(t, 1, env.mock.RequestCount(testutil.PathLocations))
	assert.Equal(t, 3, env.mock.RequestCount(testutil.PathProducts))
}

func TestPrices_BatchErrors(t *testing.T) {
	tooMany := "/api/prices?zip=85016" + strings.Repeat("&upc=1", 26)

	tests := []struct {
		name   string
		target string
		status int
		error  string
	}{
		{"missing zip", "/api/prices?upc=1", http.StatusBadRequest, "Missing required query parameters: upc and zip."},
		{"missing upc", "/api/prices?zip=85016", http.StatusBadRequest, "Missing required query parameters: upc and zip."},
		{"too many", tooMany, http.StatusBadRequest, "Too many UPCs: at most 25 per request."},
		{"no store", "/api/prices?zip=00000&upc=1", http.StatusNotFound, "No Kroger store found for ZIP code 00000."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)

			rec, body := env.get(t, tt.target)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.error, body["error"])
		})
	}
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t, nil)

	rec, _ := env.get(t, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec, _ = env.get(t, "/ready")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = env.get(t, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

type panickingPrices struct{}

func (panickingPrices) Lookup(context.Context, string, string) (*product.Quote, error) {
	panic("boom")
}

func (panickingPrices) ResolveStore(context.Context, string) (string, error) {
	return "", errors.New("unused")
}

func (panickingPrices) LookupAt(context.Context, string, string, string) (*product.Quote, error) {
	return nil, errors.New("unused")
}

func TestReadyFailureAndRecover(t *testing.T) {
	srv := New(Config{}, panickingPrices{}, nil, func(context.Context) error {
		return errors.New("redis down")
	})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/price?upc=1&zip=2", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal server error."}`, rec.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/price", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Zero(t, env.mock.TotalRequests())
}

func TestServe_GracefulShutdown(t *testing.T) {
	srv := New(Config{ShutdownTimeout: time.Second}, panickingPrices{}, nil, nil)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, listener) }()

	url := "http://" + listener.Addr().String() + "/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode == http.StatusOK && string(body) == "OK"
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}

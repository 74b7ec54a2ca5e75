// Package metrics exposes the Prometheus registry used by the gateway.
// All metrics are defined in their respective packages (client, cache,
// ratelimit, auth, price) to maintain modularity and avoid circular
// dependencies.
//
// This package provides the /metrics handler and a reference for all
// available metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the gateway.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler serves the default gatherer in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - pricegetter_cache_hits_total{cache, layer} (Counter): Cache hits by cache and layer
//   - pricegetter_cache_misses_total{cache} (Counter): Cache misses
//   - pricegetter_cache_entries{cache} (Gauge): Entries held by in-memory stores
//   - pricegetter_cache_errors_total{operation} (Counter): Cache operation errors
//
// Rate Limit Metrics (pkg/ratelimit):
//   - pricegetter_rate_limit_cooldowns_total (Counter): Cooldowns started from 429 Retry-After
//   - pricegetter_rate_limit_blocks_total (Counter): Requests refused during a cooldown
//
// Upstream Metrics (pkg/client):
//   - pricegetter_upstream_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - pricegetter_upstream_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - pricegetter_upstream_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network, timeout)
//   - pricegetter_upstream_retries_total{error_class} (Counter): Retry attempts by error class
//   - pricegetter_upstream_retry_exhausted_total{error_class} (Counter): Requests that exhausted max attempts
//
// Token Metrics (pkg/auth):
//   - pricegetter_token_refreshes_total{result} (Counter): Token requests (success, error, invalid)
//
// Lookup Metrics (pkg/price):
//   - pricegetter_price_requests_total{outcome} (Counter): Lookups by outcome
//
// Example Prometheus Queries:
//
//   # Location Cache Hit Rate
//   sum(rate(pricegetter_cache_hits_total{cache="location"}[5m])) /
//   (sum(rate(pricegetter_cache_hits_total{cache="location"}[5m])) + sum(rate(pricegetter_cache_misses_total{cache="location"}[5m])))
//
//   # Upstream Failure Rate
//   sum(rate(pricegetter_price_requests_total{outcome=~"upstream_.*"}[5m]))
//
//   # P95 Upstream Latency
//   histogram_quantile(0.95, rate(pricegetter_upstream_request_duration_seconds_bucket[5m]))

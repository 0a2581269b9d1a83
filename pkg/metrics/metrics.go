// Package metrics documents the Prometheus metrics exported by the proxy and
// exposes the registry they are registered with.
//
// Metrics live in the package that produces them (client, quota, pagination,
// server) to keep packages independent; this package only provides the shared
// registry handle and the catalogue below.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer all promauto metrics in this module use.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer backing Handler.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the Prometheus exposition format for Gatherer.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Catalogue
//
// Upstream requests (pkg/client):
//   - marvel_requests_total{endpoint, status} (Counter)
//   - marvel_request_duration_seconds{endpoint} (Histogram)
//   - marvel_errors_total{class} (Counter): client, server, rate_limit, network
//
// Quota (pkg/quota):
//   - marvel_quota_calls_used (Gauge): calls spent today, as last seen in Redis
//   - marvel_quota_blocks_total (Counter)
//   - marvel_quota_throttles_total (Counter)
//
// Aggregation (pkg/pagination):
//   - marvel_aggregation_pages_total{outcome} (Counter): ok, error
//   - marvel_aggregation_entries (Histogram): distinct names per aggregation
//   - marvel_aggregation_duration_seconds (Histogram)
//
// Front end (internal/server):
//   - marvel_http_requests_total{route, status} (Counter)
//
// Example queries:
//
//	# Upstream error ratio
//	sum(rate(marvel_errors_total[5m])) / sum(rate(marvel_requests_total[5m]))
//
//	# Remaining daily budget
//	3000 - marvel_quota_calls_used
//
//	# P95 upstream latency
//	histogram_quantile(0.95, rate(marvel_request_duration_seconds_bucket[5m]))

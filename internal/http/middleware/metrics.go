// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file exposes Prometheus HTTP metrics:
//
//   - paygate_http_requests_total{method,route,status}
//   - paygate_http_request_duration_seconds{method,route}
//   - paygate_http_requests_inflight
//   - paygate_http_errors_total{route,code}: error responses by the stable
//     code handlers record under ErrorCodeKey
//
// Routes are labelled by their template; requests that match no route share
// the "unmatched" label so arbitrary paths cannot grow label cardinality.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// ErrorCodeKey is the Gin context key holding the error code of a failed
// request.
const ErrorCodeKey = "error.code"

var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paygate_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "paygate_http_request_duration_seconds",
			Help: "Duration of HTTP requests in seconds.",
			// Proof verification dominates; pairings take tens of ms.
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "route"},
	)

	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "paygate_http_requests_inflight",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	httpErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paygate_http_errors_total",
			Help: "Error responses by route and error code.",
		},
		[]string{"route", "code"},
	)
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, httpErrors)
}

// Metrics records request counts, latency and error codes.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		status := c.Writer.Status()

		httpReqs.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
		httpLat.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		if code, ok := c.Get(ErrorCodeKey); ok {
			httpErrors.WithLabelValues(route, asString(code)).Inc()
		}
	}
}

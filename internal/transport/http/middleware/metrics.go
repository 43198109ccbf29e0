package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	identifyReqTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "identity",
			Name:      "http_requests_total",
			Help:      "Count of identity API requests by route, method and status",
		},
		[]string{"path", "method", "status"},
	)
	identifyLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "identity",
			Name:      "http_request_duration_seconds",
			Help:      "Latency of identity API requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path", "method"},
	)
)

func init() { prometheus.MustRegister(identifyReqTotal, identifyLatency) }

// Metrics records per-route request counts and latency under the identity_
// namespace. Unmatched routes fall back to the raw URL path.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		identifyReqTotal.WithLabelValues(path, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		identifyLatency.WithLabelValues(path, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}

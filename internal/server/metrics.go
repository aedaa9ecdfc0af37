package server

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	custodiaRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "custodia_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	custodiaRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "custodia_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	custodiaSubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "custodia_ledger_submissions_total",
		Help: "Total evidence registration attempts by outcome.",
	}, []string{"outcome"})

	custodiaVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "custodia_verifications_total",
		Help: "Total evidence verifications by verdict.",
	}, []string{"verdict"})

	custodiaRegistrationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "custodia_registration_duration_seconds",
		Help:    "End-to-end registration latency including confirmation wait.",
		Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 30, 60, 120},
	})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		custodiaRequestsTotal.WithLabelValues(method, path, status).Inc()
		custodiaRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordSubmission records a registration attempt outcome.
func RecordSubmission(outcome string) {
	custodiaSubmissionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRegistration records end-to-end registration latency.
func ObserveRegistration(d time.Duration) {
	custodiaRegistrationDuration.Observe(d.Seconds())
}

// RecordVerification records a verification verdict.
func RecordVerification(verdict string) {
	custodiaVerificationsTotal.WithLabelValues(verdict).Inc()
}

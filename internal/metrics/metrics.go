// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the application collectors. A nil *Metrics records nothing.
type Metrics struct {
	scans        *prometheus.CounterVec
	deliveries   *prometheus.CounterVec
	dispatchRuns *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qrattend_scans_total",
			Help: "QR scans by outcome.",
		}, []string{"outcome"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qrattend_qr_deliveries_total",
			Help: "QR code deliveries by result.",
		}, []string{"result"}),
		dispatchRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qrattend_dispatch_runs_total",
			Help: "Scheduled and manual dispatch runs by result.",
		}, []string{"result"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "qrattend_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(m.scans, m.deliveries, m.dispatchRuns, m.httpDuration)
	return m
}

// ObserveScan counts a scan; outcome is "check_in", "check_out" or a rejection name.
func (m *Metrics) ObserveScan(outcome string) {
	if m == nil {
		return
	}
	m.scans.WithLabelValues(outcome).Inc()
}

// ObserveDelivery counts one QR delivery attempt.
func (m *Metrics) ObserveDelivery(err error) {
	if m == nil {
		return
	}
	result := "sent"
	if err != nil {
		result = "failed"
	}
	m.deliveries.WithLabelValues(result).Inc()
}

// ObserveDispatch counts a dispatch run outcome.
func (m *Metrics) ObserveDispatch(result string) {
	if m == nil {
		return
	}
	m.dispatchRuns.WithLabelValues(result).Inc()
}

// GinMiddleware records request latency labelled by the matched route.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

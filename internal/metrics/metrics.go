// Package metrics exposes Prometheus instrumentation for the service.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "riskd"

var (
	httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests by method, route and status code.",
	}, []string{"method", "route", "status"})

	httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by method and route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "in_flight_requests",
		Help:      "Number of HTTP requests currently being served.",
	})

	decisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "decisions_total",
		Help:      "Risk decisions by level and prediction.",
	}, []string{"risk_level", "prediction"})

	decisionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "decision_duration_seconds",
		Help:      "End-to-end evaluation latency per transaction.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	})

	evaluatorDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "evaluator_duration_seconds",
		Help:      "Per-evaluator latency.",
		Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5},
	}, []string{"evaluator"})

	evaluatorPanics = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "evaluator_panics_total",
		Help:      "Evaluator panics recovered during fan-out.",
	}, []string{"evaluator"})

	flagsRaised = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "flags_raised_total",
		Help:      "Risk flags raised by evaluator.",
	}, []string{"evaluator"})

	mlRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ml",
		Name:      "score_requests_total",
		Help:      "Model scoring outcomes (scored, degraded).",
	}, []string{"outcome"})

	mlScoreDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "ml",
		Name:      "score_duration_seconds",
		Help:      "Model scoring latency including transport.",
		Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1},
	})

	alertsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "alerts",
		Name:      "created_total",
		Help:      "Alerts opened by risk level.",
	}, []string{"risk_level"})

	alertTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "alerts",
		Name:      "transitions_total",
		Help:      "Alert status transitions.",
	}, []string{"from", "to"})

	wsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "realtime",
		Name:      "websocket_connections",
		Help:      "Active websocket subscribers.",
	})
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		httpInFlight,
		decisionsTotal,
		decisionDuration,
		evaluatorDuration,
		evaluatorPanics,
		flagsRaised,
		mlRequestsTotal,
		mlScoreDuration,
		alertsCreated,
		alertTransitions,
		wsConnections,
	)
}

// Middleware records request counts, latency and in-flight gauge per route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpInFlight.Inc()
		start := time.Now()

		c.Next()

		httpInFlight.Dec()
		status := strconv.Itoa(c.Writer.Status())
		httpRequestsTotal.WithLabelValues(c.Request.Method, route, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// ObserveDecision records a completed risk decision.
func ObserveDecision(riskLevel, prediction string, d time.Duration) {
	decisionsTotal.WithLabelValues(riskLevel, prediction).Inc()
	decisionDuration.Observe(d.Seconds())
}

// ObserveEvaluator records a single evaluator run.
func ObserveEvaluator(name string, d time.Duration, flagCount int) {
	evaluatorDuration.WithLabelValues(name).Observe(d.Seconds())
	if flagCount > 0 {
		flagsRaised.WithLabelValues(name).Add(float64(flagCount))
	}
}

// EvaluatorPanicked records a recovered evaluator panic.
func EvaluatorPanicked(name string) {
	evaluatorPanics.WithLabelValues(name).Inc()
}

// ObserveMLScore records a model scoring attempt. Outcome is "scored" when
// the provider answered in time and "degraded" otherwise.
func ObserveMLScore(outcome string, d time.Duration) {
	mlRequestsTotal.WithLabelValues(outcome).Inc()
	mlScoreDuration.Observe(d.Seconds())
}

// AlertCreated records a newly opened alert.
func AlertCreated(riskLevel string) {
	alertsCreated.WithLabelValues(riskLevel).Inc()
}

// AlertTransitioned records a successful status transition.
func AlertTransitioned(from, to string) {
	alertTransitions.WithLabelValues(from, to).Inc()
}

// SetWSConnections tracks the realtime subscriber gauge.
func SetWSConnections(n int) {
	wsConnections.Set(float64(n))
}

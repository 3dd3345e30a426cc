package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal tracks total HTTP requests served by the API
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"service", "method", "endpoint", "status"},
	)

	// RequestDuration tracks HTTP request duration
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "endpoint"},
	)

	// AttemptsTotal tracks terminal attempt outcomes
	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "expresspay_attempts_total",
			Help: "Total number of payment attempts by instrument and outcome",
		},
		[]string{"instrument", "outcome", "code"},
	)

	// GatewayRequestDuration tracks gateway round-trip latency
	GatewayRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "expresspay_gateway_request_duration_seconds",
			Help:    "Gateway round-trip duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "status"},
	)

	// ChallengeOutcomes tracks redirect/3DS resolutions
	ChallengeOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "expresspay_challenge_outcomes_total",
			Help: "Total number of resolved redirect/3DS challenges",
		},
		[]string{"outcome"},
	)

	// DecodeAnomalies tracks soft decode problems
	DecodeAnomalies = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "expresspay_decode_anomalies_total",
			Help: "Total number of gateway responses decoded with defaulted fields",
		},
	)

	// CircuitBreakerState tracks circuit breaker state (0=closed, 1=open, 2=half-open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"service", "circuit_name"},
	)

	// CircuitBreakerFailures tracks circuit breaker failures
	CircuitBreakerFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of circuit breaker failures",
		},
		[]string{"service", "circuit_name"},
	)
)

// ObserveGateway records one gateway round-trip.
func ObserveGateway(endpoint string, status int, started time.Time) {
	GatewayRequestDuration.WithLabelValues(endpoint, strconv.Itoa(status)).
		Observe(time.Since(started).Seconds())
}

// PrometheusMiddleware creates a Gin middleware for automatic metrics collection
func PrometheusMiddleware(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		RequestsTotal.WithLabelValues(
			serviceName,
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()

		RequestDuration.WithLabelValues(
			serviceName,
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors. Each instance owns its registry so
// tests can build as many as they need.
type Metrics struct {
	registry *prometheus.Registry

	RequestCounter  *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	QuizSessionsActive  prometheus.Gauge
	QuizEvents          *prometheus.CounterVec
	QuizAccuracy        prometheus.Histogram
	PersistenceFailures *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		RequestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"method", "endpoint"},
		),
		QuizSessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quiz_sessions_active",
			Help: "Live quiz sessions held in memory",
		}),
		QuizEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quiz_events_total",
				Help: "Quiz lifecycle transitions",
			},
			[]string{"event"},
		),
		QuizAccuracy: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "quiz_accuracy_percent",
			Help:    "Accuracy of completed quizzes",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
		PersistenceFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quiz_persistence_failures_total",
				Help: "Store writes that failed and were kept for retry",
			},
			[]string{"operation"},
		),
	}

	m.registry.MustRegister(
		m.RequestCounter,
		m.RequestDuration,
		m.QuizSessionsActive,
		m.QuizEvents,
		m.QuizAccuracy,
		m.PersistenceFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveQuizEvent counts a lifecycle transition such as "started" or "timeout".
func (m *Metrics) ObserveQuizEvent(event string) {
	if m == nil {
		return
	}
	m.QuizEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) ObserveCompletion(accuracy int) {
	if m == nil {
		return
	}
	m.QuizEvents.WithLabelValues("completed").Inc()
	m.QuizAccuracy.Observe(float64(accuracy))
}

func (m *Metrics) ObservePersistenceFailure(operation string) {
	if m == nil {
		return
	}
	m.PersistenceFailures.WithLabelValues(operation).Inc()
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.QuizSessionsActive.Set(float64(n))
}

func (m *Metrics) MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}

		m.RequestCounter.WithLabelValues(
			c.Request.Method,
			endpoint,
			strconv.Itoa(c.Writer.Status()),
		).Inc()

		m.RequestDuration.WithLabelValues(
			c.Request.Method,
			endpoint,
		).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) PrometheusHandler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

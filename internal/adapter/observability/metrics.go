package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	AIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_requests_total",
			Help: "Total number of AI requests by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)
	AIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_request_duration_seconds",
			Help:    "AI request duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"operation"},
	)

	CallsStartedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calls_started_total",
			Help: "Total number of voice calls started",
		},
		[]string{"mode"},
	)
	CallsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "calls_active",
			Help: "Number of voice calls not yet finished",
		},
		[]string{"mode"},
	)
	CallsFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calls_finished_total",
			Help: "Total number of voice calls finished by reason",
		},
		[]string{"mode", "reason"},
	)
	CallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "call_duration_seconds",
			Help:    "Voice call duration from start to finish",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200, 1800},
		},
		[]string{"mode"},
	)

	FeedbackGeneratedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedback_generated_total",
			Help: "Total number of feedback generations by outcome",
		},
		[]string{"outcome"},
	)
	FeedbackScoreHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "feedback_total_score",
			Help:    "Distribution of feedback total scores ([0,100])",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
	)

	CircuitBreakerStateGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"name"},
	)
)

var registerOnce sync.Once

// InitMetrics registers every collector with the default registry. Safe to call more than once.
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			AIRequestsTotal,
			AIRequestDuration,
			CallsStartedTotal,
			CallsActive,
			CallsFinishedTotal,
			CallDuration,
			FeedbackGeneratedTotal,
			FeedbackScoreHistogram,
			CircuitBreakerStateGauge,
		)
	})
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(dur)
	})
}

// ObserveAIRequest records one upstream AI call.
func ObserveAIRequest(operation string, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	AIRequestsTotal.WithLabelValues(operation, outcome).Inc()
	AIRequestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func CallStarted(mode string) {
	CallsStartedTotal.WithLabelValues(mode).Inc()
	CallsActive.WithLabelValues(mode).Inc()
}

func CallFinished(mode, reason string, d time.Duration) {
	CallsActive.WithLabelValues(mode).Dec()
	CallsFinishedTotal.WithLabelValues(mode, reason).Inc()
	if d > 0 {
		CallDuration.WithLabelValues(mode).Observe(d.Seconds())
	}
}

// FeedbackGenerated counts a feedback outcome; score is observed only on success.
func FeedbackGenerated(outcome string, score int) {
	FeedbackGeneratedTotal.WithLabelValues(outcome).Inc()
	if outcome == "ok" && score >= 0 && score <= 100 {
		FeedbackScoreHistogram.Observe(float64(score))
	}
}

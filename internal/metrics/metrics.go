package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "classcard",
			Name:      "ocr_requests_total",
			Help:      "OCR endpoint responses by HTTP status code",
		},
		[]string{"code"},
	)

	roundsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "classcard",
			Name:      "provider_rounds_total",
			Help:      "Upstream calls by provider, model and finish reason",
		},
		[]string{"provider", "model", "finish_reason"},
	)

	roundErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "classcard",
			Name:      "provider_errors_total",
			Help:      "Failed upstream calls by provider and model",
		},
		[]string{"provider", "model"},
	)

	providerLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "classcard",
			Name:      "provider_request_duration_seconds",
			Help:      "Duration of upstream calls by provider and model",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 45, 60, 90},
		},
		[]string{"provider", "model"},
	)

	roundsPerRequest = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "classcard",
			Name:      "ocr_rounds_per_request",
			Help:      "Number of upstream calls needed per OCR request",
			Buckets:   []float64{1, 2, 3, 4, 6, 8},
		},
	)

	registerOnce sync.Once
)

// Init registers collectors. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(requestsTotal, roundsTotal, roundErrors, providerLatency, roundsPerRequest)
	})
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveRequest(code int) { requestsTotal.WithLabelValues(strconv.Itoa(code)).Inc() }

// ObserveRound records one upstream call. An empty finishReason is reported as "none".
func ObserveRound(provider, model, finishReason string, dur time.Duration) {
	if finishReason == "" {
		finishReason = "none"
	}
	roundsTotal.WithLabelValues(provider, model, finishReason).Inc()
	providerLatency.WithLabelValues(provider, model).Observe(dur.Seconds())
}

func ObserveRoundError(provider, model string, dur time.Duration) {
	roundErrors.WithLabelValues(provider, model).Inc()
	providerLatency.WithLabelValues(provider, model).Observe(dur.Seconds())
}

func ObserveRounds(n int) { roundsPerRequest.Observe(float64(n)) }

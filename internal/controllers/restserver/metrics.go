package restserver

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics are registered on a per-controller registry so that several
// controllers (and tests) can coexist in one process.
type metrics struct {
	httpDuration      *prometheus.HistogramVec
	httpRequests      *prometheus.CounterVec
	pipelineRuns      *prometheus.CounterVec
	pipelineDuration  prometheus.Histogram
	vegetatedFraction prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name: "ndvimonitor_http_response_time_seconds",
			Help: "Duration of HTTP requests.",
		}, []string{"path"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ndvimonitor_http_requests_total",
			Help: "Number of HTTP requests.",
		}, []string{"path"}),
		pipelineRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ndvimonitor_pipeline_runs_total",
			Help: "Number of NDVI pipeline runs by outcome.",
		}, []string{"outcome"}),
		pipelineDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ndvimonitor_pipeline_duration_seconds",
			Help:    "Time spent running the NDVI pipeline, excluding upload.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		vegetatedFraction: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ndvimonitor_vegetated_fraction",
			Help:    "Fraction of pixels classified as vegetated per run.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
	}
}

// middleware records request counts and latency by route template.
func (m *metrics) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		duration := time.Since(start)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				path = tmpl
			}
		}
		m.httpDuration.WithLabelValues(path).Observe(duration.Seconds())
		m.httpRequests.WithLabelValues(path).Inc()
	})
}

func (m *metrics) observeRun(outcome string, elapsed time.Duration) {
	m.pipelineRuns.WithLabelValues(outcome).Inc()
	m.pipelineDuration.Observe(elapsed.Seconds())
}

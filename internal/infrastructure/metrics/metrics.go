// Package metrics exposes trainer and HTTP metrics to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eslsoft/chordnet/internal/entity"
)

var (
	// Scored attempts by item type and outcome (match/miss)
	attemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chordnet_attempts_total",
			Help: "Total number of scored attempts",
		},
		[]string{"item_type", "result"},
	)

	attemptQuality = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chordnet_attempt_quality",
			Help:    "Quality grade assigned to scored attempts",
			Buckets: []float64{0, 1, 2, 3, 4, 5},
		},
		[]string{"item_type"},
	)

	// Attempts whose updated record could not be written to the store
	persistFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chordnet_progress_persist_failures_total",
			Help: "Total number of progress records the store rejected",
		},
		[]string{"item_type"},
	)

	dueItems = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chordnet_due_items",
			Help: "Items due for review at the last reminder check",
		},
		[]string{"item_type"},
	)

	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chordnet_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chordnet_http_request_duration_seconds",
			Help:    "Time spent serving HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Recorder feeds domain events into the registered collectors.
type Recorder struct{}

// NewRecorder returns a Recorder.
func NewRecorder() *Recorder { return &Recorder{} }

// ObserveAttempt records one scored attempt.
func (Recorder) ObserveAttempt(event entity.AttemptEvent) {
	itemType := string(event.Key.Type)
	result := "miss"
	if event.Matched {
		result = "match"
	}
	attemptsTotal.WithLabelValues(itemType, result).Inc()
	attemptQuality.WithLabelValues(itemType).Observe(float64(event.Quality))
	if !event.Persisted {
		persistFailures.WithLabelValues(itemType).Inc()
	}
}

// NotifyDue publishes the due counts of a reminder check.
func (Recorder) NotifyDue(counts map[entity.ItemType]int) error {
	for _, itemType := range entity.ItemTypes {
		dueItems.WithLabelValues(string(itemType)).Set(float64(counts[itemType]))
	}
	return nil
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument wraps h, counting requests and timing them under route.
func Instrument(route string, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h.ServeHTTP(rec, r)
		httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Package metrics exposes Prometheus instrumentation for detection runs.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "landchange"

// Metrics holds the collectors of one process, registered on a private
// registry so tests can create as many as they like.
type Metrics struct {
	Registry *prometheus.Registry

	// PixelsProcessed counts pixels whose detection completed.
	PixelsProcessed prometheus.Counter

	// PixelsFailed counts pixels whose detection returned an error.
	// Labels: reason (insufficient_observations, fit, store)
	PixelsFailed *prometheus.CounterVec

	// BreaksDetected counts closed segments.
	BreaksDetected prometheus.Counter

	// ResidualBreaks counts segments whose residual check was significant.
	ResidualBreaks prometheus.Counter

	// SegmentsStored counts segments accepted by each sink.
	// Labels: sink
	SegmentsStored *prometheus.CounterVec

	// PixelDuration measures the time spent running one detector.
	PixelDuration prometheus.Histogram
}

// New creates and registers the collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		PixelsProcessed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pixels_processed_total",
			Help:      "Pixels whose change detection completed",
		}),
		PixelsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pixels_failed_total",
			Help:      "Pixels whose change detection failed",
		}, []string{"reason"}),
		BreaksDetected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaks_detected_total",
			Help:      "Structural breaks detected across all pixels",
		}),
		ResidualBreaks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "residual_breaks_total",
			Help:      "Segments whose residual control chart left its limits",
		}),
		SegmentsStored: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_stored_total",
			Help:      "Segments written to each result sink",
		}, []string{"sink"}),
		PixelDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pixel_duration_seconds",
			Help:      "Time spent running the detector on one pixel",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

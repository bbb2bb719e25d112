// Package metrics collects and exposes Prometheus metrics for the dashboard.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the metrics surface used by the upload, export and auth components.
type Recorder interface {
	RecordUpload(outcome string, duration time.Duration)
	RecordExport(format string, fallback bool)
	RecordAuthEvent(event string)
}

// Upload outcomes
const (
	OutcomeSuccess    = "success"
	OutcomeFailed     = "failed"
	OutcomeRejected   = "rejected"
	OutcomeSuperseded = "superseded"
)

// Collector is the Prometheus implementation of Recorder.
type Collector struct {
	uploads        *prometheus.CounterVec
	uploadDuration prometheus.Histogram
	exports        *prometheus.CounterVec
	fallbacks      prometheus.Counter
	authEvents     *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "riskboard_uploads_total",
			Help: "Patient CSV uploads by outcome",
		}, []string{"outcome"}),
		uploadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "riskboard_upload_duration_seconds",
			Help:    "Time spent waiting for the prediction service",
			Buckets: prometheus.DefBuckets,
		}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "riskboard_exports_total",
			Help: "Exported result files by format",
		}, []string{"format"}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "riskboard_export_fallbacks_total",
			Help: "Exports that fell back to CSV after the spreadsheet encoder failed",
		}),
		authEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "riskboard_auth_events_total",
			Help: "Authentication events by kind",
		}, []string{"event"}),
	}

	reg.MustRegister(
		c.uploads,
		c.uploadDuration,
		c.exports,
		c.fallbacks,
		c.authEvents,
	)

	return c
}

// RecordUpload records an upload outcome; zero durations are not observed.
func (c *Collector) RecordUpload(outcome string, duration time.Duration) {
	c.uploads.WithLabelValues(outcome).Inc()
	if duration > 0 {
		c.uploadDuration.Observe(duration.Seconds())
	}
}

// RecordExport records a produced export file.
func (c *Collector) RecordExport(format string, fallback bool) {
	c.exports.WithLabelValues(format).Inc()
	if fallback {
		c.fallbacks.Inc()
	}
}

// RecordAuthEvent records a sign-in, sign-up, sign-out or failure.
func (c *Collector) RecordAuthEvent(event string) {
	c.authEvents.WithLabelValues(event).Inc()
}

// Handler returns the Prometheus scrape handler.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Noop discards every measurement.
type Noop struct{}

func (Noop) RecordUpload(string, time.Duration) {}
func (Noop) RecordExport(string, bool)          {}
func (Noop) RecordAuthEvent(string)             {}


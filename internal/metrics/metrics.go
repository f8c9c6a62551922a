// internal/metrics/metrics.go
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Project check outcomes.
const (
	OutcomeUpdated   = "updated"
	OutcomeUnchanged = "unchanged"
	OutcomeFailed    = "failed"
)

// Recorder is what the poller reports sweep activity to.
type Recorder interface {
	SweepStarted()
	SweepSkipped()
	SweepFinished(duration time.Duration)
	ProjectChecked(outcome, errorKind string)
	VersionsStored(count int)
	NotificationsCreated(count int)
}

// Collector is the Prometheus implementation of Recorder.
type Collector struct {
	sweepsStarted        prometheus.Counter
	sweepsSkipped        prometheus.Counter
	sweepDuration        prometheus.Histogram
	projectChecks        *prometheus.CounterVec
	versionsStored       prometheus.Counter
	notificationsCreated prometheus.Counter
}

// NewCollector creates a Collector and registers its metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		sweepsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "release_tracker_sweeps_started_total",
			Help: "Number of version sweeps started.",
		}),
		sweepsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "release_tracker_sweeps_skipped_total",
			Help: "Number of sweep requests ignored because a sweep was already running.",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "release_tracker_sweep_duration_seconds",
			Help:    "Wall-clock duration of a full sweep.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		projectChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "release_tracker_project_checks_total",
			Help: "Per-project checks by outcome and provider error kind.",
		}, []string{"outcome", "error_kind"}),
		versionsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "release_tracker_versions_stored_total",
			Help: "Number of new versions stored by sweeps.",
		}),
		notificationsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "release_tracker_notifications_created_total",
			Help: "Number of new_release notifications created.",
		}),
	}

	reg.MustRegister(
		c.sweepsStarted,
		c.sweepsSkipped,
		c.sweepDuration,
		c.projectChecks,
		c.versionsStored,
		c.notificationsCreated,
	)

	return c
}

func (c *Collector) SweepStarted() {
	c.sweepsStarted.Inc()
}

func (c *Collector) SweepSkipped() {
	c.sweepsSkipped.Inc()
}

func (c *Collector) SweepFinished(duration time.Duration) {
	c.sweepDuration.Observe(duration.Seconds())
}

// ProjectChecked counts one project check. errorKind is empty for successful checks.
func (c *Collector) ProjectChecked(outcome, errorKind string) {
	if errorKind == "" {
		errorKind = "none"
	}
	c.projectChecks.WithLabelValues(outcome, errorKind).Inc()
}

func (c *Collector) VersionsStored(count int) {
	c.versionsStored.Add(float64(count))
}

func (c *Collector) NotificationsCreated(count int) {
	c.notificationsCreated.Add(float64(count))
}

// Handler returns the HTTP handler for Prometheus scrapes.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Package metrics records per-stage timings of an allinone run and exports
// them in the Prometheus textfile format for node_exporter.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const namespace = "allinone"

// Recorder collects stage results into a private registry.
type Recorder struct {
	registry *prometheus.Registry
	duration *prometheus.GaugeVec
	success  *prometheus.GaugeVec
	lastRun  prometheus.Gauge
	now      func() time.Time
	log      logrus.FieldLogger
}

// NewRecorder creates a Recorder with its own registry.
func NewRecorder(log logrus.FieldLogger) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		duration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of the last run of each stage.",
		}, []string{"stage"}),
		success: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage_success",
			Help:      "1 if the last run of the stage succeeded, 0 otherwise.",
		}, []string{"stage"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
		now: time.Now,
		log: log,
	}
	r.registry.MustRegister(r.duration, r.success, r.lastRun)
	return r
}

// Stage runs fn as the named stage and records its duration and result.
// fn's error is returned unchanged.
func (r *Recorder) Stage(name string, fn func() error) error {
	start := r.now()
	err := fn()
	elapsed := r.now().Sub(start)

	r.duration.WithLabelValues(name).Set(elapsed.Seconds())
	result := 1.0
	if err != nil {
		result = 0
	}
	r.success.WithLabelValues(name).Set(result)

	r.log.WithFields(logrus.Fields{
		"stage":    name,
		"duration": elapsed.Round(time.Millisecond).String(),
		"success":  err == nil,
	}).Debug("Stage finished")

	return err
}

// Gatherer exposes the registry.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Flush stamps the run's finish time and, when path is set, writes the
// registry to it. Write failures are logged, not returned.
func (r *Recorder) Flush(path string) {
	r.lastRun.Set(float64(r.now().Unix()))

	if path == "" {
		return
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		r.log.WithError(fmt.Errorf("failed to write metrics textfile %s: %w", path, err)).Warn("Metrics export failed")
		return
	}
	r.log.WithField("path", path).Debug("Wrote metrics textfile")
}

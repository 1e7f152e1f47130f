// Package metrics collects per-run Prometheus metrics and writes them to a
// node_exporter textfile.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "projectgraph"

// Run holds the collectors of one engine run on a private registry, so
// repeated runs in one process never collide.
type Run struct {
	Registry *prometheus.Registry

	drift             *prometheus.GaugeVec
	observedEntities  prometheus.Gauge
	observedRelations prometheus.Gauge
	validationIssues  prometheus.Gauge
	adapterRuns       *prometheus.CounterVec
	commits           *prometheus.CounterVec
	duration          prometheus.Gauge
	lastRun           prometheus.Gauge

	start time.Time
}

// NewRun creates the collectors and starts the run clock.
func NewRun() *Run {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Run{
		Registry: reg,
		drift: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "drift_entities",
			Help:      "Drifting entity keys by direction",
		}, []string{"direction"}),
		observedEntities: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "observed_entities",
			Help:      "Entities in the merged observed graph",
		}),
		observedRelations: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "observed_relations",
			Help:      "Relations in the merged observed graph",
		}),
		validationIssues: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "validation_issues",
			Help:      "Issues reported by the schema validator",
		}),
		adapterRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "adapter_runs_total",
			Help:      "Adapter extractions by outcome",
		}, []string{"adapter", "status"}),
		commits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commits_total",
			Help:      "Commits created per bucket",
		}, []string{"bucket"}),
		duration: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the run",
		}),
		lastRun: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the run finished",
		}),
		start: time.Now(),
	}
}

// Drift records the sizes of both drift sides.
func (r *Run) Drift(observedNotDeclared, declaredNotObserved int) {
	r.drift.WithLabelValues("observed_not_declared").Set(float64(observedNotDeclared))
	r.drift.WithLabelValues("declared_not_observed").Set(float64(declaredNotObserved))
}

// Observed records the merged observed graph size.
func (r *Run) Observed(entities, relations int) {
	r.observedEntities.Set(float64(entities))
	r.observedRelations.Set(float64(relations))
}

// ValidationIssues records the validator issue count.
func (r *Run) ValidationIssues(n int) {
	r.validationIssues.Set(float64(n))
}

// Adapter counts one adapter extraction.
func (r *Run) Adapter(name string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.adapterRuns.WithLabelValues(name, status).Inc()
}

// Commit counts one bucket commit.
func (r *Run) Commit(bucket string) {
	r.commits.WithLabelValues(bucket).Inc()
}

// Finish stamps the duration and completion time.
func (r *Run) Finish(now time.Time) {
	r.duration.Set(now.Sub(r.start).Seconds())
	r.lastRun.Set(float64(now.Unix()))
}

// WriteTextfile writes the registry to path in the text exposition format.
func (r *Run) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.Registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}

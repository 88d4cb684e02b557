// Package metrics exposes workflow engine activity as Prometheus metrics.
//
// Counters:
//   - freight_runs_started_total
//   - freight_runs_closed_total{status}
//   - freight_runs_rotated_total
//   - freight_runs_recovered_total
//   - freight_signals_total{signal,outcome}
//   - freight_activity_attempts_total{activity,outcome}
//
// Gauges:
//   - freight_live_runs
package metrics

import (
	"freight/internal/workflow"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "freight"

	outcomeOK    = "ok"
	outcomeError = "error"
)

var _ workflow.Observer = (*Collector)(nil)

// Collector implements workflow.Observer on Prometheus metrics.
type Collector struct {
	runsStarted      prometheus.Counter
	runsClosed       *prometheus.CounterVec
	runsRotated      prometheus.Counter
	runsRecovered    prometheus.Counter
	signals          *prometheus.CounterVec
	activityAttempts *prometheus.CounterVec
	liveRuns         prometheus.Gauge
}

// NewCollector creates the metrics and registers them with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Total number of workflow runs started, including rotated runs",
		}),
		runsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_closed_total",
			Help:      "Total number of workflow runs closed, by final status",
		}, []string{"status"}),
		runsRotated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_rotated_total",
			Help:      "Total number of runs continued as new",
		}),
		runsRecovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_recovered_total",
			Help:      "Total number of open runs re-hosted from the journal",
		}),
		signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_total",
			Help:      "Total number of signals handled, by name and outcome",
		}, []string{"signal", "outcome"}),
		activityAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activity_attempts_total",
			Help:      "Total number of activity attempts, by activity and outcome",
		}, []string{"activity", "outcome"}),
		liveRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_runs",
			Help:      "Current number of workflow instances hosted by this process",
		}),
	}

	reg.MustRegister(
		c.runsStarted,
		c.runsClosed,
		c.runsRotated,
		c.runsRecovered,
		c.signals,
		c.activityAttempts,
		c.liveRuns,
	)

	return c
}

// RunStarted counts a new run.
func (c *Collector) RunStarted() {
	c.runsStarted.Inc()
}

// RunClosed counts a closed run by its final status.
func (c *Collector) RunClosed(status workflow.RunStatus) {
	c.runsClosed.WithLabelValues(string(status)).Inc()
}

// RunRotated counts a continue-as-new.
func (c *Collector) RunRotated() {
	c.runsRotated.Inc()
}

// RunRecovered counts a run re-hosted from the journal.
func (c *Collector) RunRecovered() {
	c.runsRecovered.Inc()
}

// SignalHandled counts a handled signal by name and outcome.
func (c *Collector) SignalHandled(name string, err error) {
	c.signals.WithLabelValues(name, outcome(err)).Inc()
}

// ActivityAttempt counts one activity attempt by name and outcome.
func (c *Collector) ActivityAttempt(name string, err error) {
	c.activityAttempts.WithLabelValues(name, outcome(err)).Inc()
}

// LiveRuns sets the number of hosted instances.
func (c *Collector) LiveRuns(n int) {
	c.liveRuns.Set(float64(n))
}

func outcome(err error) string {
	if err != nil {
		return outcomeError
	}
	return outcomeOK
}

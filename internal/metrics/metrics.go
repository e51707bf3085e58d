package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	monitorCycles = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "crashwatch",
			Subsystem: "monitor",
			Name:      "cycles_total",
			Help:      "Number of completed monitoring cycles.",
		},
	)
	monitorCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "crashwatch",
			Subsystem: "monitor",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of a monitoring cycle including notifications.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	trackedWorkloads = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "crashwatch",
			Subsystem: "monitor",
			Name:      "tracked_workloads",
			Help:      "Number of workloads in the registry at the last cycle.",
		},
	)
	probeChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crashwatch",
			Subsystem: "probe",
			Name:      "checks_total",
			Help:      "Runtime status queries by observed result.",
		}, []string{"result"},
	)
	workloadAlerts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crashwatch",
			Subsystem: "workload",
			Name:      "alerts_total",
			Help:      "Number of running-to-stopped transitions alerted.",
		}, []string{"name"},
	)
	workloadRecoveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crashwatch",
			Subsystem: "workload",
			Name:      "recoveries_total",
			Help:      "Number of stopped-to-running transitions observed.",
		}, []string{"name"},
	)
	workloadRunning = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "crashwatch",
			Subsystem: "workload",
			Name:      "running",
			Help:      "Last observed status per workload (1 = running, 0 = stopped).",
		}, []string{"name"},
	)
	logsCollectFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "crashwatch",
			Subsystem: "logs",
			Name:      "collect_failures_total",
			Help:      "Number of alerts sent without a log artifact.",
		},
	)
	notifyFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crashwatch",
			Subsystem: "notify",
			Name:      "failures_total",
			Help:      "Notification deliveries that failed after retries.",
		}, []string{"op"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		monitorCycles, monitorCycleDuration, trackedWorkloads, probeChecks,
		workloadAlerts, workloadRecoveries, workloadRunning, logsCollectFailures, notifyFailures,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// already registered with this registerer: keep existing
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// HandlerFor serves metrics from a specific gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func ObserveCycle(seconds float64) {
	if regOK.Load() {
		monitorCycles.Inc()
		monitorCycleDuration.Observe(seconds)
	}
}

func SetTracked(n int) {
	if regOK.Load() {
		trackedWorkloads.Set(float64(n))
	}
}

func ObserveCheck(name string, running bool) {
	if !regOK.Load() {
		return
	}
	result, value := "stopped", 0.0
	if running {
		result, value = "running", 1.0
	}
	probeChecks.WithLabelValues(result).Inc()
	workloadRunning.WithLabelValues(name).Set(value)
}

func IncAlert(name string) {
	if regOK.Load() {
		workloadAlerts.WithLabelValues(name).Inc()
	}
}

func IncRecovery(name string) {
	if regOK.Load() {
		workloadRecoveries.WithLabelValues(name).Inc()
	}
}

func IncLogsFailure() {
	if regOK.Load() {
		logsCollectFailures.Inc()
	}
}

func IncNotifyFailure(op string) {
	if regOK.Load() {
		notifyFailures.WithLabelValues(op).Inc()
	}
}

// ForgetWorkload drops per-workload series once a workload leaves the registry.
func ForgetWorkload(name string) {
	if regOK.Load() {
		workloadRunning.DeleteLabelValues(name)
	}
}

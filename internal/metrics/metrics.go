package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Trigger result labels recorded on restart attempts.
const (
	ResultSuccess  = "success"
	ResultRejected = "rejected"
	ResultSpawn    = "spawn_error"
	ResultHandoff  = "handoff_error"
	ResultVeto     = "veto"
	ResultNotReady = "not_ready"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	restartTriggers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "handover",
			Subsystem: "restart",
			Name:      "triggers_total",
			Help:      "Number of restart trigger attempts by result.",
		}, []string{"result"},
	)
	restartInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "handover",
			Subsystem: "restart",
			Name:      "in_flight",
			Help:      "Whether a restart attempt is currently in flight (0 or 1).",
		},
	)
	restartDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "handover",
			Subsystem: "restart",
			Name:      "attempt_duration_seconds",
			Help:      "Duration of restart attempts from trigger to reply.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	generation = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "handover",
			Subsystem: "restart",
			Name:      "generation",
			Help:      "Generation of the running process as reported by the application.",
		},
	)
	handoffBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "handover",
			Subsystem: "restart",
			Name:      "handoff_bytes_total",
			Help:      "Payload bytes written into handoff channels.",
		},
	)
	activeHandles = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "handover",
			Subsystem: "drain",
			Name:      "active_handles",
			Help:      "Outstanding units of work holding a shutdown handle.",
		},
	)
	drainDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "handover",
			Subsystem: "drain",
			Name:      "duration_seconds",
			Help:      "Time from drain request until the last handle was released.",
			Buckets:   []float64{.1, .5, 1, 5, 15, 60, 300, 900},
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{restartTriggers, restartInFlight, restartDuration, generation, handoffBytes, activeHandles, drainDuration}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
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
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncTrigger(result string) {
	if regOK.Load() {
		restartTriggers.WithLabelValues(result).Inc()
	}
}

func SetInFlight(v bool) {
	if regOK.Load() {
		if v {
			restartInFlight.Set(1)
		} else {
			restartInFlight.Set(0)
		}
	}
}

func ObserveAttemptDuration(seconds float64) {
	if regOK.Load() {
		restartDuration.Observe(seconds)
	}
}

func SetGeneration(n int) {
	if regOK.Load() {
		generation.Set(float64(n))
	}
}

func AddHandoffBytes(n int) {
	if regOK.Load() && n > 0 {
		handoffBytes.Add(float64(n))
	}
}

func SetActiveHandles(n int) {
	if regOK.Load() {
		activeHandles.Set(float64(n))
	}
}

func ObserveDrainDuration(seconds float64) {
	if regOK.Load() {
		drainDuration.Observe(seconds)
	}
}

package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Turn outcomes recorded by the turn controller.
const (
	OutcomeAccepted  = "accepted"
	OutcomeDuplicate = "duplicate"
	OutcomeMalformed = "malformed"
	OutcomeHandoff   = "handoff"
	OutcomeFatal     = "fatal"
	OutcomeEnded     = "ended"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveCalls         prometheus.Gauge
	CallEvents          *prometheus.CounterVec
	TurnOutcomes        *prometheus.CounterVec
	ClassifierSources   *prometheus.CounterVec
	ClassifierFallbacks *prometheus.CounterVec
	SchedulingOps       *prometheus.CounterVec
	RescheduleFallbacks prometheus.Counter
	TurnLatency         prometheus.Histogram

	stages *turnStageWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveCalls: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_calls",
			Help:      "Number of calls with live dialogue state.",
		}),
		CallEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_events_total",
			Help:      "Call lifecycle events by type.",
		}, []string{"event"}),
		TurnOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turn_outcomes_total",
			Help:      "Processed turns by outcome.",
		}, []string{"outcome"}),
		ClassifierSources: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intent_classifications_total",
			Help:      "Intent classifications by the layer that produced them.",
		}, []string{"source"}),
		ClassifierFallbacks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_fallbacks_total",
			Help:      "Keyword fallbacks by reason.",
		}, []string{"reason"}),
		SchedulingOps: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduling_operations_total",
			Help:      "Scheduling backend operations by operation and outcome.",
		}, []string{"op", "outcome"}),
		RescheduleFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reschedule_fallbacks_total",
			Help:      "Reschedules completed by cancel and create instead of patch.",
		}),
		TurnLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_latency_ms",
			Help:      "Time to answer one turn webhook in milliseconds.",
			Buckets:   []float64{25, 50, 100, 200, 400, 800, 1500, 3000, 6000},
		}),
		stages: newTurnStageWindow(256),
	}
}

func (m *Metrics) ObserveTurnLatency(d time.Duration) {
	m.TurnLatency.Observe(float64(d.Milliseconds()))
	m.stages.Observe("turn_total", float64(d.Microseconds())/1000)
}

// ObserveTurnStage records the duration of one phase of a turn.
func (m *Metrics) ObserveTurnStage(stage string, d time.Duration) {
	m.stages.Observe(stage, float64(d.Microseconds())/1000)
}

func (m *Metrics) ObserveTurnOutcome(outcome string) {
	m.TurnOutcomes.WithLabelValues(outcome).Inc()
	m.stages.ObserveIndicator(outcome)
}

// ObserveScheduling matches the scheduling executor's observer signature.
func (m *Metrics) ObserveScheduling(op, outcome string) {
	if op == "reschedule" && outcome == "fallback" {
		m.RescheduleFallbacks.Inc()
		return
	}
	m.SchedulingOps.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) SnapshotTurnStages() TurnStageSnapshot {
	return m.stages.Snapshot()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

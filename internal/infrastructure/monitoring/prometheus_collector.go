package monitoring

import (
	"time"

	"peercall/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusCollector struct {
	// Counters
	callsStartedTotal    *prometheus.CounterVec
	callsEndedTotal      *prometheus.CounterVec
	signalsSentTotal     *prometheus.CounterVec
	signalsIgnoredTotal  *prometheus.CounterVec
	signalsRoutedTotal   *prometheus.CounterVec
	governorActionsTotal *prometheus.CounterVec

	// Gauges
	callsActive prometheus.Gauge

	// Histograms
	callDuration prometheus.Histogram
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		callsStartedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "peercall_calls_started_total",
			Help: "Total number of calls started, by local role",
		}, []string{"role"}),

		callsEndedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "peercall_calls_ended_total",
			Help: "Total number of calls ended, by outcome and end reason",
		}, []string{"outcome", "reason"}),

		signalsSentTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "peercall_signals_sent_total",
			Help: "Total number of signaling messages sent, by kind",
		}, []string{"kind"}),

		signalsIgnoredTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "peercall_signals_ignored_total",
			Help: "Total number of signaling messages discarded as stale or mismatched",
		}, []string{"kind"}),

		signalsRoutedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "peercall_signals_routed_total",
			Help: "Total number of signals routed by the relay, by kind and delivery outcome",
		}, []string{"kind", "outcome"}),

		governorActionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "peercall_governor_actions_total",
			Help: "Total number of quality governor actions",
		}, []string{"action"}),

		callsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "peercall_calls_active",
			Help: "Number of call sessions currently in progress",
		}),

		callDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "peercall_call_duration_seconds",
			Help:    "Connected duration of ended calls",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}
}

func (p *PrometheusCollector) CallStarted(role domain.Role) {
	p.callsStartedTotal.WithLabelValues(string(role)).Inc()
	p.callsActive.Inc()
}

func (p *PrometheusCollector) CallEnded(outcome domain.CallOutcome, reason domain.EndReason, duration time.Duration) {
	p.callsEndedTotal.WithLabelValues(string(outcome), string(reason)).Inc()
	p.callsActive.Dec()
	if duration > 0 {
		p.callDuration.Observe(duration.Seconds())
	}
}

func (p *PrometheusCollector) SignalSent(kind domain.SignalKind) {
	p.signalsSentTotal.WithLabelValues(string(kind)).Inc()
}

func (p *PrometheusCollector) SignalIgnored(kind domain.SignalKind) {
	p.signalsIgnoredTotal.WithLabelValues(string(kind)).Inc()
}

func (p *PrometheusCollector) GovernorAction(action string) {
	p.governorActionsTotal.WithLabelValues(action).Inc()
}

func (p *PrometheusCollector) SignalRouted(kind domain.SignalKind, outcome string) {
	p.signalsRoutedTotal.WithLabelValues(string(kind), outcome).Inc()
}

package broker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the broker's Prometheus instrumentation, grounded on
// Pricilla/internal/metrics/prometheus.go's promauto-based metrics
// struct, narrowed to what the broker itself needs to expose.
type Metrics struct {
	publishesTotal     *prometheus.CounterVec
	commandsRouted     *prometheus.CounterVec
	subscribersGauge   prometheus.Gauge
}

// NewMetrics constructs broker metrics and registers them against the
// default registry. Unlike Pricilla's GetMetrics() singleton, this is
// constructed once at startup and passed by reference into the Broker,
// per spec §9's "re-architect as explicit dependencies" note — callers
// that need isolated registries in tests should construct their own
// prometheus.Registry and use NewMetricsWithRegisterer instead.
func NewMetrics() *Metrics {
	return NewMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer constructs broker metrics against an explicit
// registerer. Production startup should pass prometheus.DefaultRegisterer
// (what NewMetrics does); tests that construct more than one Broker in the
// same process should pass a fresh prometheus.NewRegistry() each time to
// avoid the default registry's duplicate-collector panic.
func NewMetricsWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		publishesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "groundctl",
			Subsystem: "broker",
			Name:      "publishes_total",
			Help:      "Total messages queued to subscribers, by topic root.",
		}, []string{"topic_root"}),
		commandsRouted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "groundctl",
			Subsystem: "broker",
			Name:      "commands_routed_total",
			Help:      "Total commands routed by destination kind.",
		}, []string{"destination_kind"}),
		subscribersGauge: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "groundctl",
			Subsystem: "broker",
			Name:      "subscribers",
			Help:      "Current connected subscriber count.",
		}),
	}
}

func (m *Metrics) Published(topic string) {
	root := topic
	for i, c := range topic {
		if c == '/' {
			root = topic[:i]
			break
		}
	}
	m.publishesTotal.WithLabelValues(root).Inc()
}

func (m *Metrics) CommandRouted(kind string) {
	m.commandsRouted.WithLabelValues(kind).Inc()
}

func (m *Metrics) SubscriberConnected()    { m.subscribersGauge.Inc() }
func (m *Metrics) SubscriberDisconnected() { m.subscribersGauge.Dec() }

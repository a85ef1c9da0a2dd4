package gobayeux

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "gobayeux"

// Metrics holds the Prometheus collectors updated by a Client. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	handshakes       *prometheus.CounterVec
	connects         *prometheus.CounterVec
	rehandshakes     prometheus.Counter
	failures         *prometheus.CounterVec
	received         *prometheus.CounterVec
	published        prometheus.Counter
	listenerPanics   prometheus.Counter
	exchangeDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg. A nil
// registerer leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		handshakes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "client",
				Name:      "handshakes_total",
				Help:      "Handshake replies by result.",
			},
			[]string{"result"},
		),
		connects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "client",
				Name:      "connects_total",
				Help:      "Connect replies by result.",
			},
			[]string{"result"},
		),
		rehandshakes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "client",
				Name:      "rehandshakes_total",
				Help:      "Sessions lost and handshaken again.",
			},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "transport",
				Name:      "failures_total",
				Help:      "Failed exchanges by kind.",
			},
			[]string{"kind"},
		),
		received: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "client",
				Name:      "messages_received_total",
				Help:      "Messages dispatched to channel listeners by channel type.",
			},
			[]string{"type"},
		),
		published: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "client",
				Name:      "messages_published_total",
				Help:      "Messages published to application channels.",
			},
		),
		listenerPanics: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "client",
				Name:      "listener_panics_total",
				Help:      "Listeners that panicked while handling a message.",
			},
		),
		exchangeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "transport",
				Name:      "exchange_duration_seconds",
				Help:      "Exchange duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"channel", "success"},
		),
	}

	if reg == nil {
		return m, nil
	}
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.handshakes,
		m.connects,
		m.rehandshakes,
		m.failures,
		m.received,
		m.published,
		m.listenerPanics,
		m.exchangeDuration,
	}
}

func resultLabel(successful bool) string {
	if successful {
		return "success"
	}
	return "failure"
}

func (m *Metrics) handshake(successful bool) {
	if m == nil {
		return
	}
	m.handshakes.WithLabelValues(resultLabel(successful)).Inc()
}

func (m *Metrics) connect(successful bool) {
	if m == nil {
		return
	}
	m.connects.WithLabelValues(resultLabel(successful)).Inc()
}

func (m *Metrics) rehandshake() {
	if m == nil {
		return
	}
	m.rehandshakes.Inc()
}

func (m *Metrics) failure(kind string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(kind).Inc()
}

func (m *Metrics) messageReceived(c Channel) {
	if m == nil {
		return
	}
	m.received.WithLabelValues(string(c.Type())).Inc()
}

func (m *Metrics) messagePublished() {
	if m == nil {
		return
	}
	m.published.Inc()
}

func (m *Metrics) listenerPanicked() {
	if m == nil {
		return
	}
	m.listenerPanics.Inc()
}

// exchangeLabel keeps the channel label bounded: meta channels are reported
// as is, everything else by channel type
func exchangeLabel(c Channel) string {
	if c.IsMeta() {
		return string(c)
	}
	return string(c.Type())
}

func (m *Metrics) exchangeCompleted(c Channel, successful bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.exchangeDuration.WithLabelValues(exchangeLabel(c), resultLabel(successful)).Observe(duration.Seconds())
}

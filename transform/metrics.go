package transform

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "semsolver"
	metricsSubsystem = "transform"
)

// Stream outcomes recorded by Metrics.
const (
	OutcomeComplete  = "complete"
	OutcomeAbandoned = "abandoned"
	OutcomeTransport = "transport_error"
)

// Metrics holds the stream parsing collectors.
type Metrics struct {
	Deltas         prometheus.Counter
	Transitions    *prometheus.CounterVec
	FencesClosed   prometheus.Counter
	FencesUnclosed *prometheus.CounterVec
	Streams        *prometheus.CounterVec
	StreamDuration prometheus.Histogram
}

// NewMetrics registers the transform collectors with reg.
// A nil reg creates unregistered collectors, which is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Deltas: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "deltas_total",
			Help:      "Total deltas received from transform streams",
		}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "section_transitions_total",
			Help:      "Header markers consumed, by target section",
		}, []string{"section"}),
		FencesClosed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "fences_closed_total",
			Help:      "Code fences closed by a marker",
		}),
		FencesUnclosed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "fences_unclosed_total",
			Help:      "Code fences still open at end of stream, by whether the policy published them",
		}, []string{"published"}),
		Streams: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "streams_total",
			Help:      "Transform streams consumed, by outcome",
		}, []string{"outcome"}),
		StreamDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "stream_duration_seconds",
			Help:      "Time from first Recv to end of stream",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
	}
}

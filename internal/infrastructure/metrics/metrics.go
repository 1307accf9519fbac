package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/p2pmarket/marketd/internal/domain/envelope"
	"github.com/p2pmarket/marketd/internal/protocol"
)

const namespace = "marketd"

// Recorder exports pipeline counters to prometheus.
type Recorder struct {
	registry  *prometheus.Registry
	sent      *prometheus.CounterVec
	processed *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	finalized prometheus.Counter
}

// NewRecorder creates a recorder with its own registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "messages_total",
			Help:      "Outgoing actions by type and result",
		}, []string{"action", "result"}),
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inbox",
			Name:      "messages_total",
			Help:      "Incoming messages by type and resulting status",
		}, []string{"action", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "inbox",
			Name:      "processing_seconds",
			Help:      "Time spent processing one incoming message",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"action"}),
		finalized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "governance",
			Name:      "proposals_finalized_total",
			Help:      "Proposals whose final result was recorded",
		}),
	}
	r.registry.MustRegister(
		r.sent,
		r.processed,
		r.duration,
		r.finalized,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return r
}

// MessageSent counts one outgoing send by result.
func (r *Recorder) MessageSent(action protocol.ActionType, result string) {
	r.sent.WithLabelValues(string(action), result).Inc()
}

// MessageProcessed counts one incoming message and observes its latency.
func (r *Recorder) MessageProcessed(action protocol.ActionType, status envelope.Status, elapsed time.Duration) {
	if action == "" {
		action = "UNKNOWN"
	}
	r.processed.WithLabelValues(string(action), string(status)).Inc()
	r.duration.WithLabelValues(string(action)).Observe(elapsed.Seconds())
}

// ProposalsFinalized adds n finalized proposals.
func (r *Recorder) ProposalsFinalized(n int) {
	r.finalized.Add(float64(n))
}

// Handler serves the registry in the prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

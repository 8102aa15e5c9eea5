package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	Namespace = "pubsub"

	// Status label values for success/error metrics
	StatusSuccess = "success"
	StatusError   = "error"
)

// Error kinds for dispatch failures.
const (
	ErrKindTransport = "transport"
	ErrKindLogic     = "logic"
	ErrKindDelivery  = "delivery"
	ErrKindUnknown   = "unknown"
)

// Labels holds constant labels applied to all metrics.
// These are useful for distinguishing metrics from multiple dispatcher instances.
type Labels struct {
	Broker        string // Broker type (e.g., "centrifugo", "kafka")
	Environment   string // Deployment environment (e.g., "production", "staging", "development")
	Region        string // Cloud region (e.g., "us-east-1", "eu-west-1")
	CloudProvider string // Cloud provider (e.g., "aws", "oci", "gcp")
}

// toPrometheusLabels converts Labels to prometheus.Labels map.
// Only non-empty labels are included to avoid empty label values.
func (l Labels) toPrometheusLabels() prometheus.Labels {
	labels := prometheus.Labels{}
	if l.Broker != "" {
		labels["broker"] = l.Broker
	}
	if l.Environment != "" {
		labels["environment"] = l.Environment
	}
	if l.Region != "" {
		labels["region"] = l.Region
	}
	if l.CloudProvider != "" {
		labels["cloud_provider"] = l.CloudProvider
	}
	return labels
}

type Metrics struct {
	// Enqueue side
	publicationsEnqueued prometheus.Counter
	enqueueRejected      prometheus.Counter
	queueDepth           prometheus.Gauge

	// Dispatch side
	batchesDispatched     *prometheus.CounterVec // by status
	publicationsForwarded *prometheus.CounterVec // by status
	batchSize             prometheus.Histogram
	dispatchDuration      prometheus.Histogram
	dispatchErrors        *prometheus.CounterVec // by kind
}

// New creates a new Metrics instance and registers all metrics with the provided registerer.
// Returns an error if any metric registration fails.
func New(reg prometheus.Registerer) (*Metrics, error) {
	return NewWithLabels(reg, Labels{})
}

// NewWithLabels creates a new Metrics instance with constant labels applied to all metrics.
func NewWithLabels(reg prometheus.Registerer, labels Labels) (*Metrics, error) {
	promLabels := labels.toPrometheusLabels()
	if len(promLabels) > 0 {
		reg = prometheus.WrapRegistererWith(promLabels, reg)
	}

	return newMetrics(reg)
}

func newMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		publicationsEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "publications_enqueued_total",
			Help:      "Total number of publications accepted by the dispatcher",
		}),
		enqueueRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "enqueue_rejected_total",
			Help:      "Total number of publications rejected because the dispatcher was closed",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "queue_depth",
			Help:      "Number of publications waiting in the queue, sampled by the worker",
		}),
		batchesDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "batches_dispatched_total",
			Help:      "Total number of batches handed to the broker client by status",
		}, []string{"status"}),
		publicationsForwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "publications_forwarded_total",
			Help:      "Total number of publications handed to the broker client by status",
		}, []string{"status"}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "batch_size",
			Help:      "Number of publications per dispatched batch",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1 to 2048
		}),
		dispatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Duration of a single broker publish call",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		dispatchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "dispatch_errors_total",
			Help:      "Total number of failed batches by error kind",
		}, []string{"kind"}),
	}

	err := errors.Join(
		reg.Register(m.publicationsEnqueued),
		reg.Register(m.enqueueRejected),
		reg.Register(m.queueDepth),
		reg.Register(m.batchesDispatched),
		reg.Register(m.publicationsForwarded),
		reg.Register(m.batchSize),
		reg.Register(m.dispatchDuration),
		reg.Register(m.dispatchErrors),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// IncEnqueued records a publication accepted by Send.
func (m *Metrics) IncEnqueued() {
	if m == nil {
		return
	}
	m.publicationsEnqueued.Inc()
}

// IncEnqueueRejected records a publication rejected by a closed dispatcher.
func (m *Metrics) IncEnqueueRejected() {
	if m == nil {
		return
	}
	m.enqueueRejected.Inc()
}

// SetQueueDepth updates the queue depth gauge.
func (m *Metrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}

// RecordDispatch records the outcome of one broker publish call.
// errKind is ignored when err is nil.
func (m *Metrics) RecordDispatch(size int, err error, errKind string, durationSeconds float64) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
		m.dispatchErrors.WithLabelValues(errKind).Inc()
	}
	m.batchesDispatched.WithLabelValues(status).Inc()
	m.publicationsForwarded.WithLabelValues(status).Add(float64(size))
	m.batchSize.Observe(float64(size))
	m.dispatchDuration.Observe(durationSeconds)
}

package worker

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Vara-Lab/Vara-Gasless-Server/internal/voucher"
)

// Metrics are the worker's Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	requestsTotal *prometheus.CounterVec
	batchesTotal  *prometheus.CounterVec
	batchOps      prometheus.Histogram
	cycleDuration prometheus.Histogram
	queueDepth    prometheus.Gauge
}

// NewMetrics registers the worker collectors on reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		requestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "voucher_requests_total",
				Help:      "Settled voucher requests by outcome",
			},
			[]string{"outcome"},
		),
		batchesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "voucher_batches_total",
				Help:      "Submitted voucher batches by result",
			},
			[]string{"result"},
		),
		batchOps: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "voucher_batch_operations",
				Help:      "Operations per submitted batch",
				Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
			},
		),
		cycleDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "voucher_cycle_duration_seconds",
				Help:      "Duration of one build/submit/route cycle",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
		),
		queueDepth: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "voucher_queue_depth",
				Help:      "Requests waiting for the next cycle",
			},
		),
	}
}

func outcome(err error) string {
	var ue *voucher.UpstreamError
	switch {
	case err == nil:
		return "resolved"
	case errors.Is(err, voucher.ErrBadRequest):
		return "bad_request"
	case errors.Is(err, voucher.ErrConfiguration):
		return "configuration_error"
	case errors.Is(err, voucher.ErrTransactionFailed):
		return "transaction_failed"
	case errors.Is(err, voucher.ErrShutdown):
		return "shutdown"
	case errors.As(err, &ue):
		return "upstream_error"
	default:
		return "error"
	}
}

func (m *Metrics) observeRequest(err error) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(outcome(err)).Inc()
}

func (m *Metrics) observeBatch(ops int, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "finalized"
	if err != nil {
		result = outcome(err)
	}
	m.batchesTotal.WithLabelValues(result).Inc()
	m.batchOps.Observe(float64(ops))
	m.cycleDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) setQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

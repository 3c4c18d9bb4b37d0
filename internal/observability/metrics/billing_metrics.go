package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// BillingMetrics tracks the stream ledger's billing activity.
type BillingMetrics struct {
	streamCharges  *prometheus.CounterVec
	billingSweeps  prometheus.Counter
	activeStreams  prometheus.Gauge
	streamsStopped *prometheus.CounterVec
}

var (
	billingMetricsOnce sync.Once
	billingMetrics     *BillingMetrics
)

// Billing returns the process-wide billing metrics with default labels.
func Billing() *BillingMetrics {
	return BillingWithConfig(Config{})
}

// BillingWithConfig returns the process-wide billing metrics, creating
// and registering them on first use.
func BillingWithConfig(cfg Config) *BillingMetrics {
	billingMetricsOnce.Do(func() {
		billingMetrics = newBillingMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return billingMetrics
}

// ResetBillingMetricsForTest clears the singleton between test runs.
func ResetBillingMetricsForTest() {
	billingMetricsOnce = sync.Once{}
	billingMetrics = nil
}

func newBillingMetrics(registerer prometheus.Registerer, cfg Config) *BillingMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "payless"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	streamCharges := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "payless_stream_charged_total",
			Help:        "Total amount charged across all streams, in native token units.",
			ConstLabels: constLabels,
		},
		[]string{"interval"},
	)

	billingSweeps := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name:        "payless_billing_sweeps_total",
			Help:        "Total billing driver sweeps over the active stream set.",
			ConstLabels: constLabels,
		},
	)

	activeStreams := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name:        "payless_active_streams",
			Help:        "Number of streams currently in the active state.",
			ConstLabels: constLabels,
		},
	)

	streamsStopped := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "payless_streams_stopped_total",
			Help:        "Streams stopped by a billing limit.",
			ConstLabels: constLabels,
		},
		[]string{"reason"}, // insufficient_funds | max_duration
	)

	registerer.MustRegister(
		streamCharges,
		billingSweeps,
		activeStreams,
		streamsStopped,
	)

	return &BillingMetrics{
		streamCharges:  streamCharges,
		billingSweeps:  billingSweeps,
		activeStreams:  activeStreams,
		streamsStopped: streamsStopped,
	}
}

// ObserveCharge adds a billed amount for the given interval unit.
func (m *BillingMetrics) ObserveCharge(interval string, amount float64) {
	if m == nil || amount < 0 {
		return
	}
	m.streamCharges.WithLabelValues(interval).Add(amount)
}

// IncSweep counts one billing driver pass.
func (m *BillingMetrics) IncSweep() {
	if m == nil {
		return
	}
	m.billingSweeps.Inc()
}

// SetActiveStreams records the current active stream count.
func (m *BillingMetrics) SetActiveStreams(count int) {
	if m == nil {
		return
	}
	m.activeStreams.Set(float64(count))
}

// IncStopped counts a stream stopped by a billing limit.
func (m *BillingMetrics) IncStopped(reason string) {
	if m == nil {
		return
	}
	m.streamsStopped.WithLabelValues(reason).Inc()
}

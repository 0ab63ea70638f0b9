package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/zeltra/pkg/apperror"
)

const namespace = "zeltra"

// Metrics exposes billing-core counters. A nil *Metrics is a valid no-op.
type Metrics struct {
	usageRecorded      *prometheus.CounterVec
	summariesGenerated *prometheus.CounterVec
	aggregationSeconds prometheus.Histogram
	invoicesRendered   *prometheus.CounterVec
	operationErrors    *prometheus.CounterVec
}

// New registers the billing-core collectors on registerer.
func New(registerer prometheus.Registerer) (*Metrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		usageRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_events_recorded_total",
			Help:      "Usage events appended, by service and usage type.",
		}, []string{"service_type", "usage_type"}),
		summariesGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "billing_summaries_generated_total",
			Help:      "Billing summaries (re)computed, by outcome.",
		}, []string{"outcome"}),
		aggregationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "billing_aggregation_duration_seconds",
			Help:      "Duration of one owner/period aggregation.",
			Buckets:   prometheus.DefBuckets,
		}),
		invoicesRendered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoices_rendered_total",
			Help:      "Invoice documents produced, by format.",
		}, []string{"format"}),
		operationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_errors_total",
			Help:      "Failed core operations, by operation and error kind.",
		}, []string{"operation", "kind"}),
	}

	if err := register(registerer, &m.usageRecorded); err != nil {
		return nil, err
	}
	if err := register(registerer, &m.summariesGenerated); err != nil {
		return nil, err
	}
	if err := register(registerer, &m.aggregationSeconds); err != nil {
		return nil, err
	}
	if err := register(registerer, &m.invoicesRendered); err != nil {
		return nil, err
	}
	if err := register(registerer, &m.operationErrors); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordUsage counts one appended usage event.
func (m *Metrics) RecordUsage(serviceType, usageType string) {
	if m == nil {
		return
	}
	m.usageRecorded.WithLabelValues(normalizeLabel(serviceType), normalizeLabel(usageType)).Inc()
}

// RecordAggregation counts one aggregation run and observes its duration.
func (m *Metrics) RecordAggregation(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.summariesGenerated.WithLabelValues(normalizeLabel(outcome)).Inc()
	m.aggregationSeconds.Observe(seconds)
}

// RecordInvoice counts one produced invoice document.
func (m *Metrics) RecordInvoice(format string) {
	if m == nil {
		return
	}
	m.invoicesRendered.WithLabelValues(normalizeLabel(format)).Inc()
}

// RecordError counts one failed operation.
func (m *Metrics) RecordError(operation string, kind apperror.Kind) {
	if m == nil {
		return
	}
	label := string(kind)
	if label == "" {
		label = "internal"
	}
	m.operationErrors.WithLabelValues(normalizeLabel(operation), label).Inc()
}

func normalizeLabel(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return "unknown"
	}
	return value
}

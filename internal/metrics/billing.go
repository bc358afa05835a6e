package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Webhook outcomes
const (
	OutcomeProcessed        = "processed"
	OutcomeIgnored          = "ignored"
	OutcomeMissingSignature = "missing_signature"
	OutcomeInvalidSignature = "invalid_signature"
	OutcomeInvalidPayload   = "invalid_payload"
	OutcomeFailed           = "failed"
)

// Upsert actions
const (
	ActionCreated  = "created"
	ActionUpdated  = "updated"
	ActionPromoted = "promoted"
	ActionSkipped  = "skipped"
)

// BillingMetrics records webhook reconciliation and vendor call outcomes.
type BillingMetrics interface {
	ObserveWebhook(provider, outcome string, duration time.Duration)
	RecordUpsert(entity, action string)
	RecordProviderCall(provider, operation string, err error)
}

type billingMetrics struct {
	webhooks        *prometheus.CounterVec
	webhookDuration *prometheus.HistogramVec
	upserts         *prometheus.CounterVec
	providerCalls   *prometheus.CounterVec
}

// NewBillingMetrics registers the billing collectors on registry.
func NewBillingMetrics(registry *prometheus.Registry) BillingMetrics {
	return &billingMetrics{
		webhooks: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "paykit_webhooks_total",
				Help: "Webhook deliveries by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		webhookDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "paykit_webhook_duration_seconds",
				Help:    "Webhook handling latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		upserts: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "paykit_upserts_total",
				Help: "Billing record writes by entity and action",
			},
			[]string{"entity", "action"},
		),
		providerCalls: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "paykit_provider_calls_total",
				Help: "Outbound vendor API calls by operation and result",
			},
			[]string{"provider", "operation", "result"},
		),
	}
}

func (m *billingMetrics) ObserveWebhook(provider, outcome string, duration time.Duration) {
	m.webhooks.WithLabelValues(provider, outcome).Inc()
	m.webhookDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func (m *billingMetrics) RecordUpsert(entity, action string) {
	m.upserts.WithLabelValues(entity, action).Inc()
}

func (m *billingMetrics) RecordProviderCall(provider, operation string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.providerCalls.WithLabelValues(provider, operation, result).Inc()
}

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

// Handler exposes registry in the Prometheus text format.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

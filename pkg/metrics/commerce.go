package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// CommerceMetrics records payment, refund, and shipping-quote outcomes.
type CommerceMetrics struct {
	paymentsConfirmed *prometheus.CounterVec
	ordersCommitted   prometheus.Counter
	refunds           *prometheus.CounterVec
	quoteFallbacks    *prometheus.CounterVec
}

// NewCommerceMetrics registers the commerce metrics on the provided registerer.
func NewCommerceMetrics(reg prometheus.Registerer) *CommerceMetrics {
	if reg == nil {
		return &CommerceMetrics{}
	}
	paymentsConfirmed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_confirmed_total",
		Help: "Payment confirmation attempts by gateway and outcome.",
	}, []string{"gateway", "outcome"})
	ordersCommitted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orders_committed_total",
		Help: "Orders durably persisted after a successful payment.",
	})
	refunds := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "refunds_total",
		Help: "Refund attempts by outcome (issued or rolled_back).",
	}, []string{"outcome"})
	quoteFallbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shipping_quote_fallback_total",
		Help: "Shipping quotes served from the fallback table by reason.",
	}, []string{"reason"})
	reg.MustRegister(paymentsConfirmed, ordersCommitted, refunds, quoteFallbacks)
	return &CommerceMetrics{
		paymentsConfirmed: paymentsConfirmed,
		ordersCommitted:   ordersCommitted,
		refunds:           refunds,
		quoteFallbacks:    quoteFallbacks,
	}
}

// IncPaymentConfirmed counts a confirmation attempt for a gateway.
func (m *CommerceMetrics) IncPaymentConfirmed(gateway, outcome string) {
	if m == nil || m.paymentsConfirmed == nil {
		return
	}
	m.paymentsConfirmed.WithLabelValues(normalizeLabel(gateway), normalizeLabel(outcome)).Inc()
}

// IncOrderCommitted counts a durable order commit.
func (m *CommerceMetrics) IncOrderCommitted() {
	if m == nil || m.ordersCommitted == nil {
		return
	}
	m.ordersCommitted.Inc()
}

// IncRefund counts a refund attempt outcome.
func (m *CommerceMetrics) IncRefund(outcome string) {
	if m == nil || m.refunds == nil {
		return
	}
	m.refunds.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncQuoteFallback counts a fallback-table shipping quote.
func (m *CommerceMetrics) IncQuoteFallback(reason string) {
	if m == nil || m.quoteFallbacks == nil {
		return
	}
	m.quoteFallbacks.WithLabelValues(normalizeLabel(reason)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

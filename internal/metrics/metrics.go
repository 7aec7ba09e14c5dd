package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for verification onboarding.
type Metrics struct {
	// Webhook events by kind and correlation outcome
	WebhookEvents *prometheus.CounterVec

	// Record status transitions by outcome (applied, held, ignored)
	Transitions *prometheus.CounterVec

	// Vendor API latencies by operation and result
	VendorLatency *prometheus.HistogramVec

	// Records picked up by the stale-record sweeper
	SweptRecords prometheus.Counter
}

// New creates a Metrics instance registered on the given registerer. A nil
// registerer uses the default Prometheus registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		WebhookEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_webhook_events_total",
			Help: "Verification webhook events by kind and correlation outcome",
		}, []string{"kind", "outcome"}), // outcome: "resolved", "unresolved", "stale", "failed"

		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_status_transitions_total",
			Help: "Onboarding record status transitions by outcome",
		}, []string{"outcome"}),

		VendorLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "onboarding_vendor_request_duration_seconds",
			Help:    "Duration of verification vendor API calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"operation", "result"}),

		SweptRecords: factory.NewCounter(prometheus.CounterOpts{
			Name: "onboarding_swept_records_total",
			Help: "Onboarding records resynced by the stale-record sweeper",
		}),
	}
}

// IncWebhookEvent records a webhook event outcome.
func (m *Metrics) IncWebhookEvent(kind, outcome string) {
	if m != nil {
		m.WebhookEvents.WithLabelValues(kind, outcome).Inc()
	}
}

// IncTransition records a state machine outcome.
func (m *Metrics) IncTransition(outcome string) {
	if m != nil {
		m.Transitions.WithLabelValues(outcome).Inc()
	}
}

// ObserveVendorCall records the duration of a vendor API call.
func (m *Metrics) ObserveVendorCall(op string, err error, d time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.VendorLatency.WithLabelValues(op, result).Observe(d.Seconds())
}

// AddSwept records the number of records resynced in one sweep.
func (m *Metrics) AddSwept(n int) {
	if m != nil {
		m.SweptRecords.Add(float64(n))
	}
}

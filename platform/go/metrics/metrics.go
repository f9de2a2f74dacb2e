// Package metrics holds the Prometheus collectors for authentication and tenant isolation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Auth attempt outcomes.
const (
	OutcomeAccepted    = "accepted"
	OutcomeRejected    = "rejected"
	OutcomeUnavailable = "unavailable"
	OutcomeIntegrity   = "integrity"
	OutcomeThrottled   = "throttled"
	OutcomeError       = "error"
)

// Collectors groups the service collectors. A nil *Collectors is valid and records nothing.
type Collectors struct {
	AuthAttemptsTotal          *prometheus.CounterVec
	RadiusExchangeDuration     *prometheus.HistogramVec
	CrossTenantViolationsTotal *prometheus.CounterVec
	JobsTotal                  *prometheus.CounterVec
}

// New registers the collectors with reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Collectors {
	factory := promauto.With(reg)
	return &Collectors{
		AuthAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wificore_auth_attempts_total",
				Help: "Total number of login attempts by outcome",
			},
			[]string{"outcome"},
		),
		RadiusExchangeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wificore_radius_exchange_seconds",
				Help:    "RADIUS Access-Request round trip latency in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"result"},
		),
		CrossTenantViolationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wificore_cross_tenant_violations_total",
				Help: "Total number of rejected cross-tenant references",
			},
			[]string{"entity_type"},
		),
		JobsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wificore_jobs_total",
				Help: "Total number of tenant jobs run by kind and status",
			},
			[]string{"kind", "status"},
		),
	}
}

func (c *Collectors) AuthAttempt(outcome string) {
	if c == nil {
		return
	}
	c.AuthAttemptsTotal.WithLabelValues(outcome).Inc()
}

func (c *Collectors) RadiusExchange(result string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.RadiusExchangeDuration.WithLabelValues(result).Observe(elapsed.Seconds())
}

func (c *Collectors) CrossTenantViolation(entityType string) {
	if c == nil {
		return
	}
	c.CrossTenantViolationsTotal.WithLabelValues(entityType).Inc()
}

func (c *Collectors) Job(kind, status string) {
	if c == nil {
		return
	}
	c.JobsTotal.WithLabelValues(kind, status).Inc()
}

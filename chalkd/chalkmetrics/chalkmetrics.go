// Package chalkmetrics exposes Prometheus counters for the
// authorization and invite paths.
package chalkmetrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/chalkboard/chalkboard/chalkd/rbac"
)

const namespace = "chalkd"

// Metrics aggregates the counters.
type Metrics struct {
	AuthzDecisions *prometheus.CounterVec
	Redemptions    *prometheus.CounterVec
}

// Register creates the counters on the given registerer.
func Register(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		AuthzDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "authz",
			Name:      "decisions_total",
			Help:      "Authorization decisions by verdict.",
		}, []string{"verdict"}),
		Redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "invites",
			Name:      "redemptions_total",
			Help:      "Invite redemption attempts by outcome.",
		}, []string{"outcome"}),
	}
	err := reg.Register(m.AuthzDecisions)
	if err != nil {
		return nil, err
	}
	err = reg.Register(m.Redemptions)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// RecordRedemption counts one redemption attempt. outcome is one of
// "success", "not_found", "expired", "exhausted", "error".
func (m *Metrics) RecordRedemption(outcome string) {
	if m == nil {
		return
	}
	m.Redemptions.WithLabelValues(outcome).Inc()
}

// InstrumentAuthorizer wraps an authorizer with decision counters.
func (m *Metrics) InstrumentAuthorizer(inner rbac.Authorizer) rbac.Authorizer {
	if m == nil {
		return inner
	}
	return &instrumentedAuthorizer{inner: inner, metrics: m}
}

type instrumentedAuthorizer struct {
	inner   rbac.Authorizer
	metrics *Metrics
}

func (a *instrumentedAuthorizer) Authorize(ctx context.Context, subject rbac.Subject, action rbac.Action, object rbac.Object) error {
	err := a.inner.Authorize(ctx, subject, action, object)
	verdict := "allow"
	if err != nil {
		verdict = "deny"
	}
	a.metrics.AuthzDecisions.WithLabelValues(verdict).Inc()
	return err
}

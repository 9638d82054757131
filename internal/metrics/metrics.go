// internal/metrics/metrics.go
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	proofVerifications  *prometheus.CounterVec
	verificationLatency *prometheus.HistogramVec
	proofsSubmitted     *prometheus.CounterVec
	disbursedTotal      *prometheus.CounterVec
	milestonesCompleted prometheus.Counter
	revenueShared       prometheus.Counter
	grantTransitions    *prometheus.CounterVec
	loanTransitions     *prometheus.CounterVec
	repaymentsTotal     prometheus.Counter
	custodyFailures     prometheus.Counter
}

func New(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)
	return &Metrics{
		proofVerifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "coopfund_proof_verifications_total",
			Help: "Proof verification outcomes by backend",
		}, []string{"backend", "status"}),
		verificationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "coopfund_proof_verification_seconds",
			Help:    "Time spent in backend verification",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"backend"}),
		proofsSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "coopfund_proofs_submitted_total",
			Help: "Proofs accepted for verification",
		}, []string{"backend"}),
		disbursedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "coopfund_disbursed_amount_total",
			Help: "Capital released to recipients",
		}, []string{"owner_kind"}),
		milestonesCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "coopfund_milestones_completed_total",
			Help: "Milestones validated and paid out",
		}),
		revenueShared: factory.NewCounter(prometheus.CounterOpts{
			Name: "coopfund_revenue_shared_total",
			Help: "Revenue share collected from grants",
		}),
		grantTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "coopfund_grant_transitions_total",
			Help: "Grant status transitions",
		}, []string{"to"}),
		loanTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "coopfund_loan_transitions_total",
			Help: "Loan status transitions",
		}, []string{"to"}),
		repaymentsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "coopfund_loan_repayments_total",
			Help: "Amount repaid on loans, interest included",
		}),
		custodyFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "coopfund_custody_failures_total",
			Help: "Transfers refused by the custodian",
		}),
	}
}

func (m *Metrics) ObserveVerification(backend, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.proofVerifications.WithLabelValues(backend, status).Inc()
	if elapsed > 0 {
		m.verificationLatency.WithLabelValues(backend).Observe(elapsed.Seconds())
	}
}

func (m *Metrics) ProofSubmitted(backend string) {
	if m == nil {
		return
	}
	m.proofsSubmitted.WithLabelValues(backend).Inc()
}

func (m *Metrics) Disbursed(ownerKind string, amount int64) {
	if m == nil {
		return
	}
	m.disbursedTotal.WithLabelValues(ownerKind).Add(float64(amount))
}

func (m *Metrics) MilestoneCompleted() {
	if m == nil {
		return
	}
	m.milestonesCompleted.Inc()
}

func (m *Metrics) RevenueShared(amount int64) {
	if m == nil {
		return
	}
	m.revenueShared.Add(float64(amount))
}

func (m *Metrics) GrantTransition(to string) {
	if m == nil {
		return
	}
	m.grantTransitions.WithLabelValues(to).Inc()
}

func (m *Metrics) LoanTransition(to string) {
	if m == nil {
		return
	}
	m.loanTransitions.WithLabelValues(to).Inc()
}

func (m *Metrics) Repaid(amount int64) {
	if m == nil {
		return
	}
	m.repaymentsTotal.Add(float64(amount))
}

func (m *Metrics) CustodyFailure() {
	if m == nil {
		return
	}
	m.custodyFailures.Inc()
}

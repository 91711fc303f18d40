package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Sign-in failure reasons. Clients always see the same message; the
// reason only reaches metrics and debug logs.
const (
	ReasonUnknownEmail   = "unknown_email"
	ReasonNoPassword     = "no_password"
	ReasonBadPassword    = "bad_password"
	ReasonCaptchaMissing = "captcha_missing"
	ReasonCaptchaFailed  = "captcha_failed"
	ReasonUnverified     = "unverified"
	ReasonLockedOut      = "locked_out"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	SignInsTotal        *prometheus.CounterVec
	SignInFailuresTotal *prometheus.CounterVec
	RefreshesTotal      prometheus.Counter
	RefreshRejected     *prometheus.CounterVec
	SecretsIssuedTotal  *prometheus.CounterVec
	SecretsRedeemed     *prometheus.CounterVec
	PrunedRowsTotal     prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SignInsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_signins_total",
				Help: "Successful sign-ins by method",
			},
			[]string{"method"},
		),
		SignInFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_signin_failures_total",
				Help: "Rejected credential sign-ins by reason",
			},
			[]string{"reason"},
		),
		RefreshesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gatehouse_refreshes_total",
				Help: "Refresh tokens rotated",
			},
		),
		RefreshRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_refresh_rejected_total",
				Help: "Refresh attempts refused because the token was already used",
			},
			[]string{"reason"},
		),
		SecretsIssuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_secrets_issued_total",
				Help: "Verification secrets issued by purpose",
			},
			[]string{"purpose"},
		),
		SecretsRedeemed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_secrets_redeemed_total",
				Help: "Verification secret redemptions by purpose and outcome",
			},
			[]string{"purpose", "outcome"},
		),
		PrunedRowsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gatehouse_pruned_rows_total",
				Help: "Expired ledger and secret rows removed by the sweep",
			},
		),
	}

	reg.MustRegister(
		m.SignInsTotal,
		m.SignInFailuresTotal,
		m.RefreshesTotal,
		m.RefreshRejected,
		m.SecretsIssuedTotal,
		m.SecretsRedeemed,
		m.PrunedRowsTotal,
	)
	return m
}

func (m *Metrics) signedIn(method string) {
	if m != nil {
		m.SignInsTotal.WithLabelValues(method).Inc()
	}
}

func (m *Metrics) signInFailed(reason string) {
	if m != nil {
		m.SignInFailuresTotal.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) refreshed() {
	if m != nil {
		m.RefreshesTotal.Inc()
	}
}

func (m *Metrics) refreshRejected(reason string) {
	if m != nil {
		m.RefreshRejected.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) secretIssued(purpose string) {
	if m != nil {
		m.SecretsIssuedTotal.WithLabelValues(purpose).Inc()
	}
}

func (m *Metrics) secretRedeemed(purpose, outcome string) {
	if m != nil {
		m.SecretsRedeemed.WithLabelValues(purpose, outcome).Inc()
	}
}

func (m *Metrics) pruned(n int) {
	if m != nil && n > 0 {
		m.PrunedRowsTotal.Add(float64(n))
	}
}
